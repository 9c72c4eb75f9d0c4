package workflow

import (
	"context"
	"log/slog"
	"maps"

	"github.com/quantarc/finflow/pkg/models"
	"github.com/quantarc/finflow/pkg/registry"
)

// StepOutcome tags what one execution step did to the state.
type StepOutcome string

const (
	// StepCompleted: a task was dispatched and its result recorded.
	StepCompleted StepOutcome = "completed"
	// StepFailed: a task was dispatched, failed, and the classified
	// failure was recorded.
	StepFailed StepOutcome = "failed"
	// StepExhausted: no pending tasks remain.
	StepExhausted StepOutcome = "exhausted"
	// StepBlocked: pending tasks remain but none can become ready,
	// every one of them depends on a task without a result.
	StepBlocked StepOutcome = "blocked"
)

// StepResult reports the outcome of a single execution step so the
// control loop can pick its next transition without re-reading the
// error log.
type StepResult struct {
	Outcome StepOutcome
	Task    *models.Task
	Record  *models.ErrorRecord
}

// Dispatched reports whether the step actually ran a task.
func (r StepResult) Dispatched() bool {
	return r.Outcome == StepCompleted || r.Outcome == StepFailed
}

// Executor dispatches one ready task at a time against the agent
// registry.
type Executor struct {
	registry *registry.Registry
	logger   *slog.Logger
}

func NewExecutor(reg *registry.Registry, logger *slog.Logger) *Executor {
	return &Executor{
		registry: reg,
		logger:   logger.With("module", "executor"),
	}
}

// RunNext dispatches the first ready pending task. On failure the task
// is marked failed and the classified failure is logged on the state;
// the error never propagates as a Go error, remediation owns it.
func (e *Executor) RunNext(ctx context.Context, state *models.WorkflowState) StepResult {
	task := state.NextReadyTask()
	if task == nil {
		if len(state.PendingTasks()) > 0 {
			return StepResult{Outcome: StepBlocked}
		}

		return StepResult{Outcome: StepExhausted}
	}

	task.Status = models.TaskStatusRunning
	state.Touch()

	e.logger.InfoContext(ctx, "Dispatching task",
		"session_id", state.SessionID, "task_id", task.TaskID,
		"agent", task.Agent, "tool", task.Tool)

	result, err := e.dispatch(ctx, state, task)
	if err != nil {
		state.MarkTaskFailed(task.TaskID)
		record := state.RecordFailure(task, ClassifyError(err), err.Error())

		e.logger.WarnContext(ctx, "Task failed",
			"session_id", state.SessionID, "task_id", task.TaskID,
			"error_type", record.ErrorType, "error", err)

		return StepResult{Outcome: StepFailed, Task: task, Record: record}
	}

	state.MarkTaskCompleted(task.TaskID, result)

	e.logger.InfoContext(ctx, "Task completed",
		"session_id", state.SessionID, "task_id", task.TaskID)

	return StepResult{Outcome: StepCompleted, Task: task}
}

func (e *Executor) dispatch(ctx context.Context, state *models.WorkflowState, task *models.Task) (any, error) {
	agent, err := e.registry.CreateAgent(task.Agent, map[string]any{})
	if err != nil {
		return nil, err
	}

	inputs := make(map[string]any, len(task.Inputs)+2)
	maps.Copy(inputs, task.Inputs)
	inputs["session_id"] = state.SessionID

	if task.DependsOn != nil {
		if dep, ok := state.Results[*task.DependsOn]; ok {
			inputs["dependency_result"] = dep
		}
	}

	return agent.Execute(ctx, task, inputs)
}
