package workflow

import (
	"fmt"

	"github.com/quantarc/finflow/pkg/models"
)

// Decision is the remediation policy's verdict on a task failure.
type Decision string

const (
	DecisionRetry    Decision = "RETRY"
	DecisionReplan   Decision = "REPLAN"
	DecisionContinue Decision = "CONTINUE"
	DecisionComplete Decision = "COMPLETE"
)

// CriticalFunc reports whether the accumulated error log has crossed a
// threshold that makes further execution pointless.
type CriticalFunc func(state *models.WorkflowState) bool

// DefaultCritical treats two or more authentication failures as
// unrecoverable, since every further dispatch would hit the same wall.
func DefaultCritical(state *models.WorkflowState) bool {
	return state.ErrorCountByType(models.ErrorTypeAuth) >= 2
}

// Policy decides how to react to a classified task failure.
type Policy struct {
	// MaxRetries bounds retries of transient failures per record.
	MaxRetries int
	// MaxLLMRetries bounds retries of model output failures per record.
	MaxLLMRetries int
	// Critical short-circuits everything to forced completion.
	Critical CriticalFunc
}

// DefaultPolicy returns the remediation policy with standard bounds.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:    3,
		MaxLLMRetries: 2,
		Critical:      DefaultCritical,
	}
}

// Decide picks the remediation action for the latest failure. The
// rules are evaluated strictly in order; stalled means pending tasks
// remain but none of them can become ready because their dependency
// has failed.
func (p *Policy) Decide(state *models.WorkflowState, record *models.ErrorRecord, stalled bool) Decision {
	if p.Critical != nil && p.Critical(state) {
		return DecisionComplete
	}

	if record != nil {
		switch record.ErrorType {
		case models.ErrorTypeNetwork, models.ErrorTypeRateLimit:
			if record.RetryCount < p.MaxRetries {
				return DecisionRetry
			}
		case models.ErrorTypeInvalidInput:
			if len(state.Tasks) > 1 {
				return DecisionReplan
			}
		case models.ErrorTypeLLM:
			if record.RetryCount < p.MaxLLMRetries {
				return DecisionRetry
			}
		}
	}

	if len(state.PendingTasks()) > 0 && !stalled {
		return DecisionContinue
	}

	return DecisionComplete
}

// Apply mutates the state according to the decision and appends the
// provenance marker for the action taken.
//
// RETRY flips the failed task back to pending and increments the retry
// count on the originating record, so the bound in Decide holds across
// attempts. REPLAN clears the task list for a fresh plan. CONTINUE
// leaves the task failed and moves on. COMPLETE forces every pending
// task to failed so the loop falls through to synthesis.
func (p *Policy) Apply(state *models.WorkflowState, record *models.ErrorRecord, decision Decision) {
	switch decision {
	case DecisionRetry:
		if task := state.TaskByID(record.TaskID); task != nil {
			task.Status = models.TaskStatusPending
		}

		record.RetryCount++
		state.AddError(&models.ErrorRecord{
			TaskID:       record.TaskID,
			Agent:        record.Agent,
			Tool:         record.Tool,
			ErrorType:    models.ErrorTypeRetryAttempt,
			ErrorMessage: fmt.Sprintf("retry %d of %s after %s", record.RetryCount, record.TaskID, record.ErrorType),
			RetryCount:   record.RetryCount,
		})

	case DecisionReplan:
		state.Tasks = make([]*models.Task, 0)
		state.AddError(&models.ErrorRecord{
			TaskID:       record.TaskID,
			Agent:        record.Agent,
			Tool:         record.Tool,
			ErrorType:    models.ErrorTypeReplanTriggered,
			ErrorMessage: fmt.Sprintf("replanning after %s on %s", record.ErrorType, record.TaskID),
		})

	case DecisionContinue:
		state.AddError(&models.ErrorRecord{
			TaskID:       record.TaskID,
			Agent:        record.Agent,
			Tool:         record.Tool,
			ErrorType:    models.ErrorTypeTaskSkipped,
			ErrorMessage: fmt.Sprintf("skipped %s after %s, continuing with remaining tasks", record.TaskID, record.ErrorType),
		})

	case DecisionComplete:
		forced := 0

		for _, task := range state.Tasks {
			if task.Status == models.TaskStatusPending || task.Status == models.TaskStatusRunning {
				task.Status = models.TaskStatusFailed
				forced++
			}
		}

		taskID := "remediation"
		agent, tool := "", ""

		if record != nil {
			taskID = record.TaskID
			agent = record.Agent
			tool = record.Tool
		}

		state.AddError(&models.ErrorRecord{
			TaskID:       taskID,
			Agent:        agent,
			Tool:         tool,
			ErrorType:    models.ErrorTypeForcedCompletion,
			ErrorMessage: fmt.Sprintf("forcing completion, %d unfinished tasks abandoned", forced),
		})
	}

	state.Touch()
}
