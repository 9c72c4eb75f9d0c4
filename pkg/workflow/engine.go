package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quantarc/finflow/pkg/eventbus"
	"github.com/quantarc/finflow/pkg/events"
	"github.com/quantarc/finflow/pkg/models"
	"github.com/quantarc/finflow/pkg/otelhelper"
	"github.com/quantarc/finflow/pkg/persistence"
	"github.com/quantarc/finflow/pkg/protocol"
	"github.com/quantarc/finflow/pkg/registry"
)

// Phase labels where the control loop is between steps.
type Phase string

const (
	PhaseRouting      Phase = "ROUTING"
	PhasePlanning     Phase = "PLANNING"
	PhaseExecuting    Phase = "EXECUTING"
	PhaseRemediating  Phase = "REMEDIATING"
	PhaseSynthesizing Phase = "SYNTHESIZING"
	PhaseFallback     Phase = "FALLBACK"
	PhaseDone         Phase = "DONE"
)

// Task ids used on error records for failures outside task dispatch.
const (
	routerTaskID    = "router_classification"
	planningTaskID  = "planning"
	synthesisTaskID = "answer_generation"
	fallbackTaskID  = "fallback_task_1"
	directTaskID    = "direct_task_1"
)

const (
	fallbackAgent = "knowledge"
	fallbackTool  = "knowledge_query"
)

// defaultMaxSteps bounds loop iterations per session against
// pathological replan cycles.
const defaultMaxSteps = 50

// StepUpdate is one progress notification on a session stream. State
// is a deep copy; consumers may inspect it freely while the loop keeps
// running.
type StepUpdate struct {
	Phase Phase                 `json:"phase"`
	State *models.WorkflowState `json:"state"`
}

// Engine drives a session from query to final answer. All
// collaborators are injected; the engine holds no global lookups.
type Engine struct {
	logger      *slog.Logger
	registry    *registry.Registry
	classifier  protocol.Classifier
	planner     protocol.Planner
	synthesizer protocol.Synthesizer
	executor    *Executor
	policy      *Policy
	checkpoints persistence.CheckpointStore
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	validate    *validator.Validate
	maxSteps    int
}

type Option func(*Engine)

// WithCheckpointStore enables state persistence after every step.
func WithCheckpointStore(store persistence.CheckpointStore) Option {
	return func(e *Engine) { e.checkpoints = store }
}

// WithPublisher enables lifecycle event publishing.
func WithPublisher(pub eventbus.EventPublisher) Option {
	return func(e *Engine) { e.publisher = pub }
}

// WithPolicy overrides the default remediation policy.
func WithPolicy(policy *Policy) Option {
	return func(e *Engine) { e.policy = policy }
}

// WithTracer enables span emission per session and per task.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithMaxSteps overrides the loop iteration bound.
func WithMaxSteps(n int) Option {
	return func(e *Engine) { e.maxSteps = n }
}

func NewEngine(
	logger *slog.Logger,
	reg *registry.Registry,
	classifier protocol.Classifier,
	planner protocol.Planner,
	synthesizer protocol.Synthesizer,
	opts ...Option,
) *Engine {
	engine := &Engine{
		logger:      logger.With("module", "engine"),
		registry:    reg,
		classifier:  classifier,
		planner:     planner,
		synthesizer: synthesizer,
		executor:    NewExecutor(reg, logger),
		policy:      DefaultPolicy(),
		validate:    validator.New(),
		maxSteps:    defaultMaxSteps,
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Invoke runs a query to completion and returns the terminal state.
// The sessionID becomes the checkpoint key; an empty one is replaced
// with a generated UUID.
func (e *Engine) Invoke(ctx context.Context, query, sessionID string) (*models.WorkflowState, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	state := models.NewWorkflowState(query, sessionID)

	return e.drive(ctx, state, PhaseRouting, nil)
}

// Resume continues a previously checkpointed session from where it
// stopped. Already terminal sessions are returned as-is.
func (e *Engine) Resume(ctx context.Context, sessionID string) (*models.WorkflowState, error) {
	if e.checkpoints == nil {
		return nil, fmt.Errorf("resume requires a checkpoint store")
	}

	state, err := e.checkpoints.LoadState(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	phase := derivePhase(state)
	if phase == PhaseDone {
		return state, nil
	}

	// A crash mid-dispatch can leave a task running; it never got a
	// result, so it runs again.
	for _, task := range state.Tasks {
		if task.Status == models.TaskStatusRunning {
			task.Status = models.TaskStatusPending
		}
	}

	return e.drive(ctx, state, phase, nil)
}

// Stream runs a query and emits one StepUpdate per control-loop step.
// The channel closes when the session reaches its terminal state; the
// final update carries the finished state. The sessionID becomes the
// checkpoint key; an empty one is replaced with a generated UUID.
func (e *Engine) Stream(ctx context.Context, query, sessionID string) (<-chan StepUpdate, error) {
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	updates := make(chan StepUpdate, 16)

	go func() {
		defer close(updates)

		state := models.NewWorkflowState(query, sessionID)

		emit := func(phase Phase, state *models.WorkflowState) {
			select {
			case updates <- StepUpdate{Phase: phase, State: state.Clone()}:
			case <-ctx.Done():
			}
		}

		if _, err := e.drive(ctx, state, PhaseRouting, emit); err != nil {
			e.logger.ErrorContext(ctx, "Streamed session failed",
				"session_id", state.SessionID, "error", err)
		}
	}()

	return updates, nil
}

// derivePhase reconstructs the loop position from persisted state.
func derivePhase(state *models.WorkflowState) Phase {
	switch {
	case state.Terminal():
		return PhaseDone
	case state.Complexity == models.ComplexityUnset:
		return PhaseRouting
	case state.Complexity == models.ComplexityOOS:
		return PhaseFallback
	case state.Complexity == models.ComplexityComplex && len(state.Tasks) == 0:
		return PhasePlanning
	default:
		return PhaseExecuting
	}
}

type emitFunc func(Phase, *models.WorkflowState)

// drive is the control loop. Each iteration performs one phase action,
// checkpoints the state, emits a stream update, then transitions.
func (e *Engine) drive(ctx context.Context, state *models.WorkflowState, phase Phase, emit emitFunc) (*models.WorkflowState, error) {
	started := time.Now()

	ctx, span := e.startSpan(ctx, state)
	defer span.End()

	for step := 0; phase != PhaseDone; step++ {
		if err := ctx.Err(); err != nil {
			otelhelper.SetError(span, err, attribute.String(otelhelper.SessionIDKey, state.SessionID))

			return state, fmt.Errorf("session %s interrupted: %w", state.SessionID, err)
		}

		if step >= e.maxSteps {
			e.logger.WarnContext(ctx, "Step bound reached, forcing completion",
				"session_id", state.SessionID, "steps", step)
			e.policy.Apply(state, state.LatestFailure(), DecisionComplete)

			phase = PhaseSynthesizing
		}

		span.AddEvent("step", trace.WithAttributes(
			attribute.Int(otelhelper.StepKey, step),
			attribute.String("finflow.phase", string(phase)),
		))

		var next Phase

		switch phase {
		case PhaseRouting:
			next = e.routeQuery(ctx, state)
		case PhasePlanning:
			next = e.buildPlan(ctx, state)
		case PhaseExecuting:
			next = e.executeStep(ctx, state)
		case PhaseRemediating:
			next = e.remediate(ctx, state, state.LatestFailure(), false)
		case PhaseSynthesizing:
			next = e.synthesize(ctx, state)
		case PhaseFallback:
			next = e.fallback(ctx, state)
		default:
			return state, fmt.Errorf("session %s entered unknown phase %q", state.SessionID, phase)
		}

		e.checkpoint(ctx, state)

		if emit != nil {
			emit(phase, state)
		}

		phase = next
	}

	e.publish(ctx, state, events.SessionCompleted{
		BaseEvent:      events.NewBaseEvent(events.SessionCompletedEvent, state.SessionID),
		TasksCompleted: state.CompletedCount(),
		TasksFailed:    state.FailedCount(),
		DurationMs:     time.Since(started).Milliseconds(),
	})

	e.logger.InfoContext(ctx, "Session finished",
		"session_id", state.SessionID,
		"complexity", state.Complexity,
		"tasks_completed", state.CompletedCount(),
		"tasks_failed", state.FailedCount(),
		"duration", time.Since(started))

	return state, nil
}

// routeQuery classifies the query and picks the execution path.
// Classification failure degrades to the full planning path rather
// than refusing the query.
func (e *Engine) routeQuery(ctx context.Context, state *models.WorkflowState) Phase {
	complexity, err := e.classifier.Classify(ctx, state.OriginalQuery)
	if err != nil || !knownComplexity(complexity) {
		if err == nil {
			err = fmt.Errorf("classifier returned unknown label %q", complexity)
		}

		e.logger.WarnContext(ctx, "Classification failed, defaulting to full planning",
			"session_id", state.SessionID, "error", err)

		state.AddError(&models.ErrorRecord{
			TaskID:       routerTaskID,
			ErrorType:    models.ErrorTypeClassification,
			ErrorMessage: err.Error(),
		})

		complexity = models.ComplexityComplex
	}

	state.Complexity = complexity
	state.Touch()

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String(otelhelper.ComplexityKey, string(complexity)))

	e.publish(ctx, state, events.QueryRouted{
		BaseEvent:  events.NewBaseEvent(events.QueryRoutedEvent, state.SessionID),
		Query:      state.OriginalQuery,
		Complexity: complexity,
	})

	e.logger.InfoContext(ctx, "Query routed",
		"session_id", state.SessionID, "complexity", complexity)

	switch complexity {
	case models.ComplexityOOS:
		return PhaseFallback
	case models.ComplexitySimple:
		// Simple queries skip planning and run a single direct lookup.
		state.Tasks = []*models.Task{{
			TaskID: directTaskID,
			Agent:  fallbackAgent,
			Tool:   fallbackTool,
			Inputs: map[string]any{"query": state.OriginalQuery},
			Status: models.TaskStatusPending,
		}}
		state.Touch()

		return PhaseExecuting
	default:
		return PhasePlanning
	}
}

func knownComplexity(c models.Complexity) bool {
	return c == models.ComplexitySimple || c == models.ComplexityComplex || c == models.ComplexityOOS
}

// buildPlan asks the planner for a task list and installs it after
// validation. A failed or invalid plan degrades to the single
// fallback task instead of aborting the session.
func (e *Engine) buildPlan(ctx context.Context, state *models.WorkflowState) Phase {
	replan := state.ErrorCountByType(models.ErrorTypeReplanTriggered) > 0

	specs, err := e.planner.Plan(ctx, state.OriginalQuery)
	if err == nil {
		err = e.validatePlan(specs)
	}

	if err != nil {
		e.logger.WarnContext(ctx, "Planning failed, degrading to fallback task",
			"session_id", state.SessionID, "error", err)

		state.AddError(&models.ErrorRecord{
			TaskID:       planningTaskID,
			ErrorType:    models.ErrorTypePlanning,
			ErrorMessage: err.Error(),
		})

		specs = []protocol.TaskSpec{{
			TaskID: fallbackTaskID,
			Agent:  fallbackAgent,
			Tool:   fallbackTool,
			Inputs: map[string]any{"query": state.OriginalQuery},
		}}
	}

	tasks := make([]*models.Task, 0, len(specs))
	taskIDs := make([]string, 0, len(specs))

	for _, spec := range specs {
		tasks = append(tasks, &models.Task{
			TaskID:    spec.TaskID,
			Agent:     spec.Agent,
			Tool:      spec.Tool,
			Inputs:    spec.Inputs,
			DependsOn: spec.DependsOn,
			Status:    models.TaskStatusPending,
		})
		taskIDs = append(taskIDs, spec.TaskID)
	}

	state.Tasks = tasks
	state.Touch()

	e.publish(ctx, state, events.PlanCreated{
		BaseEvent: events.NewBaseEvent(events.PlanCreatedEvent, state.SessionID),
		TaskCount: len(tasks),
		TaskIDs:   taskIDs,
		Replan:    replan,
	})

	e.logger.InfoContext(ctx, "Plan created",
		"session_id", state.SessionID, "tasks", len(tasks), "replan", replan)

	return PhaseExecuting
}

// validatePlan rejects plans with missing fields, duplicate task ids,
// unresolvable dependencies or self-dependencies.
func (e *Engine) validatePlan(specs []protocol.TaskSpec) error {
	if len(specs) == 0 {
		return fmt.Errorf("planner returned an empty plan")
	}

	ids := make(map[string]bool, len(specs))

	for _, spec := range specs {
		if err := e.validate.Struct(spec); err != nil {
			return fmt.Errorf("task %q failed validation: %w", spec.TaskID, err)
		}

		if ids[spec.TaskID] {
			return fmt.Errorf("duplicate task id %q", spec.TaskID)
		}

		ids[spec.TaskID] = true
	}

	for _, spec := range specs {
		if spec.DependsOn == nil {
			continue
		}

		if *spec.DependsOn == spec.TaskID {
			return fmt.Errorf("task %q depends on itself", spec.TaskID)
		}

		if !ids[*spec.DependsOn] {
			return fmt.Errorf("task %q depends on unknown task %q", spec.TaskID, *spec.DependsOn)
		}
	}

	return nil
}

// executeStep dispatches one task under its own span and picks the
// next phase from the tagged result.
func (e *Engine) executeStep(ctx context.Context, state *models.WorkflowState) Phase {
	started := time.Now()

	var span trace.Span

	if e.tracer != nil {
		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "task.run",
			attribute.String(otelhelper.SessionIDKey, state.SessionID))
		defer span.End()
	}

	result := e.executor.RunNext(ctx, state)

	if span != nil && result.Dispatched() {
		span.SetAttributes(
			attribute.String(otelhelper.TaskIDKey, result.Task.TaskID),
			attribute.String(otelhelper.AgentKey, result.Task.Agent),
			attribute.String(otelhelper.ToolKey, result.Task.Tool),
		)
	}

	switch result.Outcome {
	case StepCompleted:
		e.publish(ctx, state, events.TaskCompleted{
			BaseEvent:  events.NewBaseEvent(events.TaskCompletedEvent, state.SessionID),
			TaskID:     result.Task.TaskID,
			Agent:      result.Task.Agent,
			Tool:       result.Task.Tool,
			DurationMs: time.Since(started).Milliseconds(),
			Result:     state.Results[result.Task.TaskID],
		})

		return PhaseExecuting

	case StepFailed:
		if span != nil {
			otelhelper.SetError(span, errors.New(result.Record.ErrorMessage),
				attribute.String(otelhelper.ErrorTypeKey, string(result.Record.ErrorType)))
		}

		e.publish(ctx, state, events.TaskFailed{
			BaseEvent: events.NewBaseEvent(events.TaskFailedEvent, state.SessionID),
			TaskID:    result.Task.TaskID,
			Agent:     result.Task.Agent,
			Tool:      result.Task.Tool,
			ErrorType: result.Record.ErrorType,
			Error:     result.Record.ErrorMessage,
		})

		return PhaseRemediating

	case StepBlocked:
		// Remaining tasks all wait on results that will never arrive.
		return e.remediate(ctx, state, nil, true)

	default: // StepExhausted
		return PhaseSynthesizing
	}
}

// remediate applies the policy to the latest failure and maps its
// decision onto the next phase.
func (e *Engine) remediate(ctx context.Context, state *models.WorkflowState, record *models.ErrorRecord, stalled bool) Phase {
	decision := e.policy.Decide(state, record, stalled)
	e.policy.Apply(state, record, decision)

	taskID, errType, retries := "", models.ErrorType(""), 0
	if record != nil {
		taskID, errType, retries = record.TaskID, record.ErrorType, record.RetryCount
	}

	trace.SpanFromContext(ctx).AddEvent("remediation", trace.WithAttributes(
		attribute.String(otelhelper.DecisionKey, string(decision)),
		attribute.String(otelhelper.ErrorTypeKey, string(errType)),
	))

	e.publish(ctx, state, events.RemediationDecided{
		BaseEvent:  events.NewBaseEvent(events.RemediationDecidedEvent, state.SessionID),
		TaskID:     taskID,
		ErrorType:  errType,
		Decision:   string(decision),
		RetryCount: retries,
	})

	e.logger.InfoContext(ctx, "Remediation decided",
		"session_id", state.SessionID, "task_id", taskID,
		"error_type", errType, "decision", decision, "stalled", stalled)

	switch decision {
	case DecisionRetry, DecisionContinue:
		return PhaseExecuting
	case DecisionReplan:
		return PhasePlanning
	default:
		return PhaseSynthesizing
	}
}

// synthesize produces the final answer. A synthesis failure never
// loses the session: the deterministic summary takes over.
func (e *Engine) synthesize(ctx context.Context, state *models.WorkflowState) Phase {
	answer, err := e.synthesizer.Synthesize(ctx, state)
	if err != nil {
		e.logger.WarnContext(ctx, "Synthesis failed, using deterministic summary",
			"session_id", state.SessionID, "error", err)

		state.AddError(&models.ErrorRecord{
			TaskID:       synthesisTaskID,
			ErrorType:    models.ErrorTypeSynthesis,
			ErrorMessage: err.Error(),
		})

		answer = deterministicSummary(state)
	}

	state.FinalAnswer = answer
	state.Touch()

	return PhaseDone
}

// fallback answers out-of-scope queries without touching any agent.
func (e *Engine) fallback(ctx context.Context, state *models.WorkflowState) Phase {
	state.FinalAnswer = "I can only help with financial markets questions: " +
		"stock information, company news, screening and investment research. " +
		"Please rephrase your question in those terms."
	state.Touch()

	e.publish(ctx, state, events.SessionFallback{
		BaseEvent: events.NewBaseEvent(events.SessionFallbackEvent, state.SessionID),
		Reason:    "query out of scope",
	})

	return PhaseDone
}

// deterministicSummary is the template answer used when the
// synthesizer itself fails.
func deterministicSummary(state *models.WorkflowState) string {
	if len(state.Results) == 0 {
		return fmt.Sprintf(
			"Unable to produce an analysis for %q: none of the %d planned tasks returned data. Please try again later.",
			state.OriginalQuery, len(state.Tasks))
	}

	return fmt.Sprintf(
		"Partial analysis for %q: %d of %d tasks returned data, but the report could not be generated. Raw results are available on the session.",
		state.OriginalQuery, state.CompletedCount(), len(state.Tasks))
}

func (e *Engine) checkpoint(ctx context.Context, state *models.WorkflowState) {
	if e.checkpoints == nil {
		return
	}

	if err := e.checkpoints.SaveState(ctx, state); err != nil {
		e.logger.ErrorContext(ctx, "Checkpoint save failed",
			"session_id", state.SessionID, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, state *models.WorkflowState, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, state.SessionID, event); err != nil {
		e.logger.WarnContext(ctx, "Event publish failed",
			"session_id", state.SessionID, "event_type", event.GetType(), "error", err)
	}
}

func (e *Engine) startSpan(ctx context.Context, state *models.WorkflowState) (context.Context, trace.Span) {
	if e.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return otelhelper.StartSpan(ctx, e.tracer, "session.run",
		attribute.String(otelhelper.SessionIDKey, state.SessionID),
		attribute.String(otelhelper.QueryKey, state.OriginalQuery),
	)
}
