package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/quantarc/finflow/pkg/models"
	"github.com/quantarc/finflow/pkg/otelhelper"
	"github.com/quantarc/finflow/pkg/persistence/file"
	"github.com/quantarc/finflow/pkg/protocol"
)

type stubClassifier struct {
	complexity models.Complexity
	err        error
}

func (c *stubClassifier) Classify(_ context.Context, _ string) (models.Complexity, error) {
	return c.complexity, c.err
}

type stubPlanner struct {
	plans [][]protocol.TaskSpec
	err   error
	calls int
}

func (p *stubPlanner) Plan(_ context.Context, _ string) ([]protocol.TaskSpec, error) {
	if p.err != nil {
		return nil, p.err
	}

	idx := p.calls
	if idx >= len(p.plans) {
		idx = len(p.plans) - 1
	}

	p.calls++

	return p.plans[idx], nil
}

type stubSynthesizer struct {
	answer string
	err    error
}

func (s *stubSynthesizer) Synthesize(_ context.Context, _ *models.WorkflowState) (string, error) {
	return s.answer, s.err
}

func countErrors(state *models.WorkflowState, errType models.ErrorType) int {
	return state.ErrorCountByType(errType)
}

func singleTaskPlan(agent, tool string) []protocol.TaskSpec {
	return []protocol.TaskSpec{{
		TaskID: "task_1",
		Agent:  agent,
		Tool:   tool,
		Inputs: map[string]any{"query": "q"},
	}}
}

func TestEngine_SimpleQueryRunsDirectTask(t *testing.T) {
	reg := stubRegistry(map[string]protocol.Agent{"knowledge": echoAgent("knowledge_query")})

	engine := NewEngine(testLogger(), reg,
		&stubClassifier{complexity: models.ComplexitySimple},
		&stubPlanner{},
		&stubSynthesizer{answer: "direct answer"},
	)

	state, err := engine.Invoke(context.Background(), "what is a P/E ratio", "")

	require.NoError(t, err)
	assert.Equal(t, models.ComplexitySimple, state.Complexity)
	require.Len(t, state.Tasks, 1)
	assert.Equal(t, "direct_task_1", state.Tasks[0].TaskID)
	assert.Equal(t, models.TaskStatusCompleted, state.Tasks[0].Status)
	assert.Equal(t, "direct answer", state.FinalAnswer)
	assert.Empty(t, state.Errors)
}

func TestEngine_OutOfScopeGetsFallbackAnswer(t *testing.T) {
	engine := NewEngine(testLogger(), stubRegistry(nil),
		&stubClassifier{complexity: models.ComplexityOOS},
		&stubPlanner{},
		&stubSynthesizer{answer: "unused"},
	)

	state, err := engine.Invoke(context.Background(), "what is the best pizza in town", "")

	require.NoError(t, err)
	assert.Equal(t, models.ComplexityOOS, state.Complexity)
	assert.Contains(t, state.FinalAnswer, "financial markets")
	assert.Empty(t, state.Tasks)
}

func TestEngine_ClassificationFailureDefaultsToPlanning(t *testing.T) {
	reg := stubRegistry(map[string]protocol.Agent{"knowledge": echoAgent("knowledge_query")})

	engine := NewEngine(testLogger(), reg,
		&stubClassifier{err: errors.New("classifier unavailable")},
		&stubPlanner{plans: [][]protocol.TaskSpec{singleTaskPlan("knowledge", "knowledge_query")}},
		&stubSynthesizer{answer: "answer"},
	)

	state, err := engine.Invoke(context.Background(), "anything", "")

	require.NoError(t, err)
	assert.Equal(t, models.ComplexityComplex, state.Complexity)
	assert.Equal(t, 1, countErrors(state, models.ErrorTypeClassification))
	assert.Equal(t, "answer", state.FinalAnswer)
}

func TestEngine_PlanningFailureDegradesToFallbackTask(t *testing.T) {
	reg := stubRegistry(map[string]protocol.Agent{"knowledge": echoAgent("knowledge_query")})

	engine := NewEngine(testLogger(), reg,
		&stubClassifier{complexity: models.ComplexityComplex},
		&stubPlanner{err: errors.New("planner unavailable")},
		&stubSynthesizer{answer: "answer"},
	)

	state, err := engine.Invoke(context.Background(), "analyze AAPL", "")

	require.NoError(t, err)
	assert.Equal(t, 1, countErrors(state, models.ErrorTypePlanning))
	require.Len(t, state.Tasks, 1)
	assert.Equal(t, "fallback_task_1", state.Tasks[0].TaskID)
	assert.Equal(t, models.TaskStatusCompleted, state.Tasks[0].Status)
}

func TestEngine_InvalidPlanDegradesToFallbackTask(t *testing.T) {
	reg := stubRegistry(map[string]protocol.Agent{"knowledge": echoAgent("knowledge_query")})

	dep := "task_9"
	badPlan := []protocol.TaskSpec{
		{TaskID: "task_1", Agent: "news", Tool: "news_query", DependsOn: &dep},
	}

	engine := NewEngine(testLogger(), reg,
		&stubClassifier{complexity: models.ComplexityComplex},
		&stubPlanner{plans: [][]protocol.TaskSpec{badPlan}},
		&stubSynthesizer{answer: "answer"},
	)

	state, err := engine.Invoke(context.Background(), "analyze AAPL", "")

	require.NoError(t, err)
	assert.Equal(t, 1, countErrors(state, models.ErrorTypePlanning))
	require.Len(t, state.Tasks, 1)
	assert.Equal(t, "fallback_task_1", state.Tasks[0].TaskID)
}

func TestEngine_PlanWithMissingFieldsDegradesToFallbackTask(t *testing.T) {
	reg := stubRegistry(map[string]protocol.Agent{"knowledge": echoAgent("knowledge_query")})

	engine := NewEngine(testLogger(), reg,
		&stubClassifier{complexity: models.ComplexityComplex},
		&stubPlanner{plans: [][]protocol.TaskSpec{{{}}}},
		&stubSynthesizer{answer: "answer"},
	)

	state, err := engine.Invoke(context.Background(), "analyze AAPL", "")

	require.NoError(t, err)
	assert.Equal(t, 1, countErrors(state, models.ErrorTypePlanning))
	require.Len(t, state.Tasks, 1)
	assert.Equal(t, "fallback_task_1", state.Tasks[0].TaskID)
}

func TestEngine_ValidatePlanRejectsMissingFields(t *testing.T) {
	reg := stubRegistry(map[string]protocol.Agent{"knowledge": echoAgent("knowledge_query")})

	engine := NewEngine(testLogger(), reg,
		&stubClassifier{complexity: models.ComplexityComplex},
		&stubPlanner{},
		&stubSynthesizer{answer: "answer"},
	)

	assert.Error(t, engine.validatePlan([]protocol.TaskSpec{{}}))
	assert.Error(t, engine.validatePlan([]protocol.TaskSpec{
		{TaskID: "task_1", Agent: "news"},
	}))
	assert.NoError(t, engine.validatePlan(singleTaskPlan("news", "news_query")))
}

func TestEngine_InvokeHonorsCallerSessionID(t *testing.T) {
	reg := stubRegistry(map[string]protocol.Agent{"knowledge": echoAgent("knowledge_query")})
	store := file.NewStore(t.TempDir())

	engine := NewEngine(testLogger(), reg,
		&stubClassifier{complexity: models.ComplexitySimple},
		&stubPlanner{},
		&stubSynthesizer{answer: "answer"},
		WithCheckpointStore(store),
	)

	state, err := engine.Invoke(context.Background(), "what is a P/E ratio", "session-42")

	require.NoError(t, err)
	assert.Equal(t, "session-42", state.SessionID)

	persisted, err := store.LoadState(context.Background(), "session-42")
	require.NoError(t, err)
	assert.True(t, persisted.Terminal())

	generated, err := engine.Invoke(context.Background(), "what is a P/E ratio", "")
	require.NoError(t, err)
	assert.NotEmpty(t, generated.SessionID)
}

func TestEngine_StreamHonorsCallerSessionID(t *testing.T) {
	reg := stubRegistry(map[string]protocol.Agent{"knowledge": echoAgent("knowledge_query")})

	engine := NewEngine(testLogger(), reg,
		&stubClassifier{complexity: models.ComplexitySimple},
		&stubPlanner{},
		&stubSynthesizer{answer: "answer"},
	)

	updates, err := engine.Stream(context.Background(), "what is a P/E ratio", "session-stream-7")
	require.NoError(t, err)

	var last StepUpdate
	for update := range updates {
		last = update
	}

	require.NotNil(t, last.State)
	assert.Equal(t, "session-stream-7", last.State.SessionID)
}

func TestEngine_TracerEmitsSessionAndTaskSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	reg := stubRegistry(map[string]protocol.Agent{"knowledge": echoAgent("knowledge_query")})

	engine := NewEngine(testLogger(), reg,
		&stubClassifier{complexity: models.ComplexitySimple},
		&stubPlanner{},
		&stubSynthesizer{answer: "answer"},
		WithTracer(provider.Tracer("test")),
	)

	_, err := engine.Invoke(context.Background(), "what is a P/E ratio", "")
	require.NoError(t, err)

	names := make([]string, 0)
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}

	assert.Contains(t, names, "session.run")
	assert.Contains(t, names, "task.run")

	for _, span := range recorder.Ended() {
		if span.Name() != "task.run" {
			continue
		}

		attrs := make(map[attribute.Key]string)
		for _, kv := range span.Attributes() {
			attrs[kv.Key] = kv.Value.Emit()
		}

		assert.Equal(t, "direct_task_1", attrs[attribute.Key(otelhelper.TaskIDKey)])
		assert.Equal(t, "knowledge", attrs[attribute.Key(otelhelper.AgentKey)])
		assert.Equal(t, "knowledge_query", attrs[attribute.Key(otelhelper.ToolKey)])
	}
}

func TestEngine_TransientFailureRetriedThenSucceeds(t *testing.T) {
	attempts := 0
	flaky := &stubAgent{
		tools: []string{"stock_info"},
		execute: func(_ context.Context, _ *models.Task, _ map[string]any) (any, error) {
			attempts++
			if attempts <= 2 {
				return nil, errors.New("connection timeout to quote provider")
			}

			return map[string]any{"price": 187.5}, nil
		},
	}

	engine := NewEngine(testLogger(), stubRegistry(map[string]protocol.Agent{"stock_selection": flaky}),
		&stubClassifier{complexity: models.ComplexityComplex},
		&stubPlanner{plans: [][]protocol.TaskSpec{singleTaskPlan("stock_selection", "stock_info")}},
		&stubSynthesizer{answer: "answer"},
	)

	state, err := engine.Invoke(context.Background(), "AAPL price", "")

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, models.TaskStatusCompleted, state.Tasks[0].Status)

	// Two retry markers plus the originating record; repeated identical
	// failures refresh that record instead of appending new ones.
	assert.Equal(t, 2, countErrors(state, models.ErrorTypeRetryAttempt))
	assert.Equal(t, 1, countErrors(state, models.ErrorTypeNetwork))
	assert.Equal(t, 2, state.LatestFailureFor("task_1").RetryCount)
}

func TestEngine_TransientFailureRetriesExhausted(t *testing.T) {
	alwaysDown := &stubAgent{
		tools: []string{"stock_info"},
		execute: func(_ context.Context, _ *models.Task, _ map[string]any) (any, error) {
			return nil, errors.New("connection timeout to quote provider")
		},
	}

	engine := NewEngine(testLogger(), stubRegistry(map[string]protocol.Agent{"stock_selection": alwaysDown}),
		&stubClassifier{complexity: models.ComplexityComplex},
		&stubPlanner{plans: [][]protocol.TaskSpec{singleTaskPlan("stock_selection", "stock_info")}},
		&stubSynthesizer{answer: "answer"},
	)

	state, err := engine.Invoke(context.Background(), "AAPL price", "")

	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, state.Tasks[0].Status)
	assert.Equal(t, 3, countErrors(state, models.ErrorTypeRetryAttempt))
	assert.Equal(t, 1, countErrors(state, models.ErrorTypeForcedCompletion))
	assert.NotEmpty(t, state.FinalAnswer)
}

func TestEngine_InvalidInputTriggersReplan(t *testing.T) {
	badSymbol := &stubAgent{
		tools: []string{"stock_info"},
		execute: func(_ context.Context, task *models.Task, _ map[string]any) (any, error) {
			if task.TaskID == "task_1" {
				return nil, errors.New("invalid stock symbol 'XYZQ': not found")
			}

			return "data", nil
		},
	}

	firstPlan := []protocol.TaskSpec{
		{TaskID: "task_1", Agent: "stock_selection", Tool: "stock_info", Inputs: map[string]any{"symbol": "XYZQ"}},
		{TaskID: "task_2", Agent: "stock_selection", Tool: "stock_info", Inputs: map[string]any{"symbol": "AAPL"}},
	}
	secondPlan := []protocol.TaskSpec{
		{TaskID: "task_3", Agent: "stock_selection", Tool: "stock_info", Inputs: map[string]any{"symbol": "AAPL"}},
	}

	planner := &stubPlanner{plans: [][]protocol.TaskSpec{firstPlan, secondPlan}}

	engine := NewEngine(testLogger(), stubRegistry(map[string]protocol.Agent{"stock_selection": badSymbol}),
		&stubClassifier{complexity: models.ComplexityComplex},
		planner,
		&stubSynthesizer{answer: "answer"},
	)

	state, err := engine.Invoke(context.Background(), "compare XYZQ and AAPL", "")

	require.NoError(t, err)
	assert.Equal(t, 2, planner.calls)
	assert.Equal(t, 1, countErrors(state, models.ErrorTypeReplanTriggered))
	require.Len(t, state.Tasks, 1)
	assert.Equal(t, "task_3", state.Tasks[0].TaskID)
	assert.Equal(t, models.TaskStatusCompleted, state.Tasks[0].Status)
	assert.Equal(t, "answer", state.FinalAnswer)
}

func TestEngine_RepeatedAuthFailuresForceCompletion(t *testing.T) {
	locked := &stubAgent{
		tools: []string{"news_query"},
		execute: func(_ context.Context, _ *models.Task, _ map[string]any) (any, error) {
			return nil, errors.New("401 unauthorized: bad api key")
		},
	}

	plan := []protocol.TaskSpec{
		{TaskID: "task_1", Agent: "news", Tool: "news_query"},
		{TaskID: "task_2", Agent: "news", Tool: "news_query"},
		{TaskID: "task_3", Agent: "news", Tool: "news_query"},
	}

	engine := NewEngine(testLogger(), stubRegistry(map[string]protocol.Agent{"news": locked}),
		&stubClassifier{complexity: models.ComplexityComplex},
		&stubPlanner{plans: [][]protocol.TaskSpec{plan}},
		&stubSynthesizer{answer: "partial answer"},
	)

	state, err := engine.Invoke(context.Background(), "latest market news", "")

	require.NoError(t, err)

	for _, task := range state.Tasks {
		assert.Equal(t, models.TaskStatusFailed, task.Status)
	}

	assert.Equal(t, 2, countErrors(state, models.ErrorTypeAuth))
	assert.Equal(t, 1, countErrors(state, models.ErrorTypeTaskSkipped))
	assert.Equal(t, 1, countErrors(state, models.ErrorTypeForcedCompletion))
	assert.Equal(t, "partial answer", state.FinalAnswer)
}

func TestEngine_StalledDependentsForceCompletion(t *testing.T) {
	broken := &stubAgent{
		tools: []string{"stock_info"},
		execute: func(_ context.Context, task *models.Task, _ map[string]any) (any, error) {
			if task.TaskID == "task_1" {
				return nil, errors.New("something odd happened")
			}

			return "data", nil
		},
	}

	dep := "task_1"
	plan := []protocol.TaskSpec{
		{TaskID: "task_1", Agent: "stock_selection", Tool: "stock_info"},
		{TaskID: "task_2", Agent: "stock_selection", Tool: "stock_info", DependsOn: &dep},
	}

	engine := NewEngine(testLogger(), stubRegistry(map[string]protocol.Agent{"stock_selection": broken}),
		&stubClassifier{complexity: models.ComplexityComplex},
		&stubPlanner{plans: [][]protocol.TaskSpec{plan}},
		&stubSynthesizer{answer: "answer"},
	)

	state, err := engine.Invoke(context.Background(), "analyze AAPL", "")

	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, state.Tasks[0].Status)
	assert.Equal(t, models.TaskStatusFailed, state.Tasks[1].Status)
	assert.Equal(t, 1, countErrors(state, models.ErrorTypeTaskSkipped))
	assert.Equal(t, 1, countErrors(state, models.ErrorTypeForcedCompletion))
	assert.NotEmpty(t, state.FinalAnswer)
}

func TestEngine_SynthesisFailureUsesDeterministicSummary(t *testing.T) {
	reg := stubRegistry(map[string]protocol.Agent{"knowledge": echoAgent("knowledge_query")})

	engine := NewEngine(testLogger(), reg,
		&stubClassifier{complexity: models.ComplexitySimple},
		&stubPlanner{},
		&stubSynthesizer{err: errors.New("renderer crashed")},
	)

	state, err := engine.Invoke(context.Background(), "what is a P/E ratio", "")

	require.NoError(t, err)
	assert.Equal(t, 1, countErrors(state, models.ErrorTypeSynthesis))
	assert.Contains(t, state.FinalAnswer, "Partial analysis")
}

func TestEngine_StreamEmitsUpdatesAndCloses(t *testing.T) {
	reg := stubRegistry(map[string]protocol.Agent{"knowledge": echoAgent("knowledge_query")})

	engine := NewEngine(testLogger(), reg,
		&stubClassifier{complexity: models.ComplexitySimple},
		&stubPlanner{},
		&stubSynthesizer{answer: "streamed answer"},
	)

	updates, err := engine.Stream(context.Background(), "what is a P/E ratio", "")
	require.NoError(t, err)

	var collected []StepUpdate
	for update := range updates {
		collected = append(collected, update)
	}

	require.NotEmpty(t, collected)
	assert.Equal(t, PhaseRouting, collected[0].Phase)

	last := collected[len(collected)-1]
	assert.Equal(t, PhaseSynthesizing, last.Phase)
	assert.Equal(t, "streamed answer", last.State.FinalAnswer)

	// Snapshots must be isolated from each other.
	assert.NotSame(t, collected[0].State, last.State)
}

func TestEngine_StreamRejectsEmptyQuery(t *testing.T) {
	engine := NewEngine(testLogger(), stubRegistry(nil),
		&stubClassifier{complexity: models.ComplexitySimple},
		&stubPlanner{},
		&stubSynthesizer{answer: "a"},
	)

	_, err := engine.Stream(context.Background(), "", "")
	assert.Error(t, err)
}

func TestEngine_ResumeContinuesFromCheckpoint(t *testing.T) {
	store := file.NewStore(t.TempDir())
	reg := stubRegistry(map[string]protocol.Agent{"knowledge": echoAgent("knowledge_query")})

	engine := NewEngine(testLogger(), reg,
		&stubClassifier{complexity: models.ComplexityComplex},
		&stubPlanner{plans: [][]protocol.TaskSpec{singleTaskPlan("knowledge", "knowledge_query")}},
		&stubSynthesizer{answer: "resumed answer"},
		WithCheckpointStore(store),
	)

	// Simulate a session abandoned after planning.
	interrupted := models.NewWorkflowState("analyze AAPL", "session-resume")
	interrupted.Complexity = models.ComplexityComplex
	interrupted.Tasks = []*models.Task{
		{TaskID: "task_1", Agent: "knowledge", Tool: "knowledge_query", Inputs: map[string]any{"query": "q"}, Status: models.TaskStatusRunning},
	}
	require.NoError(t, store.SaveState(context.Background(), interrupted))

	state, err := engine.Resume(context.Background(), "session-resume")

	require.NoError(t, err)
	assert.Equal(t, "resumed answer", state.FinalAnswer)
	assert.Equal(t, models.TaskStatusCompleted, state.Tasks[0].Status)

	// The finished state is checkpointed.
	persisted, err := store.LoadState(context.Background(), "session-resume")
	require.NoError(t, err)
	assert.True(t, persisted.Terminal())
}

func TestEngine_ResumeFinishedSessionIsIdempotent(t *testing.T) {
	store := file.NewStore(t.TempDir())

	engine := NewEngine(testLogger(), stubRegistry(nil),
		&stubClassifier{complexity: models.ComplexitySimple},
		&stubPlanner{},
		&stubSynthesizer{answer: "a"},
		WithCheckpointStore(store),
	)

	finished := models.NewWorkflowState("q", "session-done")
	finished.Complexity = models.ComplexitySimple
	finished.FinalAnswer = "already answered"
	require.NoError(t, store.SaveState(context.Background(), finished))

	state, err := engine.Resume(context.Background(), "session-done")

	require.NoError(t, err)
	assert.Equal(t, "already answered", state.FinalAnswer)
}

func TestEngine_ResumeUnknownSession(t *testing.T) {
	store := file.NewStore(t.TempDir())

	engine := NewEngine(testLogger(), stubRegistry(nil),
		&stubClassifier{complexity: models.ComplexitySimple},
		&stubPlanner{},
		&stubSynthesizer{answer: "a"},
		WithCheckpointStore(store),
	)

	_, err := engine.Resume(context.Background(), "missing")
	assert.Error(t, err)
}

func TestEngine_StepBoundForcesCompletion(t *testing.T) {
	// A planner that always replans on invalid input would loop
	// forever without the step bound.
	badSymbol := &stubAgent{
		tools: []string{"stock_info"},
		execute: func(_ context.Context, _ *models.Task, _ map[string]any) (any, error) {
			return nil, errors.New("invalid stock symbol 'XYZQ': not found")
		},
	}

	plan := []protocol.TaskSpec{
		{TaskID: "task_1", Agent: "stock_selection", Tool: "stock_info"},
		{TaskID: "task_2", Agent: "stock_selection", Tool: "stock_info"},
	}

	engine := NewEngine(testLogger(), stubRegistry(map[string]protocol.Agent{"stock_selection": badSymbol}),
		&stubClassifier{complexity: models.ComplexityComplex},
		&stubPlanner{plans: [][]protocol.TaskSpec{plan, plan, plan, plan, plan, plan, plan, plan}},
		&stubSynthesizer{answer: "bounded"},
		WithMaxSteps(12),
	)

	state, err := engine.Invoke(context.Background(), "compare XYZQ and AAPL", "")

	require.NoError(t, err)
	assert.True(t, state.Terminal())
	assert.GreaterOrEqual(t, countErrors(state, models.ErrorTypeForcedCompletion), 1)
}
