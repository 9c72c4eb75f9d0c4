package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string {
	return &s
}

func TestNewWorkflowState(t *testing.T) {
	state := NewWorkflowState("what is AAPL trading at", "session-1")

	assert.Equal(t, "what is AAPL trading at", state.OriginalQuery)
	assert.Equal(t, "session-1", state.SessionID)
	assert.Empty(t, state.Tasks)
	assert.Empty(t, state.Errors)
	assert.NotNil(t, state.Results)
	assert.False(t, state.Terminal())
}

func TestNextReadyTask_DependencyOrder(t *testing.T) {
	state := NewWorkflowState("q", "s")
	state.Tasks = []*Task{
		{TaskID: "task_1", Agent: "news", Tool: "news_query", Status: TaskStatusPending},
		{TaskID: "task_2", Agent: "recommendation", Tool: "research_report", DependsOn: strPtr("task_1"), Status: TaskStatusPending},
	}

	ready := state.NextReadyTask()
	require.NotNil(t, ready)
	assert.Equal(t, "task_1", ready.TaskID)

	// Dependent is not ready until the dependency has a result.
	state.Tasks[0].Status = TaskStatusFailed
	assert.Nil(t, state.NextReadyTask())

	state.Tasks[0].Status = TaskStatusPending
	state.MarkTaskCompleted("task_1", "headline digest")

	ready = state.NextReadyTask()
	require.NotNil(t, ready)
	assert.Equal(t, "task_2", ready.TaskID)
}

func TestRecordFailure_RefreshesSameType(t *testing.T) {
	state := NewWorkflowState("q", "s")
	task := &Task{TaskID: "task_1", Agent: "news", Tool: "news_query", Status: TaskStatusPending}
	state.Tasks = []*Task{task}

	first := state.RecordFailure(task, ErrorTypeNetwork, "connection refused")
	first.RetryCount = 1

	second := state.RecordFailure(task, ErrorTypeNetwork, "connection timeout")

	assert.Same(t, first, second)
	assert.Equal(t, 1, second.RetryCount)
	assert.Equal(t, "connection timeout", second.ErrorMessage)
	assert.Len(t, state.Errors, 1)
}

func TestRecordFailure_NewTypeAppends(t *testing.T) {
	state := NewWorkflowState("q", "s")
	task := &Task{TaskID: "task_1", Agent: "news", Tool: "news_query", Status: TaskStatusPending}
	state.Tasks = []*Task{task}

	state.RecordFailure(task, ErrorTypeNetwork, "connection refused")
	record := state.RecordFailure(task, ErrorTypeRateLimit, "rate limit exceeded")

	assert.Len(t, state.Errors, 2)
	assert.Equal(t, 0, record.RetryCount)
}

func TestLatestFailure_SkipsMarkers(t *testing.T) {
	state := NewWorkflowState("q", "s")
	task := &Task{TaskID: "task_1", Agent: "news", Tool: "news_query"}
	state.Tasks = []*Task{task}

	failure := state.RecordFailure(task, ErrorTypeNetwork, "timeout")
	state.AddError(&ErrorRecord{TaskID: "task_1", ErrorType: ErrorTypeRetryAttempt, ErrorMessage: "retry 1"})

	assert.Same(t, failure, state.LatestFailure())
	assert.Same(t, failure, state.LatestFailureFor("task_1"))
}

func TestClone_DeepCopies(t *testing.T) {
	state := NewWorkflowState("q", "s")
	state.Tasks = []*Task{{
		TaskID: "task_1",
		Agent:  "news",
		Tool:   "news_query",
		Inputs: map[string]any{"query": "q"},
		Status: TaskStatusPending,
	}}
	state.MarkTaskCompleted("task_1", "result")
	state.RecordFailure(state.Tasks[0], ErrorTypeUnknown, "boom")

	clone := state.Clone()

	clone.Tasks[0].Status = TaskStatusFailed
	clone.Tasks[0].Inputs["query"] = "changed"
	clone.Results["task_1"] = "changed"
	clone.Errors[0].RetryCount = 9

	assert.Equal(t, TaskStatusCompleted, state.Tasks[0].Status)
	assert.Equal(t, "q", state.Tasks[0].Inputs["query"])
	assert.Equal(t, "result", state.Results["task_1"])
	assert.Equal(t, 0, state.Errors[0].RetryCount)
}

func TestTaskReady(t *testing.T) {
	results := map[string]any{"task_1": "done"}

	task := &Task{TaskID: "task_2", Status: TaskStatusPending, DependsOn: strPtr("task_1")}
	assert.True(t, task.Ready(results))

	task.DependsOn = strPtr("task_9")
	assert.False(t, task.Ready(results))

	task.DependsOn = nil
	task.Status = TaskStatusCompleted
	assert.False(t, task.Ready(results))
}
