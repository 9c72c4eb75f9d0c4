// Package models defines the core domain models for analytical workflow orchestration.
package models

import "time"

// Complexity is the router's classification of a query.
type Complexity string

const (
	ComplexitySimple  Complexity = "SIMPLE"
	ComplexityComplex Complexity = "COMPLEX"
	ComplexityOOS     Complexity = "OOS"
	ComplexityUnset   Complexity = ""
)

// WorkflowState holds everything known about one analytical session.
// It is owned exclusively by a single control loop for the duration of
// a step; a session must be driven by at most one active loop at a time.
type WorkflowState struct {
	OriginalQuery string         `json:"original_query"`
	SessionID     string         `json:"session_id"`
	Complexity    Complexity     `json:"complexity,omitempty"`
	Tasks         []*Task        `json:"tasks"`
	Results       map[string]any `json:"results"`
	Errors        []*ErrorRecord `json:"errors"`
	FinalAnswer   string         `json:"final_answer,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewWorkflowState creates the initial state for a session.
func NewWorkflowState(query, sessionID string) *WorkflowState {
	now := time.Now().UTC()

	return &WorkflowState{
		OriginalQuery: query,
		SessionID:     sessionID,
		Tasks:         make([]*Task, 0),
		Results:       make(map[string]any),
		Errors:        make([]*ErrorRecord, 0),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Touch updates the modification timestamp.
func (s *WorkflowState) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// TaskByID returns the task with the given id, or nil.
func (s *WorkflowState) TaskByID(taskID string) *Task {
	for _, task := range s.Tasks {
		if task.TaskID == taskID {
			return task
		}
	}

	return nil
}

// PendingTasks returns the pending tasks in plan order.
func (s *WorkflowState) PendingTasks() []*Task {
	pending := make([]*Task, 0)

	for _, task := range s.Tasks {
		if task.Status == TaskStatusPending {
			pending = append(pending, task)
		}
	}

	return pending
}

// NextReadyTask returns the first pending task whose dependency, if
// any, already has a result. Plan order is the tie-break order.
func (s *WorkflowState) NextReadyTask() *Task {
	for _, task := range s.Tasks {
		if task.Ready(s.Results) {
			return task
		}
	}

	return nil
}

// MarkTaskCompleted records a successful result for the task.
func (s *WorkflowState) MarkTaskCompleted(taskID string, result any) {
	if task := s.TaskByID(taskID); task != nil {
		task.Status = TaskStatusCompleted
	}

	if s.Results == nil {
		s.Results = make(map[string]any)
	}

	s.Results[taskID] = result
	s.Touch()
}

// MarkTaskFailed flips the task to failed.
func (s *WorkflowState) MarkTaskFailed(taskID string) {
	if task := s.TaskByID(taskID); task != nil {
		task.Status = TaskStatusFailed
	}

	s.Touch()
}

// AddError appends a record to the error log and returns it.
func (s *WorkflowState) AddError(record *ErrorRecord) *ErrorRecord {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	s.Errors = append(s.Errors, record)
	s.Touch()

	return record
}

// RecordFailure logs a classified provider failure for a task. A repeat
// of the same failure on a retried task refreshes the originating
// record instead of appending a new one, so the record's RetryCount
// keeps counting across attempts and the retry bound holds.
func (s *WorkflowState) RecordFailure(task *Task, errType ErrorType, message string) *ErrorRecord {
	if existing := s.LatestFailureFor(task.TaskID); existing != nil && existing.ErrorType == errType {
		existing.ErrorMessage = message
		existing.Timestamp = time.Now().UTC()
		s.Touch()

		return existing
	}

	return s.AddError(&ErrorRecord{
		TaskID:       task.TaskID,
		Agent:        task.Agent,
		Tool:         task.Tool,
		ErrorType:    errType,
		ErrorMessage: message,
	})
}

// LatestFailure returns the most recent provider failure record, or nil.
func (s *WorkflowState) LatestFailure() *ErrorRecord {
	for i := len(s.Errors) - 1; i >= 0; i-- {
		if s.Errors[i].ErrorType.IsProviderFailure() {
			return s.Errors[i]
		}
	}

	return nil
}

// LatestFailureFor returns the most recent provider failure record for
// the given task, or nil.
func (s *WorkflowState) LatestFailureFor(taskID string) *ErrorRecord {
	for i := len(s.Errors) - 1; i >= 0; i-- {
		if s.Errors[i].TaskID == taskID && s.Errors[i].ErrorType.IsProviderFailure() {
			return s.Errors[i]
		}
	}

	return nil
}

// ErrorCountByType counts provider failures of the given type.
func (s *WorkflowState) ErrorCountByType(errType ErrorType) int {
	count := 0

	for _, record := range s.Errors {
		if record.ErrorType == errType {
			count++
		}
	}

	return count
}

// CompletedCount returns the number of completed tasks.
func (s *WorkflowState) CompletedCount() int {
	count := 0

	for _, task := range s.Tasks {
		if task.Status == TaskStatusCompleted {
			count++
		}
	}

	return count
}

// FailedCount returns the number of failed tasks.
func (s *WorkflowState) FailedCount() int {
	count := 0

	for _, task := range s.Tasks {
		if task.Status == TaskStatusFailed {
			count++
		}
	}

	return count
}

// Terminal reports whether the session already carries a final answer.
func (s *WorkflowState) Terminal() bool {
	return s.FinalAnswer != ""
}

// Clone returns a deep copy of the state, used for snapshots handed to
// stream consumers so the control loop keeps exclusive ownership of the
// live state.
func (s *WorkflowState) Clone() *WorkflowState {
	clone := *s

	clone.Tasks = make([]*Task, len(s.Tasks))
	for i, task := range s.Tasks {
		taskCopy := *task
		if task.DependsOn != nil {
			dep := *task.DependsOn
			taskCopy.DependsOn = &dep
		}

		if task.Inputs != nil {
			taskCopy.Inputs = make(map[string]any, len(task.Inputs))
			for k, v := range task.Inputs {
				taskCopy.Inputs[k] = v
			}
		}

		clone.Tasks[i] = &taskCopy
	}

	clone.Results = make(map[string]any, len(s.Results))
	for k, v := range s.Results {
		clone.Results[k] = v
	}

	clone.Errors = make([]*ErrorRecord, len(s.Errors))
	for i, record := range s.Errors {
		recordCopy := *record
		clone.Errors[i] = &recordCopy
	}

	return &clone
}
