// Package web provides HTTP request and response types for the session API.
package web

import "github.com/quantarc/finflow/pkg/models"

// SubmitQueryRequest represents the request body for submitting a query.
// SessionID is optional; when set it becomes the checkpoint key.
type SubmitQueryRequest struct {
	Query     string `json:"query"                validate:"required,min=3"`
	SessionID string `json:"session_id,omitempty" validate:"omitempty,uuid4"`
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	SessionID      string                 `json:"session_id"`
	Query          string                 `json:"query"`
	Complexity     models.Complexity      `json:"complexity,omitempty"`
	FinalAnswer    string                 `json:"final_answer,omitempty"`
	Tasks          []*models.Task         `json:"tasks"`
	Results        map[string]any         `json:"results"`
	Errors         []*models.ErrorRecord  `json:"errors"`
	TasksCompleted int                    `json:"tasks_completed"`
	TasksFailed    int                    `json:"tasks_failed"`
	CreatedAt      string                 `json:"created_at"`
	UpdatedAt      string                 `json:"updated_at"`
}

// AgentResponse describes one registered agent.
type AgentResponse struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Tools       []string `json:"tools"`
}

func newSessionResponse(state *models.WorkflowState) SessionResponse {
	return SessionResponse{
		SessionID:      state.SessionID,
		Query:          state.OriginalQuery,
		Complexity:     state.Complexity,
		FinalAnswer:    state.FinalAnswer,
		Tasks:          state.Tasks,
		Results:        state.Results,
		Errors:         state.Errors,
		TasksCompleted: state.CompletedCount(),
		TasksFailed:    state.FailedCount(),
		CreatedAt:      state.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:      state.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
