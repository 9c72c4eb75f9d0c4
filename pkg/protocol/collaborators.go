package protocol

import (
	"context"

	"github.com/quantarc/finflow/pkg/models"
)

// Classifier labels a query's complexity. The engine defaults to
// COMPLEX when the collaborator errors or returns an unknown label.
type Classifier interface {
	Classify(ctx context.Context, query string) (models.Complexity, error)
}

// TaskSpec is the planner's wire-level task description, accepted into
// the plan only after validation.
type TaskSpec struct {
	TaskID    string         `json:"task_id"    validate:"required"`
	Agent     string         `json:"agent"      validate:"required"`
	Tool      string         `json:"tool"       validate:"required"`
	Inputs    map[string]any `json:"inputs"`
	DependsOn *string        `json:"depends_on,omitempty"`
}

// Planner decomposes a query into an ordered task list.
type Planner interface {
	Plan(ctx context.Context, query string) ([]TaskSpec, error)
}

// Synthesizer turns a terminal WorkflowState into the final answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, state *models.WorkflowState) (string, error)
}
