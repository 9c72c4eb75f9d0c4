package models

// TaskStatus represents the lifecycle state of a single task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Task is one unit of dispatchable work bound to a single capability
// provider (agent + tool pair). Tasks keep their plan order; the
// executor never reorders them.
type Task struct {
	TaskID    string         `json:"task_id"    validate:"required"`
	Agent     string         `json:"agent"      validate:"required"`
	Tool      string         `json:"tool"       validate:"required"`
	Inputs    map[string]any `json:"inputs"`
	DependsOn *string        `json:"depends_on,omitempty"`
	Status    TaskStatus     `json:"status"`
}

// Ready reports whether the task can be dispatched: it is pending and
// its dependency, if any, has a recorded result.
func (t *Task) Ready(results map[string]any) bool {
	if t.Status != TaskStatusPending {
		return false
	}

	if t.DependsOn == nil {
		return true
	}

	_, ok := results[*t.DependsOn]

	return ok
}
