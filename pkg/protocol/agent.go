// Package protocol defines the contracts between the orchestration
// engine and its pluggable collaborators.
package protocol

import (
	"context"

	"github.com/quantarc/finflow/pkg/models"
)

// Agent is a capability provider. Execute performs the work for one
// task; inputs already contain the dependency result and session id.
// A returned error is classified by the engine, never propagated.
type Agent interface {
	Execute(ctx context.Context, task *models.Task, inputs map[string]any) (any, error)

	// Tools returns the tool names this agent accepts.
	Tools() []string
}

// AgentFactory creates agent instances and describes the agent type.
type AgentFactory interface {
	Create(config map[string]any) (Agent, error)

	// ID returns the agent name used in task plans.
	ID() string

	// Description returns a short description of the agent's capabilities.
	Description() string

	// Schema returns the JSON schema for this agent's configuration.
	Schema() map[string]any
}
