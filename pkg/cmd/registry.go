// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/quantarc/finflow/pkg/agents"
	"github.com/quantarc/finflow/pkg/registry"
)

// NewRegistry builds the agent registry with all native agents
// registered.
func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)

	for _, factory := range agents.All() {
		reg.RegisterAgent(factory)
	}

	return reg
}
