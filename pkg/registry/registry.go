// Package registry provides the capability-provider registry. The
// registry is built once at startup and injected into the engine;
// there is no ambient global lookup.
package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"github.com/quantarc/finflow/pkg/protocol"
)

type Registry struct {
	logger         *slog.Logger
	agentFactories map[string]protocol.AgentFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:         log,
		agentFactories: make(map[string]protocol.AgentFactory),
	}
}

func (r *Registry) RegisterAgent(factory protocol.AgentFactory) {
	r.agentFactories[factory.ID()] = factory
	r.logger.Info("Registered agent", "agent", factory.ID())
}

// CreateAgent instantiates a registered agent after validating its
// configuration against the factory's JSON schema.
func (r *Registry) CreateAgent(agentName string, config map[string]any) (protocol.Agent, error) {
	factory, ok := r.agentFactories[agentName]
	if !ok {
		return nil, fmt.Errorf("agent '%s' not registered", agentName)
	}

	if err := r.validateConfig(factory, config); err != nil {
		return nil, fmt.Errorf("invalid configuration for agent '%s': %w", agentName, err)
	}

	return factory.Create(config)
}

// AvailableAgents returns the registered agent names, sorted.
func (r *Registry) AvailableAgents() []string {
	names := make([]string, 0, len(r.agentFactories))
	for name := range r.agentFactories {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// AgentFactory returns the factory for the given agent name.
func (r *Registry) AgentFactory(agentName string) (protocol.AgentFactory, bool) {
	factory, ok := r.agentFactories[agentName]

	return factory, ok
}

// Capabilities returns the tool names each registered agent accepts.
func (r *Registry) Capabilities() (map[string][]string, error) {
	capabilities := make(map[string][]string, len(r.agentFactories))

	for name, factory := range r.agentFactories {
		agent, err := factory.Create(map[string]any{})
		if err != nil {
			return nil, fmt.Errorf("failed to inspect agent '%s': %w", name, err)
		}

		capabilities[name] = agent.Tools()
	}

	return capabilities, nil
}

func (r *Registry) validateConfig(factory protocol.AgentFactory, config map[string]any) error {
	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		for _, validationError := range result.Errors() {
			return fmt.Errorf("config validation failed: %s", validationError.String())
		}
	}

	return nil
}
