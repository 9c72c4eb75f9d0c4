package registry

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantarc/finflow/pkg/models"
	"github.com/quantarc/finflow/pkg/protocol"
)

type fakeAgent struct{}

func (a *fakeAgent) Execute(_ context.Context, _ *models.Task, _ map[string]any) (any, error) {
	return "ok", nil
}

func (a *fakeAgent) Tools() []string {
	return []string{"lookup"}
}

type fakeFactory struct {
	id     string
	schema map[string]any
}

func (f *fakeFactory) Create(_ map[string]any) (protocol.Agent, error) { return &fakeAgent{}, nil }
func (f *fakeFactory) ID() string                                      { return f.id }
func (f *fakeFactory) Description() string                             { return "fake" }
func (f *fakeFactory) Schema() map[string]any                          { return f.schema }

func newTestRegistry() *Registry {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	return NewRegistry(logger)
}

func TestCreateAgent(t *testing.T) {
	reg := newTestRegistry()
	reg.RegisterAgent(&fakeFactory{id: "alpha"})

	agent, err := reg.CreateAgent("alpha", map[string]any{})

	require.NoError(t, err)
	assert.Equal(t, []string{"lookup"}, agent.Tools())
}

func TestCreateAgent_NotRegistered(t *testing.T) {
	reg := newTestRegistry()

	_, err := reg.CreateAgent("ghost", map[string]any{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestCreateAgent_SchemaValidation(t *testing.T) {
	reg := newTestRegistry()
	reg.RegisterAgent(&fakeFactory{
		id: "strict",
		schema: map[string]any{
			"type":     "object",
			"required": []string{"region"},
			"properties": map[string]any{
				"region": map[string]any{"type": "string"},
			},
		},
	})

	_, err := reg.CreateAgent("strict", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	_, err = reg.CreateAgent("strict", map[string]any{"region": "us-east"})
	assert.NoError(t, err)
}

func TestAvailableAgents_Sorted(t *testing.T) {
	reg := newTestRegistry()
	reg.RegisterAgent(&fakeFactory{id: "zeta"})
	reg.RegisterAgent(&fakeFactory{id: "alpha"})
	reg.RegisterAgent(&fakeFactory{id: "mid"})

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.AvailableAgents())
}

func TestCapabilities(t *testing.T) {
	reg := newTestRegistry()
	reg.RegisterAgent(&fakeFactory{id: "alpha"})

	capabilities, err := reg.Capabilities()

	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"alpha": {"lookup"}}, capabilities)
}
