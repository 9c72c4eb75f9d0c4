// Package planner provides the default query decomposition planner.
package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/quantarc/finflow/pkg/agents"
	"github.com/quantarc/finflow/pkg/protocol"
)

var tickerPattern = regexp.MustCompile(`\b[A-Z]{2,5}\b`)

// Heuristic decomposes a query into a dependency-ordered task list by
// spotting tickers and intent keywords. It stands in for the LLM
// planner of the production system.
type Heuristic struct{}

func New() protocol.Planner {
	return &Heuristic{}
}

func (h *Heuristic) Plan(_ context.Context, query string) ([]protocol.TaskSpec, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, fmt.Errorf("cannot plan empty query")
	}

	lowered := strings.ToLower(trimmed)
	symbols := tickerPattern.FindAllString(trimmed, 4)

	tasks := make([]protocol.TaskSpec, 0, 4)

	for i, symbol := range symbols {
		tasks = append(tasks, protocol.TaskSpec{
			TaskID: fmt.Sprintf("task_%d", i+1),
			Agent:  agents.AgentStockSelection,
			Tool:   agents.ToolStockInfo,
			Inputs: map[string]any{"symbol": symbol},
		})
	}

	if strings.Contains(lowered, "screen") || strings.Contains(lowered, "find") ||
		strings.Contains(lowered, "undervalued") {
		tasks = append(tasks, protocol.TaskSpec{
			TaskID: fmt.Sprintf("task_%d", len(tasks)+1),
			Agent:  agents.AgentStockSelection,
			Tool:   agents.ToolStockScreener,
			Inputs: map[string]any{"criteria": trimmed},
		})
	}

	if strings.Contains(lowered, "news") || strings.Contains(lowered, "announcement") {
		topic := trimmed
		if len(symbols) > 0 {
			topic = symbols[0]
		}

		tasks = append(tasks, protocol.TaskSpec{
			TaskID: fmt.Sprintf("task_%d", len(tasks)+1),
			Agent:  agents.AgentNews,
			Tool:   agents.ToolNewsQuery,
			Inputs: map[string]any{"topic": topic},
		})
	}

	if len(tasks) == 0 {
		// No recognizable structure; route the whole query to the
		// knowledge provider.
		tasks = append(tasks, protocol.TaskSpec{
			TaskID: "task_1",
			Agent:  agents.AgentKnowledge,
			Tool:   agents.ToolKnowledgeQuery,
			Inputs: map[string]any{"query": trimmed},
		})
	}

	// Recommendation queries get a final task fed by the first data task.
	if strings.Contains(lowered, "recommend") || strings.Contains(lowered, "should i buy") {
		first := tasks[0].TaskID
		tasks = append(tasks, protocol.TaskSpec{
			TaskID:    fmt.Sprintf("task_%d", len(tasks)+1),
			Agent:     agents.AgentRecommendation,
			Tool:      agents.ToolResearchReport,
			Inputs:    map[string]any{"query": trimmed},
			DependsOn: &first,
		})
	}

	return tasks, nil
}
