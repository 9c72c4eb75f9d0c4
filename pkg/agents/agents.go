// Package agents provides the built-in capability providers for the
// financial analysis domain. Providers simulate their data sources; the
// engine treats them as opaque collaborators either way.
package agents

import (
	"context"
	"fmt"
	"sort"

	"github.com/quantarc/finflow/pkg/models"
	"github.com/quantarc/finflow/pkg/protocol"
)

// Agent names used in task plans.
const (
	AgentStockSelection = "stock_selection"
	AgentNews           = "news"
	AgentKnowledge      = "knowledge"
	AgentDiagnosis      = "diagnosis"
	AgentPrediction     = "prediction"
	AgentRecommendation = "recommendation"
)

// Tool names.
const (
	ToolStockInfo         = "stock_info"
	ToolStockScreener     = "stock_screener"
	ToolNewsQuery         = "news_query"
	ToolAnnouncementQuery = "announcement_query"
	ToolResearchReport    = "research_report"
	ToolKnowledgeQuery    = "knowledge_query"
)

type toolFunc func(inputs map[string]any) (any, error)

// agent dispatches a task to one of its tools. Each agent carries a
// fixed capability set; asking for a tool outside it is a provider
// failure, not a panic.
type agent struct {
	name  string
	tools map[string]toolFunc
}

func (a *agent) Execute(ctx context.Context, task *models.Task, inputs map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("agent %s cancelled: %w", a.name, err)
	}

	tool, ok := a.tools[task.Tool]
	if !ok {
		return nil, fmt.Errorf("tool '%s' not available on agent '%s'", task.Tool, a.name)
	}

	return tool(inputs)
}

func (a *agent) Tools() []string {
	names := make([]string, 0, len(a.tools))
	for name := range a.tools {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// factory is the shared AgentFactory implementation for built-in agents.
type factory struct {
	id          string
	description string
	tools       map[string]toolFunc
}

func (f *factory) Create(_ map[string]any) (protocol.Agent, error) {
	return &agent{name: f.id, tools: f.tools}, nil
}

func (f *factory) ID() string {
	return f.id
}

func (f *factory) Description() string {
	return f.description
}

func (f *factory) Schema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": true,
	}
}

// NewStockSelectionAgentFactory creates the stock screening provider.
func NewStockSelectionAgentFactory() protocol.AgentFactory {
	return &factory{
		id:          AgentStockSelection,
		description: "Looks up individual stocks and screens the market by criteria",
		tools: map[string]toolFunc{
			ToolStockInfo:     stockInfo,
			ToolStockScreener: stockScreener,
		},
	}
}

// NewNewsAgentFactory creates the news and filings provider.
func NewNewsAgentFactory() protocol.AgentFactory {
	return &factory{
		id:          AgentNews,
		description: "Retrieves financial news, company announcements and research reports",
		tools: map[string]toolFunc{
			ToolNewsQuery:         newsQuery,
			ToolAnnouncementQuery: announcementQuery,
			ToolResearchReport:    researchReport,
		},
	}
}

// NewKnowledgeAgentFactory creates the financial knowledge provider. It
// is also the default target of fallback plans.
func NewKnowledgeAgentFactory() protocol.AgentFactory {
	return &factory{
		id:          AgentKnowledge,
		description: "Answers financial concept and methodology questions",
		tools: map[string]toolFunc{
			ToolKnowledgeQuery: knowledgeQuery,
		},
	}
}

// NewDiagnosisAgentFactory creates the stock diagnosis provider.
func NewDiagnosisAgentFactory() protocol.AgentFactory {
	return &factory{
		id:          AgentDiagnosis,
		description: "Combines market data, news and filings into a stock diagnosis",
		tools: map[string]toolFunc{
			ToolStockInfo:         stockInfo,
			ToolNewsQuery:         newsQuery,
			ToolAnnouncementQuery: announcementQuery,
			ToolResearchReport:    researchReport,
		},
	}
}

// NewPredictionAgentFactory creates the price trend provider.
func NewPredictionAgentFactory() protocol.AgentFactory {
	return &factory{
		id:          AgentPrediction,
		description: "Projects price trends from market data and research coverage",
		tools: map[string]toolFunc{
			ToolStockInfo:      stockInfo,
			ToolResearchReport: researchReport,
		},
	}
}

// NewRecommendationAgentFactory creates the recommendation provider,
// which may use every tool.
func NewRecommendationAgentFactory() protocol.AgentFactory {
	return &factory{
		id:          AgentRecommendation,
		description: "Produces buy/hold/sell recommendations from any available data",
		tools: map[string]toolFunc{
			ToolStockInfo:         stockInfo,
			ToolStockScreener:     stockScreener,
			ToolNewsQuery:         newsQuery,
			ToolAnnouncementQuery: announcementQuery,
			ToolResearchReport:    researchReport,
			ToolKnowledgeQuery:    knowledgeQuery,
		},
	}
}

// All returns factories for every built-in agent.
func All() []protocol.AgentFactory {
	return []protocol.AgentFactory{
		NewStockSelectionAgentFactory(),
		NewNewsAgentFactory(),
		NewKnowledgeAgentFactory(),
		NewDiagnosisAgentFactory(),
		NewPredictionAgentFactory(),
		NewRecommendationAgentFactory(),
	}
}
