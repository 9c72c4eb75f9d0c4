// Package classifier provides the default query complexity classifier.
// The production system fronts this with a language model; the engine
// only sees the Classifier contract either way.
package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/quantarc/finflow/pkg/models"
	"github.com/quantarc/finflow/pkg/protocol"
)

var financialKeywords = []string{
	"stock", "share", "price", "market", "p/e", "pe ratio", "valuation",
	"dividend", "earnings", "invest", "portfolio", "ticker", "etf",
	"news", "announcement", "research report", "analyst", "finance",
	"financial", "undervalued", "cap", "beta",
}

var complexKeywords = []string{
	"compare", "versus", " vs ", " and ", "analyze", "analyse",
	"find", "screen", "which", "relationship", "correlat",
}

type Keyword struct{}

// New creates the keyword-based classifier.
func New() protocol.Classifier {
	return &Keyword{}
}

// Classify labels a query SIMPLE, COMPLEX or OOS. Queries with no
// recognizable financial vocabulary are out of scope; multi-step
// phrasing upgrades a financial query to COMPLEX.
func (k *Keyword) Classify(_ context.Context, query string) (models.Complexity, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return models.ComplexityUnset, fmt.Errorf("cannot classify empty query")
	}

	lowered := strings.ToLower(trimmed)

	financial := false

	for _, keyword := range financialKeywords {
		if strings.Contains(lowered, keyword) {
			financial = true

			break
		}
	}

	if !financial {
		return models.ComplexityOOS, nil
	}

	for _, keyword := range complexKeywords {
		if strings.Contains(lowered, keyword) {
			return models.ComplexityComplex, nil
		}
	}

	return models.ComplexitySimple, nil
}
