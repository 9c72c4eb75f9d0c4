// Package workflow implements the orchestration loop: routing,
// planning, dependency-ordered task execution, failure remediation and
// final synthesis.
package workflow

import (
	"strings"

	"github.com/quantarc/finflow/pkg/models"
)

// errorSignature pairs an error type with the lowercase keywords that
// identify it in raw error text.
type errorSignature struct {
	errType  models.ErrorType
	keywords []string
}

// errorSignatures is checked in order; the first type with a matching
// keyword wins, so transient infrastructure failures take precedence
// over the broader provider and model categories.
var errorSignatures = []errorSignature{
	{models.ErrorTypeNetwork, []string{"timeout", "connection", "network"}},
	{models.ErrorTypeRateLimit, []string{"rate limit", "quota", "too many requests"}},
	{models.ErrorTypeAuth, []string{"unauthorized", "auth", "api key"}},
	{models.ErrorTypeInvalidInput, []string{"invalid", "not found", "does not exist"}},
	{models.ErrorTypeAgent, []string{"agent", "tool"}},
	{models.ErrorTypeLLM, []string{"hallucination", "format", "parsing"}},
}

// ClassifyError maps a raw task failure onto the error taxonomy by
// keyword matching against the error text. Unmatched errors classify
// as UNKNOWN_ERROR.
func ClassifyError(err error) models.ErrorType {
	if err == nil {
		return models.ErrorTypeUnknown
	}

	text := strings.ToLower(err.Error())

	for _, sig := range errorSignatures {
		for _, keyword := range sig.keywords {
			if strings.Contains(text, keyword) {
				return sig.errType
			}
		}
	}

	return models.ErrorTypeUnknown
}
