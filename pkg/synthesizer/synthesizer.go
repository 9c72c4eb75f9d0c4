// Package synthesizer renders the final answer from a terminal
// workflow state.
package synthesizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/quantarc/finflow/pkg/models"
	"github.com/quantarc/finflow/pkg/protocol"
)

// Report builds a structured markdown report: execution summary,
// results grouped by provider, then a transparency section listing what
// failed. Remediation markers are filtered out of the failure section.
type Report struct{}

func New() protocol.Synthesizer {
	return &Report{}
}

func (r *Report) Synthesize(_ context.Context, state *models.WorkflowState) (string, error) {
	if state == nil {
		return "", fmt.Errorf("cannot synthesize nil state")
	}

	var b strings.Builder

	b.WriteString("# Analysis Report\n\n")
	b.WriteString("## Query\n")
	b.WriteString(state.OriginalQuery + "\n\n")

	b.WriteString("## Execution Summary\n")
	writeExecutionSummary(&b, state)

	b.WriteString("\n## Results\n")
	writeResults(&b, state)

	b.WriteString("\n## Limitations\n")
	writeErrorSummary(&b, state)

	return b.String(), nil
}

func writeExecutionSummary(b *strings.Builder, state *models.WorkflowState) {
	if len(state.Tasks) == 0 {
		b.WriteString("Query processed directly.\n")

		return
	}

	fmt.Fprintf(b, "Query decomposed into %d tasks: %d completed, %d failed.\n",
		len(state.Tasks), state.CompletedCount(), state.FailedCount())

	for _, task := range state.Tasks {
		fmt.Fprintf(b, "- [%s] %s / %s\n", task.Status, task.Agent, task.Tool)
	}
}

func writeResults(b *strings.Builder, state *models.WorkflowState) {
	if len(state.Results) == 0 {
		b.WriteString("No data was successfully retrieved.\n")

		return
	}

	// Plan order, not map order.
	for _, task := range state.Tasks {
		result, ok := state.Results[task.TaskID]
		if !ok {
			continue
		}

		fmt.Fprintf(b, "### %s / %s\n%v\n\n", task.Agent, task.Tool, result)
	}
}

func writeErrorSummary(b *strings.Builder, state *models.WorkflowState) {
	grouped := make(map[models.ErrorType][]*models.ErrorRecord)
	order := make([]models.ErrorType, 0)

	for _, record := range state.Errors {
		if record.ErrorType.IsMarker() {
			continue
		}

		if _, seen := grouped[record.ErrorType]; !seen {
			order = append(order, record.ErrorType)
		}

		grouped[record.ErrorType] = append(grouped[record.ErrorType], record)
	}

	if len(order) == 0 {
		b.WriteString("All requested information was successfully retrieved.\n")

		return
	}

	for _, errType := range order {
		fmt.Fprintf(b, "**%s**:\n", errType)

		for _, record := range grouped[errType] {
			fmt.Fprintf(b, "- %s (%s): %s\n", record.Agent, record.Tool, record.ErrorMessage)
		}
	}
}
