// Package report - Renders evaluation results as text, JSON and per-sample CSV.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/fashion-eval/evaluation"
	"github.com/nvr-ai/fashion-eval/metrics"
	"github.com/nvr-ai/fashion-eval/models"
)

// Separator frames the summary line.
var Separator = strings.Repeat("-", 54)

// SummaryLine formats the top-1 and ACSA of every head on one line.
func SummaryLine(heads [models.NumHeads]*metrics.Result) string {
	parts := make([]string, 0, models.NumHeads)
	for _, h := range models.Heads {
		r := heads[h]
		parts = append(parts, fmt.Sprintf("%s:(Top-1=%.5f, ACSA=%.5f)", h.Title(), r.Top1, r.ACSA))
	}
	return strings.Join(parts, ", ")
}

// WriteText writes the text report.
//
// Arguments:
//   - w: The destination, usually stdout.
//   - res: The evaluation results.
//   - verbose: Whether to dump the confusion matrix of every head first.
//
// Returns:
//   - error: The first write error.
func WriteText(w io.Writer, res *evaluation.Results, verbose bool) error {
	for _, h := range models.Heads {
		if res.Heads[h] == nil {
			return errors.Errorf("head %s has no result", h)
		}
	}

	var b strings.Builder
	if verbose {
		for _, h := range models.Heads {
			b.WriteString(metrics.FormatMatrix(res.Heads[h].Matrix))
			b.WriteByte('\n')
		}
	}
	b.WriteString(Separator)
	b.WriteByte('\n')
	b.WriteString(SummaryLine(res.Heads))
	b.WriteByte('\n')
	b.WriteString(Separator)
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return errors.Wrap(err, "failed to write report")
}
