package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ragbench/rag-bench/internal/validate"
)

// Render writes a human-readable PASS/FAIL banner for one report, with an
// itemized violation list on FAIL.
func Render(w io.Writer, rep *validate.Report) {
	label := rep.Language
	if label == "" {
		label = rep.PredictionPath
	}

	fmt.Fprintf(w, "=== %s: %s (%d queries, %d predictions) ===\n",
		label, rep.Verdict(), rep.QueryCount, rep.PredictionCount)

	if rep.Passed() {
		return
	}

	fmt.Fprintf(w, "%d violation(s):\n", len(rep.Violations))
	for _, v := range rep.Violations {
		fmt.Fprintf(w, "  - %s\n", v)
	}
}

// RenderJSON writes one report as indented JSON.
func RenderJSON(w io.Writer, rep *validate.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// RenderAll renders a sequence of reports followed by a one-line summary.
func RenderAll(w io.Writer, reports []*validate.Report) {
	passed := 0
	for _, rep := range reports {
		Render(w, rep)
		if rep.Passed() {
			passed++
		}
	}
	fmt.Fprintf(w, "%d/%d languages passed\n", passed, len(reports))
}
