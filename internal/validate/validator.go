// Package validate checks that a prediction file is a structurally valid,
// complete response set for a query file. The check is set-based and
// order-independent: every query id must have exactly one well-formed
// prediction, and no prediction may lack a matching query.
package validate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ragbench/rag-bench/internal/dataset"
)

// Shape constrains the expected type of the answer field. The exact answer
// schema belongs to the external inference runner's contract, so it is a
// parameter rather than a hard-coded assumption.
type Shape string

const (
	// ShapeAny accepts any non-null, non-empty value.
	ShapeAny Shape = "any"
	// ShapeString requires a non-empty string.
	ShapeString Shape = "string"
	// ShapeObject requires a non-empty JSON object.
	ShapeObject Shape = "object"
)

// ParseShape parses a shape name, defaulting to ShapeAny for "".
func ParseShape(s string) (Shape, error) {
	switch Shape(s) {
	case "", ShapeAny:
		return ShapeAny, nil
	case ShapeString:
		return ShapeString, nil
	case ShapeObject:
		return ShapeObject, nil
	default:
		return "", fmt.Errorf("invalid answer shape: %q (must be any, string, or object)", s)
	}
}

// Report is the outcome of validating one prediction file against its
// query file. Zero violations means PASS.
type Report struct {
	Language        string      `json:"language,omitempty"`
	QueryPath       string      `json:"query_path,omitempty"`
	PredictionPath  string      `json:"prediction_path,omitempty"`
	QueryCount      int         `json:"query_count"`
	PredictionCount int         `json:"prediction_count"`
	Violations      []Violation `json:"violations"`
	CheckedAt       time.Time   `json:"checked_at"`
}

// Passed reports whether the check found no violations.
func (r *Report) Passed() bool {
	return len(r.Violations) == 0
}

// Verdict returns "PASS" or "FAIL".
func (r *Report) Verdict() string {
	if r.Passed() {
		return "PASS"
	}
	return "FAIL"
}

// Validator checks prediction files against query files.
type Validator struct {
	// AnswerField is the dotted path of the required output field within a
	// prediction record, e.g. "answer" or "prediction.content".
	AnswerField string

	// AnswerShape is the expected type of the answer field.
	AnswerShape Shape
}

// New returns a Validator with the default answer schema.
func New() *Validator {
	return &Validator{
		AnswerField: "answer",
		AnswerShape: ShapeAny,
	}
}

// CheckFiles validates the prediction file at predPath against the query
// file at queryPath. A missing or unreadable file is a fatal configuration
// error returned as err; all content-level findings are collected in the
// report. Neither input file is modified.
func (v *Validator) CheckFiles(queryPath, predPath string) (*Report, error) {
	queries, err := dataset.DecodeFile(queryPath)
	if err != nil {
		return nil, err
	}
	predictions, err := dataset.DecodeFile(predPath)
	if err != nil {
		return nil, err
	}

	report := v.Check(queries, predictions)
	report.QueryPath = queryPath
	report.PredictionPath = predPath
	return report, nil
}

// Check validates decoded prediction records against decoded query records.
// All violations are collected before returning; the check never
// short-circuits, so one invocation gives the complete diagnostic picture.
func (v *Validator) Check(queries, predictions []dataset.Line) *Report {
	report := &Report{
		QueryCount:      len(queries),
		PredictionCount: len(predictions),
		Violations:      []Violation{},
		CheckedAt:       time.Now().UTC(),
	}

	// Query file: id -> line. Malformed query records are reported and
	// excluded from the expected set.
	queryIDs := make(map[string]int, len(queries))
	for _, line := range queries {
		if line.Err != nil {
			report.add(Violation{
				Kind:   KindMalformedInput,
				Line:   line.Number,
				Detail: fmt.Sprintf("invalid JSON: %v", line.Err),
			})
			continue
		}
		id, ok := dataset.RecordID(line.Object)
		if !ok {
			report.add(Violation{
				Kind:   KindMalformedInput,
				Line:   line.Number,
				Detail: "query record has no identifier",
			})
			continue
		}
		queryIDs[id] = line.Number
	}

	// Prediction file: id -> first occurrence. Duplicates are reported but
	// the first occurrence stays in effect for the remaining checks.
	type predEntry struct {
		line dataset.Line
	}
	predByID := make(map[string]predEntry, len(predictions))
	var predOrder []string

	for _, line := range predictions {
		if line.Err != nil {
			report.add(Violation{
				Kind:   KindMalformedPrediction,
				Line:   line.Number,
				Detail: fmt.Sprintf("invalid JSON: %v", line.Err),
			})
			continue
		}
		id, ok := dataset.RecordID(line.Object)
		if !ok {
			report.add(Violation{
				Kind:   KindMalformedPrediction,
				Line:   line.Number,
				Detail: "prediction record has no identifier",
			})
			continue
		}
		if _, seen := predByID[id]; seen {
			report.add(Violation{
				Kind:   KindDuplicatePrediction,
				ID:     id,
				Line:   line.Number,
				Detail: "identifier predicted more than once",
			})
			continue
		}
		predByID[id] = predEntry{line: line}
		predOrder = append(predOrder, id)
	}

	// Set differences.
	for id, line := range queryIDs {
		if _, ok := predByID[id]; !ok {
			report.add(Violation{
				Kind:   KindMissingPrediction,
				ID:     id,
				Line:   line,
				Detail: "no prediction for query",
			})
		}
	}
	for _, id := range predOrder {
		if _, ok := queryIDs[id]; !ok {
			report.add(Violation{
				Kind:   KindExtraneousPrediction,
				ID:     id,
				Line:   predByID[id].line.Number,
				Detail: "prediction has no matching query",
			})
		}
	}

	// Answer field check for every prediction matched to a query.
	for _, id := range predOrder {
		if _, ok := queryIDs[id]; !ok {
			continue
		}
		entry := predByID[id]
		if detail, ok := v.checkAnswer(entry.line.Object); !ok {
			report.add(Violation{
				Kind:   KindMalformedPrediction,
				ID:     id,
				Line:   entry.line.Number,
				Detail: detail,
			})
		}
	}

	report.sortViolations()
	return report
}

// checkAnswer verifies the required output field exists and is a non-null,
// non-empty value of the expected shape.
func (v *Validator) checkAnswer(obj map[string]any) (string, bool) {
	field := v.AnswerField
	if field == "" {
		field = "answer"
	}

	value, ok := dataset.Field(obj, field)
	if !ok {
		return fmt.Sprintf("missing %q field", field), false
	}
	if value == nil {
		return fmt.Sprintf("%q field is null", field), false
	}

	shape := v.AnswerShape
	if shape == "" {
		shape = ShapeAny
	}

	switch shape {
	case ShapeString:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("%q field is not a string", field), false
		}
		if strings.TrimSpace(s) == "" {
			return fmt.Sprintf("%q field is empty", field), false
		}
	case ShapeObject:
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Sprintf("%q field is not an object", field), false
		}
		if len(m) == 0 {
			return fmt.Sprintf("%q field is empty", field), false
		}
	default:
		switch val := value.(type) {
		case string:
			if strings.TrimSpace(val) == "" {
				return fmt.Sprintf("%q field is empty", field), false
			}
		case map[string]any:
			if len(val) == 0 {
				return fmt.Sprintf("%q field is empty", field), false
			}
		case []any:
			if len(val) == 0 {
				return fmt.Sprintf("%q field is empty", field), false
			}
		}
	}

	return "", true
}

func (r *Report) add(v Violation) {
	r.Violations = append(r.Violations, v)
}

// sortViolations orders findings by kind, id, then line so identical inputs
// always produce identical reports.
func (r *Report) sortViolations() {
	sort.SliceStable(r.Violations, func(i, j int) bool {
		a, b := r.Violations[i], r.Violations[j]
		if a.Kind != b.Kind {
			return kindOrder[a.Kind] < kindOrder[b.Kind]
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.Line < b.Line
	})
}
