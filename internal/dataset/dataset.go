// Package dataset handles JSON Lines datasets: evaluation queries, the
// shared document corpus, and prediction files produced by the inference
// runner. One JSON object per line, UTF-8, no enclosing array.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ragbench/rag-bench/internal/pkg/errors"
)

// Query is one evaluation question.
type Query struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Language string `json:"language,omitempty"`
	// Answer is the optional ground-truth reference. Not required by the
	// validator.
	Answer string `json:"answer,omitempty"`
}

// Document is one unit of the retrieval corpus. It is passed through to the
// external inference runner unmodified.
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Prediction is one inference output keyed by its source query id.
type Prediction struct {
	ID         string   `json:"id"`
	Answer     any      `json:"answer"`
	References []string `json:"references,omitempty"`
}

// Line is a single record from a JSON Lines file along with its position.
// A record that fails to parse keeps its raw text and carries Err; the rest
// of the file is still decoded.
type Line struct {
	Number int
	Raw    string
	Object map[string]any
	Err    error
}

// DecodeFile reads and decodes a JSON Lines file. The returned error covers
// file-level problems only (missing or unreadable file); per-line parse
// failures are recorded on the individual Line entries.
func DecodeFile(path string) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("opening %s", path), err)
	}
	defer f.Close()

	lines, err := decode(f)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("reading %s", path), err)
	}
	return lines, nil
}

func decode(f *os.File) ([]Line, error) {
	var lines []Line

	scanner := bufio.NewScanner(f)
	// Long document lines are common; allow up to 16MB per record.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	number := 0
	for scanner.Scan() {
		number++
		raw := scanner.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}

		line := Line{Number: number, Raw: raw}

		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			line.Err = err
		} else {
			line.Object = obj
		}

		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// RecordID extracts the record identifier from a decoded object. It accepts
// the flat "id" field as well as the nested query.query_id layout used by
// older dataset producers. Numeric ids keep their literal decimal form, so
// id 7 and id "7" compare equal across files.
func RecordID(obj map[string]any) (string, bool) {
	if v, ok := obj["id"]; ok {
		return scalarID(v)
	}
	if q, ok := obj["query"].(map[string]any); ok {
		if v, ok := q["query_id"]; ok {
			return scalarID(v)
		}
	}
	return "", false
}

func scalarID(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		if id == "" {
			return "", false
		}
		return id, true
	case json.Number:
		return id.String(), true
	default:
		return "", false
	}
}

// Field resolves a dotted path ("answer", "prediction.content") within a
// decoded object. The second return is false when any path segment is
// absent or not an object.
func Field(obj map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	current := any(obj)

	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// WriteJSONL writes records to path as JSON Lines, creating parent
// directories and truncating any previous file. Re-running an evaluation
// overwrites predictions rather than appending.
func WriteJSONL[T any](path string, records []T) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			f.Close()
			return fmt.Errorf("encoding record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
