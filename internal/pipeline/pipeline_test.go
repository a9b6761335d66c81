package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ragbench/rag-bench/internal/bus"
	"github.com/ragbench/rag-bench/internal/dataset"
	"github.com/ragbench/rag-bench/internal/pkg/errors"
	"github.com/ragbench/rag-bench/internal/report"
	"github.com/ragbench/rag-bench/internal/runner"
	"github.com/ragbench/rag-bench/internal/validate"
)

// stubRunner lets tests stand in for the external inference process.
type stubRunner struct {
	fn    func(ctx context.Context, inv runner.Invocation) error
	calls []string
}

func (s *stubRunner) Run(ctx context.Context, inv runner.Invocation) error {
	s.calls = append(s.calls, inv.Language)
	return s.fn(ctx, inv)
}

// answerQueries writes a prediction for every query in the invocation's
// query file.
func answerQueries(ctx context.Context, inv runner.Invocation) error {
	lines, err := dataset.DecodeFile(inv.QueryPath)
	if err != nil {
		return err
	}

	var predictions []dataset.Prediction
	for _, line := range lines {
		id, _ := dataset.RecordID(line.Object)
		predictions = append(predictions, dataset.Prediction{
			ID:     id,
			Answer: "answer for " + id,
		})
	}
	return dataset.WriteJSONL(inv.OutputPath, predictions)
}

func writeQueries(t *testing.T, dir, language string, ids ...string) {
	t.Helper()
	var queries []dataset.Query
	for _, id := range ids {
		queries = append(queries, dataset.Query{
			ID:       id,
			Question: "question " + id,
			Language: language,
		})
	}
	path := filepath.Join(dir, language, "queries.jsonl")
	if err := dataset.WriteJSONL(path, queries); err != nil {
		t.Fatal(err)
	}
}

func testConfig(dir string, languages ...string) Config {
	return Config{
		Languages:      languages,
		QueryTemplate:  filepath.Join(dir, "{language}", "queries.jsonl"),
		DocsPath:       filepath.Join(dir, "docs.jsonl"),
		OutputTemplate: filepath.Join(dir, "out", "{language}", "predictions.jsonl"),
		FailFast:       true,
	}
}

func TestRun_AllLanguagesPass(t *testing.T) {
	dir := t.TempDir()
	writeQueries(t, dir, "en", "1", "2")
	writeQueries(t, dir, "zh", "1", "2", "3")

	var mu sync.Mutex
	var eventTypes []string
	events := bus.NewMemoryBus()
	for _, topic := range []string{
		bus.TopicRunStarted,
		bus.TopicInferenceCompleted,
		bus.TopicValidationCompleted,
		bus.TopicRunCompleted,
	} {
		if err := events.Subscribe(context.Background(), topic, func(ctx context.Context, e bus.Event) error {
			mu.Lock()
			eventTypes = append(eventTypes, e.Type)
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	}

	store := report.NewMemoryStore()
	run := &stubRunner{fn: answerQueries}

	p, err := New(testConfig(dir, "en", "zh"), run, validate.New(), events, store, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	results, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	for _, res := range results {
		if res.Failed() {
			t.Errorf("language %s failed: err=%v report=%v", res.Language, res.Err, res.Report)
		}
	}

	// Inference ran strictly in configured order.
	if run.calls[0] != "en" || run.calls[1] != "zh" {
		t.Errorf("inference order = %v, want [en zh]", run.calls)
	}

	// Reports persisted per language.
	for _, language := range []string{"en", "zh"} {
		rep, err := store.Get(context.Background(), language)
		if err != nil {
			t.Errorf("stored report for %s: %v", language, err)
			continue
		}
		if !rep.Passed() {
			t.Errorf("stored report for %s is FAIL: %v", language, rep.Violations)
		}
	}

	// Close flushes in-flight handlers before we inspect events.
	if err := events.Close(); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	counts := make(map[string]int)
	for _, typ := range eventTypes {
		counts[typ]++
	}
	if counts[bus.TopicRunStarted] != 1 || counts[bus.TopicRunCompleted] != 1 {
		t.Errorf("run lifecycle events = %v", counts)
	}
	if counts[bus.TopicInferenceCompleted] != 2 || counts[bus.TopicValidationCompleted] != 2 {
		t.Errorf("per-language events = %v", counts)
	}
}

func TestRun_FailFastOnInferenceFailure(t *testing.T) {
	dir := t.TempDir()
	writeQueries(t, dir, "en", "1")
	writeQueries(t, dir, "zh", "1")

	boom := errors.ExternalError("inference exploded", fmt.Errorf("exit status 3"))
	run := &stubRunner{fn: func(ctx context.Context, inv runner.Invocation) error {
		return boom
	}}

	p, err := New(testConfig(dir, "en", "zh"), run, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	results, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want external failure")
	}
	if !errors.IsExternal(err) {
		t.Errorf("Run() error = %v, want EXTERNAL_FAILURE", err)
	}

	// Fail-fast: the second language is never attempted, and the failed
	// language has no report because validation was skipped.
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Report != nil {
		t.Error("validation ran despite inference failure")
	}
	if len(run.calls) != 1 {
		t.Errorf("inference calls = %v, want just en", run.calls)
	}
}

func TestRun_FailFastOnValidationFailure(t *testing.T) {
	dir := t.TempDir()
	writeQueries(t, dir, "en", "1", "2")
	writeQueries(t, dir, "zh", "1")

	// Drop the last prediction so validation fails for en.
	run := &stubRunner{fn: func(ctx context.Context, inv runner.Invocation) error {
		lines, err := dataset.DecodeFile(inv.QueryPath)
		if err != nil {
			return err
		}
		var predictions []dataset.Prediction
		for _, line := range lines[:len(lines)-1] {
			id, _ := dataset.RecordID(line.Object)
			predictions = append(predictions, dataset.Prediction{ID: id, Answer: "x"})
		}
		return dataset.WriteJSONL(inv.OutputPath, predictions)
	}}

	p, err := New(testConfig(dir, "en", "zh"), run, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	results, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want validation failure")
	}

	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	rep := results[0].Report
	if rep == nil || rep.Passed() {
		t.Fatalf("report = %v, want FAIL", rep)
	}
	if rep.Violations[0].Kind != validate.KindMissingPrediction {
		t.Errorf("violation = %+v, want MISSING_PREDICTION", rep.Violations[0])
	}
}

func TestRun_ContinueWithoutFailFast(t *testing.T) {
	dir := t.TempDir()
	writeQueries(t, dir, "en", "1")
	writeQueries(t, dir, "zh", "1")

	// en fails inference, zh succeeds.
	run := &stubRunner{fn: func(ctx context.Context, inv runner.Invocation) error {
		if inv.Language == "en" {
			return errors.ExternalError("inference failed", nil)
		}
		return answerQueries(ctx, inv)
	}}

	cfg := testConfig(dir, "en", "zh")
	cfg.FailFast = false

	p, err := New(cfg, run, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	results, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, want nil without fail-fast", err)
	}

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if !results[0].Failed() {
		t.Error("en should have failed")
	}
	if results[1].Failed() {
		t.Errorf("zh should have passed: err=%v", results[1].Err)
	}
}

func TestNew_Validation(t *testing.T) {
	dir := t.TempDir()

	if _, err := New(Config{}, &stubRunner{fn: answerQueries}, nil, nil, nil, nil); err == nil {
		t.Error("New() with no languages should fail")
	}
	if _, err := New(testConfig(dir, "en"), nil, nil, nil, nil, nil); err == nil {
		t.Error("New() with no runner should fail")
	}
}
