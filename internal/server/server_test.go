package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ragbench/rag-bench/internal/report"
	"github.com/ragbench/rag-bench/internal/validate"
)

func newTestServer(t *testing.T) (*Server, *report.MemoryStore) {
	t.Helper()
	store := report.NewMemoryStore()
	srv := New(DefaultConfig(), validate.New(), store, nil)
	return srv, store
}

func writeFixture(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestHandleValidate_Pass(t *testing.T) {
	srv, store := newTestServer(t)
	dir := t.TempDir()

	queryPath := writeFixture(t, dir, "queries.jsonl", `{"id":"1","question":"a"}`)
	predPath := writeFixture(t, dir, "predictions.jsonl", `{"id":"1","answer":"x"}`)

	body := `{"query_path":"` + queryPath + `","prediction_path":"` + predPath + `","language":"en"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/validate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var rep validate.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !rep.Passed() {
		t.Errorf("report = FAIL, violations %v", rep.Violations)
	}

	// Report with a language is persisted.
	if _, err := store.Get(context.Background(), "en"); err != nil {
		t.Errorf("report not persisted: %v", err)
	}
}

func TestHandleValidate_FailStillReturns200(t *testing.T) {
	srv, _ := newTestServer(t)
	dir := t.TempDir()

	queryPath := writeFixture(t, dir, "queries.jsonl",
		`{"id":"1","question":"a"}`,
		`{"id":"2","question":"b"}`,
	)
	predPath := writeFixture(t, dir, "predictions.jsonl", `{"id":"1","answer":"x"}`)

	body := `{"query_path":"` + queryPath + `","prediction_path":"` + predPath + `"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/validate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	// Content violations are findings, not transport errors.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "MISSING_PREDICTION") {
		t.Errorf("body = %s, want MISSING_PREDICTION finding", rec.Body.String())
	}
}

func TestHandleValidate_MissingFile(t *testing.T) {
	srv, _ := newTestServer(t)
	dir := t.TempDir()

	queryPath := writeFixture(t, dir, "queries.jsonl", `{"id":"1","question":"a"}`)

	body := `{"query_path":"` + queryPath + `","prediction_path":"` + filepath.Join(dir, "nope.jsonl") + `"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/validate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing file", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "CONFIG_ERROR") {
		t.Errorf("body = %s, want CONFIG_ERROR", rec.Body.String())
	}
}

func TestHandleValidate_BadRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"missing paths", `{}`},
		{"bad shape", `{"query_path":"q","prediction_path":"p","answer_shape":"list"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/validate", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.routes().ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleValidate_AnswerFieldOverride(t *testing.T) {
	srv, _ := newTestServer(t)
	dir := t.TempDir()

	queryPath := writeFixture(t, dir, "queries.jsonl",
		`{"query":{"query_id":1,"content":"a"}}`,
	)
	predPath := writeFixture(t, dir, "predictions.jsonl",
		`{"query":{"query_id":1,"content":"a"},"prediction":{"content":"ans","references":[]}}`,
	)

	body := `{"query_path":"` + queryPath + `","prediction_path":"` + predPath +
		`","answer_field":"prediction.content","answer_shape":"string"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/validate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var rep validate.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if !rep.Passed() {
		t.Errorf("report = FAIL, violations %v", rep.Violations)
	}
}

func TestHandleReports(t *testing.T) {
	srv, store := newTestServer(t)

	rep := &validate.Report{Language: "en", Violations: []validate.Violation{}}
	if err := store.Save(context.Background(), rep); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/reports", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("list status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/reports/en", nil)
	rec = httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/reports/fr", nil)
	rec = httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing report status = %d, want 404", rec.Code)
	}
}
