// Package report persists and renders validation reports.
package report

import (
	"context"
	"sort"
	"sync"

	"github.com/ragbench/rag-bench/internal/pkg/errors"
	"github.com/ragbench/rag-bench/internal/validate"
)

// Store persists validation reports keyed by language. Saving a report for
// a language replaces the previous one, mirroring how re-running a language
// overwrites its prediction file.
type Store interface {
	Save(ctx context.Context, rep *validate.Report) error
	Get(ctx context.Context, language string) (*validate.Report, error)
	List(ctx context.Context) ([]*validate.Report, error)
	Close() error
}

// MemoryStore keeps reports in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string]*validate.Report
}

// NewMemoryStore creates an empty in-memory report store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reports: make(map[string]*validate.Report),
	}
}

// Save stores a report, replacing any previous report for the language.
func (s *MemoryStore) Save(ctx context.Context, rep *validate.Report) error {
	if rep.Language == "" {
		return errors.InvalidRequestError("report has no language")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[rep.Language] = rep
	return nil
}

// Get returns the report for a language.
func (s *MemoryStore) Get(ctx context.Context, language string) (*validate.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rep, ok := s.reports[language]
	if !ok {
		return nil, errors.NotFoundError("report for language " + language)
	}
	return rep, nil
}

// List returns all stored reports ordered by language.
func (s *MemoryStore) List(ctx context.Context) ([]*validate.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*validate.Report, 0, len(s.reports))
	for _, rep := range s.reports {
		out = append(out, rep)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Language < out[j].Language
	})
	return out, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
