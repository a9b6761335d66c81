package report

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/ragbench/rag-bench/internal/pkg/errors"
	"github.com/ragbench/rag-bench/internal/validate"
)

// RedisStore persists validation reports in Redis as JSON values so
// operators can inspect historical runs across processes.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and returns a report store. A zero ttl
// keeps reports until overwritten.
func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: "ragbench:report:",
		ttl:    ttl,
	}, nil
}

// Save stores a report under its language key, replacing any previous run.
func (s *RedisStore) Save(ctx context.Context, rep *validate.Report) error {
	if rep.Language == "" {
		return apperrors.InvalidRequestError("report has no language")
	}

	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+rep.Language, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving report for %s: %w", rep.Language, err)
	}
	return nil
}

// Get returns the stored report for a language.
func (s *RedisStore) Get(ctx context.Context, language string) (*validate.Report, error) {
	payload, err := s.client.Get(ctx, s.prefix+language).Bytes()
	if err == redis.Nil {
		return nil, apperrors.NotFoundError("report for language " + language)
	}
	if err != nil {
		return nil, fmt.Errorf("loading report for %s: %w", language, err)
	}

	var rep validate.Report
	if err := json.Unmarshal(payload, &rep); err != nil {
		return nil, fmt.Errorf("decoding report for %s: %w", language, err)
	}
	return &rep, nil
}

// List returns all stored reports ordered by language.
func (s *RedisStore) List(ctx context.Context) ([]*validate.Report, error) {
	var reports []*validate.Report

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		language := iter.Val()[len(s.prefix):]
		rep, err := s.Get(ctx, language)
		if err != nil {
			if apperrors.IsNotFound(err) {
				continue // expired between scan and get
			}
			return nil, err
		}
		reports = append(reports, rep)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning reports: %w", err)
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Language < reports[j].Language
	})
	return reports, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
