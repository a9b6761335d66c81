// Package pipeline orchestrates the per-language evaluation loop: run the
// external inference step, then validate its output against the query file.
// Execution is strictly sequential; each language completes fully before
// the next begins, and no mutable state is shared across languages.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/ragbench/rag-bench/internal/bus"
	"github.com/ragbench/rag-bench/internal/config"
	"github.com/ragbench/rag-bench/internal/pkg/errors"
	"github.com/ragbench/rag-bench/internal/pkg/logger"
	"github.com/ragbench/rag-bench/internal/report"
	"github.com/ragbench/rag-bench/internal/runner"
	"github.com/ragbench/rag-bench/internal/validate"
)

const eventSource = "pipeline"

// Config holds orchestration settings.
type Config struct {
	// Languages to evaluate, in order.
	Languages []string

	// QueryTemplate is the per-language query file path with a {language}
	// placeholder.
	QueryTemplate string

	// DocsPath is the shared document corpus, read-only across languages.
	DocsPath string

	// OutputTemplate is the per-language prediction file path.
	OutputTemplate string

	// FailFast halts remaining languages after the first failure.
	FailFast bool
}

// FromAppConfig extracts pipeline settings from the application config.
func FromAppConfig(cfg *config.Config) Config {
	return Config{
		Languages:      cfg.Languages,
		QueryTemplate:  cfg.Paths.QueryTemplate,
		DocsPath:       cfg.Paths.DocsPath,
		OutputTemplate: cfg.Paths.OutputTemplate,
		FailFast:       cfg.Pipeline.FailFast,
	}
}

// Result is the outcome for one language.
type Result struct {
	Language string           `json:"language"`
	Report   *validate.Report `json:"report,omitempty"`
	Err      error            `json:"-"`
}

// Failed reports whether the language run failed, either fatally or with a
// FAIL verdict.
func (r Result) Failed() bool {
	return r.Err != nil || (r.Report != nil && !r.Report.Passed())
}

// Pipeline runs inference and validation per language.
type Pipeline struct {
	cfg       Config
	runner    runner.Runner
	validator *validate.Validator
	events    bus.Bus
	store     report.Store
	log       *logger.Logger
}

// New creates a pipeline. The bus and store may be nil when eventing or
// persistence are not wanted (single-shot CLI validation).
func New(cfg Config, run runner.Runner, v *validate.Validator, events bus.Bus, store report.Store, log *logger.Logger) (*Pipeline, error) {
	if len(cfg.Languages) == 0 {
		return nil, errors.ConfigError("no languages configured", nil)
	}
	if run == nil {
		return nil, errors.ConfigError("no inference runner configured", nil)
	}
	if v == nil {
		v = validate.New()
	}
	if log == nil {
		log = logger.Default()
	}

	return &Pipeline{
		cfg:       cfg,
		runner:    run,
		validator: v,
		events:    events,
		store:     store,
		log:       log,
	}, nil
}

// Run executes the full evaluation across configured languages. It returns
// one Result per attempted language. Under fail-fast the first failing
// language also surfaces as the returned error and the remaining languages
// are not attempted.
func (p *Pipeline) Run(ctx context.Context) ([]Result, error) {
	p.publish(ctx, bus.TopicRunStarted, "", map[string]any{
		"languages": p.cfg.Languages,
	})

	var (
		results  []Result
		firstErr error
	)

	for _, language := range p.cfg.Languages {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result := p.runLanguage(ctx, language)
		results = append(results, result)

		if result.Failed() && p.cfg.FailFast {
			firstErr = result.Err
			if firstErr == nil {
				firstErr = errors.New(errors.CodeValidation,
					fmt.Sprintf("validation failed for language %q", language))
			}
			break
		}
	}

	passed := 0
	for _, r := range results {
		if !r.Failed() {
			passed++
		}
	}
	p.publish(ctx, bus.TopicRunCompleted, "", map[string]any{
		"attempted": len(results),
		"passed":    passed,
	})

	return results, firstErr
}

// runLanguage executes the inference step then the validation step for one
// language. An inference failure skips validation entirely.
func (p *Pipeline) runLanguage(ctx context.Context, language string) Result {
	log := p.log.WithLanguage(language)
	queryPath := expand(p.cfg.QueryTemplate, language)
	outputPath := expand(p.cfg.OutputTemplate, language)

	log.Info("starting language run", "query_path", queryPath, "output_path", outputPath)

	inv := runner.Invocation{
		QueryPath:  queryPath,
		DocsPath:   p.cfg.DocsPath,
		Language:   language,
		OutputPath: outputPath,
	}
	if err := p.runner.Run(ctx, inv); err != nil {
		log.WithError(err).Error("inference failed")
		p.publish(ctx, bus.TopicInferenceFailed, language, map[string]any{
			"error": err.Error(),
		})
		return Result{Language: language, Err: err}
	}

	p.publish(ctx, bus.TopicInferenceCompleted, language, map[string]any{
		"output_path": outputPath,
	})

	rep, err := p.validator.CheckFiles(queryPath, outputPath)
	if err != nil {
		log.WithError(err).Error("validation aborted")
		return Result{Language: language, Err: err}
	}
	rep.Language = language

	if p.store != nil {
		if err := p.store.Save(ctx, rep); err != nil {
			log.WithError(err).Warn("failed to persist report")
		}
	}

	p.publish(ctx, bus.TopicValidationCompleted, language, map[string]any{
		"verdict":    rep.Verdict(),
		"violations": len(rep.Violations),
	})

	log.Info("language run finished",
		"verdict", rep.Verdict(),
		"queries", rep.QueryCount,
		"predictions", rep.PredictionCount,
		"violations", len(rep.Violations),
	)

	return Result{Language: language, Report: rep}
}

func (p *Pipeline) publish(ctx context.Context, topic, language string, payload any) {
	if p.events == nil {
		return
	}
	event := bus.NewEvent(topic, eventSource, language, payload)
	if err := p.events.Publish(ctx, topic, event); err != nil {
		p.log.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

func expand(template, language string) string {
	return strings.ReplaceAll(template, "{language}", language)
}
