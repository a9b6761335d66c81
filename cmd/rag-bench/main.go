// Package main provides the rag-bench CLI: batch RAG evaluation across
// languages plus one-off prediction file validation.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ragbench/rag-bench/internal/bus"
	"github.com/ragbench/rag-bench/internal/config"
	apperrors "github.com/ragbench/rag-bench/internal/pkg/errors"
	"github.com/ragbench/rag-bench/internal/pkg/logger"
	"github.com/ragbench/rag-bench/internal/pipeline"
	"github.com/ragbench/rag-bench/internal/report"
	"github.com/ragbench/rag-bench/internal/runner"
	"github.com/ragbench/rag-bench/internal/validate"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rag-bench",
		Short: "RAG Bench - multilingual RAG evaluation harness",
		Long: `RAG Bench orchestrates batch evaluation of a RAG workflow across
languages: for each language it invokes the external inference runner,
then validates the produced prediction file against the query file.

Run 'rag-bench run' to evaluate all configured languages.
Run 'rag-bench validate <queries> <predictions>' for a single check.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("format", "text", "output format (text, json)")

	rootCmd.AddCommand(
		runCmd(),
		validateCmd(),
		reportCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes configuration errors from content failures so
// shell callers can tell them apart.
func exitCode(err error) int {
	if apperrors.IsConfig(err) {
		return 2
	}
	return 1
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run inference and validation for all configured languages",
		Long: `Run the full evaluation pipeline: for each configured language,
invoke the external inference runner to materialize predictions, then
validate the prediction file against the language's query file.

Languages are processed strictly in sequence. With fail-fast enabled
(the default) the first failing language halts the remaining ones.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			events, err := bus.NewBus(cfg.Bus, log)
			if err != nil {
				return err
			}
			defer events.Close()

			store, err := newStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := runner.NewExecRunner(
				cfg.Runner.Command,
				time.Duration(cfg.Runner.TimeoutSeconds)*time.Second,
				log,
			)
			if err != nil {
				return err
			}

			v, err := newValidator(cfg)
			if err != nil {
				return err
			}

			p, err := pipeline.New(pipeline.FromAppConfig(cfg), run, v, events, store, log)
			if err != nil {
				return err
			}

			results, runErr := p.Run(cmd.Context())

			format, _ := cmd.Flags().GetString("format")
			reports := make([]*validate.Report, 0, len(results))
			for _, res := range results {
				if res.Report != nil {
					reports = append(reports, res.Report)
				}
			}
			if format == "json" {
				for _, rep := range reports {
					if err := report.RenderJSON(cmd.OutOrStdout(), rep); err != nil {
						return err
					}
				}
			} else {
				report.RenderAll(cmd.OutOrStdout(), reports)
			}

			return runErr
		},
	}

	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <query-file> <prediction-file>",
		Short: "Validate a prediction file against a query file",
		Long: `Check that the prediction file is a structurally valid, complete
response set for the query file: every query id has exactly one
well-formed prediction with a non-null answer field, and no prediction
lacks a matching query.

Exits 0 on PASS, 1 on FAIL, 2 on configuration errors such as a
missing or unreadable input file.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			answerField, _ := cmd.Flags().GetString("answer-field")
			answerShape, _ := cmd.Flags().GetString("answer-shape")
			language, _ := cmd.Flags().GetString("language")

			shape, err := validate.ParseShape(answerShape)
			if err != nil {
				return apperrors.ConfigError(err.Error(), nil)
			}

			v := &validate.Validator{
				AnswerField: answerField,
				AnswerShape: shape,
			}

			rep, err := v.CheckFiles(args[0], args[1])
			if err != nil {
				return err
			}
			rep.Language = language

			format, _ := cmd.Flags().GetString("format")
			if format == "json" {
				if err := report.RenderJSON(cmd.OutOrStdout(), rep); err != nil {
					return err
				}
			} else {
				report.Render(cmd.OutOrStdout(), rep)
			}

			if !rep.Passed() {
				return apperrors.New(apperrors.CodeValidation,
					fmt.Sprintf("%d violation(s) found", len(rep.Violations)))
			}
			return nil
		},
	}

	cmd.Flags().String("answer-field", "answer", "dotted path of the required answer field")
	cmd.Flags().String("answer-shape", "any", "expected answer type (any, string, object)")
	cmd.Flags().String("language", "", "language tag to attach to the report")

	return cmd
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "List stored validation reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			store, err := newStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			reports, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			format, _ := cmd.Flags().GetString("format")
			if format == "json" {
				for _, rep := range reports {
					if err := report.RenderJSON(cmd.OutOrStdout(), rep); err != nil {
						return err
					}
				}
				return nil
			}

			if len(reports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no stored reports")
				return nil
			}
			report.RenderAll(cmd.OutOrStdout(), reports)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rag-bench %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, apperrors.ConfigError("loading configuration", err)
	}

	level := cfg.Log.Level
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	return cfg, logger.New(level, cfg.Log.Format), nil
}

func newStore(cfg *config.Config) (report.Store, error) {
	switch cfg.Reports.Store {
	case "redis":
		return report.NewRedisStore(cfg.Reports.RedisURL,
			time.Duration(cfg.Reports.TTLHours)*time.Hour)
	default:
		return report.NewMemoryStore(), nil
	}
}

func newValidator(cfg *config.Config) (*validate.Validator, error) {
	shape, err := validate.ParseShape(cfg.Validator.AnswerShape)
	if err != nil {
		return nil, apperrors.ConfigError(err.Error(), nil)
	}
	return &validate.Validator{
		AnswerField: cfg.Validator.AnswerField,
		AnswerShape: shape,
	}, nil
}
