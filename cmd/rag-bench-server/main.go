// Package main provides the rag-bench server binary. The server exposes
// HTTP endpoints for on-demand prediction file validation and stored
// validation reports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ragbench/rag-bench/internal/config"
	apperrors "github.com/ragbench/rag-bench/internal/pkg/errors"
	"github.com/ragbench/rag-bench/internal/pkg/logger"
	"github.com/ragbench/rag-bench/internal/report"
	"github.com/ragbench/rag-bench/internal/server"
	"github.com/ragbench/rag-bench/internal/validate"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rag-bench-server",
		Short: "RAG Bench Server - validation and report HTTP API",
		Long: `RAG Bench Server exposes the output validator and the report store
over HTTP:

  POST /v1/validate            validate a prediction file
  GET  /v1/reports             list stored reports
  GET  /v1/reports/{language}  fetch one report
  GET  /v1/health              health check`,
		SilenceUsage: true,
		RunE:         runServer,
	}

	rootCmd.Flags().StringP("config", "c", "", "config file path")
	rootCmd.Flags().IntP("port", "p", 0, "HTTP server port (overrides config)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rag-bench-server %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return apperrors.ConfigError("loading configuration", err)
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	shape, err := validate.ParseShape(cfg.Validator.AnswerShape)
	if err != nil {
		return apperrors.ConfigError(err.Error(), nil)
	}
	validator := &validate.Validator{
		AnswerField: cfg.Validator.AnswerField,
		AnswerShape: shape,
	}

	var store report.Store
	switch cfg.Reports.Store {
	case "redis":
		store, err = report.NewRedisStore(cfg.Reports.RedisURL,
			time.Duration(cfg.Reports.TTLHours)*time.Hour)
		if err != nil {
			return err
		}
	default:
		store = report.NewMemoryStore()
	}
	defer store.Close()

	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Server.Host
	srvCfg.Port = cfg.Server.Port
	srvCfg.Version = version
	srvCfg.RateLimit = cfg.Server.RateLimit

	srv := server.New(srvCfg, validator, store, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		return srv.Stop(context.Background())
	})

	return g.Wait()
}
