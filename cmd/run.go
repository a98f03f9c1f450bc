package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/memocred/internal/adapters/http/api"
	"github.com/okian/memocred/internal/app"
	"github.com/okian/memocred/internal/config"
	"github.com/okian/memocred/pkg/errors"
	"github.com/okian/memocred/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	maxScoresLimit    = 100
)

func runCmd() *cobra.Command {
	var (
		configPath string
		top        int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Collect memos, score every author and write snapshots",
		Long: `Run executes one pipeline pass: ledger collection, memo decoding,
author aggregation with linked document resolution, credibility scoring and
snapshot emission. Configuration comes from defaults, an optional YAML file
and MEMOCRED_* environment variables, in that order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				if err := os.Setenv(config.EnvConfigFile, configPath); err != nil {
					return errors.Wrap(err, "set config path")
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runPipeline(ctx, cmd, top)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file (overrides "+config.EnvConfigFile+")")
	cmd.Flags().IntVarP(&top, "top", "n", 10, "Authors shown in the summary table")
	return cmd
}

func runPipeline(ctx context.Context, cmd *cobra.Command, top int) error {
	if err := logger.InitWithWriter(cmd.ErrOrStderr()); err != nil {
		return errors.Wrap(err, "initialize logging")
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	pipeline, err := app.FromConfig(cfg, app.WithLogger(log.Named("pipeline")))
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := newMonitoringServer(cfg.MetricsAddr, pipeline)
		go func() {
			log.Info(ctx, "starting monitoring server", logger.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(ctx, "monitoring server failed", logger.Error(errors.Mark(err, api.ErrServe)))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error(ctx, "monitoring server shutdown failed", logger.Error(err))
			}
		}()
	}

	res, err := pipeline.Run(ctx)
	if err != nil {
		return errors.Wrapf(err, "run %s", pipeline.RunID())
	}
	return renderSummary(cmd.OutOrStdout(), res, pipeline.TopScores(context.WithoutCancel(ctx), top))
}

func newMonitoringServer(addr string, pipeline *app.Pipeline) *http.Server {
	mux := http.NewServeMux()
	api.NewServer(pipeline, pipeline, maxScoresLimit).Register(mux)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
