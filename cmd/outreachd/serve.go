package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/hivelane/outreach"
	"github.com/hivelane/outreach/internal/config"
	"github.com/hivelane/outreach/logging"
	"github.com/hivelane/outreach/reasoning"
	anthropicsvc "github.com/hivelane/outreach/reasoning/anthropic"
	openaisvc "github.com/hivelane/outreach/reasoning/openai"
	"github.com/hivelane/outreach/store"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the outreach daemon",
		Long:  "Starts the event bus and schedules the dormancy sweep. Runs until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "outreach.yaml", "path to config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sys, logger, err := buildSystem(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sys.Start(ctx)

	runner := cron.New()
	if _, err := sys.ScheduleSweep(runner, cfg.Sweep.Schedule); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", cfg.Sweep.Schedule, err)
	}
	runner.Start()
	logger.Info("outreach daemon started",
		"database", cfg.Database.Path, "sweep_schedule", cfg.Sweep.Schedule)

	<-ctx.Done()
	logger.Info("shutting down")

	<-runner.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sys.Close(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildSystem assembles a System from the configuration, with a durable store
// and the configured reasoning backend.
func buildSystem(cfg *config.Config) (*outreach.System, logging.Logger, error) {
	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, false)

	st, err := store.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}

	sys := outreach.New(func(o *outreach.Options) {
		o.Store = st
		o.Reasoner = buildReasoner(cfg)
		o.Logger = logger
		o.FromAddress = cfg.Mail.FromAddress
		o.ReplyDomain = cfg.Mail.ReplyDomain
		o.BusBufferSize = cfg.Bus.BufferSize
		o.BusWorkers = cfg.Bus.Workers
		o.BusMaxAttempts = cfg.Bus.MaxAttempts
		o.BusBackoff = time.Duration(cfg.Bus.Backoff)
		o.SweepRules = cfg.SweepRules()
		o.SweepBatchSize = cfg.Sweep.BatchSize
		o.SweepMaxFollowUps = cfg.Sweep.MaxFollowUps
	})
	return sys, logger, nil
}

func buildReasoner(cfg *config.Config) reasoning.Service {
	if cfg.Reasoning.Disabled {
		return reasoning.Disabled{}
	}
	switch cfg.Reasoning.Provider {
	case "anthropic":
		return anthropicsvc.New(func(o *anthropicsvc.Options) {
			o.Model = anthropicsdk.Model(cfg.Reasoning.Model)
			o.MaxTokens = int64(cfg.Reasoning.MaxTokens)
			if cfg.Reasoning.Temperature != nil {
				o.Temperature = *cfg.Reasoning.Temperature
			}
		})
	case "openai":
		return openaisvc.New(func(o *openaisvc.Options) {
			o.Model = cfg.Reasoning.Model
			o.MaxCompletionTokens = int64(cfg.Reasoning.MaxTokens)
			if cfg.Reasoning.Temperature != nil {
				o.Temperature = *cfg.Reasoning.Temperature
			}
		})
	default:
		return reasoning.Disabled{}
	}
}
