// Package main is the entry point for the ThreatWatch scheduler.
//
// It runs two cron entries: the sweep, which finds due monitors and enqueues
// scan jobs, and the nightly retention pass, which deletes reports older
// than the configured window.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/config"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/db"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/metrics"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/queue"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("threatwatch scheduler starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"sweep_interval", cfg.Scheduler.SweepInterval.String(),
		"retention_days", cfg.Scheduler.RetentionDays,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL.Unmask())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	var sweepMetrics scheduler.SweepMetrics
	if cfg.Observability.EnableMetrics {
		cwClient := cloudwatch.NewFromConfig(awsCfg)
		sweepMetrics = metrics.NewEmitter(cwClient, cfg.Observability.MetricNamespace, logger)
	}

	producer := queue.NewProducer(sqsClient, cfg.AWS, logger)
	sweeper := scheduler.NewSweeper(db.NewMonitorRepository(pool), producer, logger, sweepMetrics)
	retention := scheduler.NewRetentionService(db.NewReportRepository(pool), cfg.Scheduler.RetentionDays, logger)

	c := cron.New()

	_, err = c.AddFunc(fmt.Sprintf("@every %s", cfg.Scheduler.SweepInterval), func() {
		if _, err := sweeper.Sweep(ctx); err != nil {
			logger.Error("sweep failed", "error", err.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("registering sweep entry: %w", err)
	}

	_, err = c.AddFunc(cfg.Scheduler.RetentionRunSpec, func() {
		if _, err := retention.Run(ctx); err != nil {
			logger.Error("retention pass failed", "error", err.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("registering retention entry: %w", err)
	}

	c.Start()
	logger.Info("scheduler ready")

	<-ctx.Done()

	logger.Info("shutdown signal received, waiting for running entries")
	<-c.Stop().Done()

	logger.Info("scheduler stopped cleanly")
	return nil
}

// newLogger creates a structured JSON logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
