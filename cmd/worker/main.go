// Package main is the entry point for the ThreatWatch queue worker.
//
// It long-polls the scan and notification queues concurrently, dispatching
// each task through the lifecycle wrapper that enforces soft and hard time
// budgets and publishes task outcome metrics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/config"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/db"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/external"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/metrics"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/notify"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/queue"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/scan"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/search"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/storage"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// Notification deliveries are cheaper than scans and get a tighter budget.
const (
	notifySoftLimit = 30 * time.Second
	notifyHardLimit = 60 * time.Second
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
	logger.Info("threatwatch worker starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL.Unmask())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL.Unmask())
	if err != nil {
		return fmt.Errorf("parsing redis URL: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}
	endpoint := cfg.AWS.EndpointURL
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	var taskMetrics queue.TaskMetrics
	if cfg.Observability.EnableMetrics {
		cwClient := cloudwatch.NewFromConfig(awsCfg)
		taskMetrics = metrics.NewEmitter(cwClient, cfg.Observability.MetricNamespace, logger)
	}

	monitors := db.NewMonitorRepository(pool)
	searches := db.NewSearchRepository(pool)
	reports := db.NewReportRepository(pool)
	users := db.NewUserRepository(pool)
	producer := queue.NewProducer(sqsClient, cfg.AWS, logger)

	provider := search.NewHTTPProvider(cfg.Search, logger)
	artifacts := storage.NewArtifactStore(s3Client, cfg.AWS.ArtifactBucket, cfg.AWS.Region, logger)
	executor := scan.NewExecutor(monitors, searches, reports, provider, artifacts, producer, logger)

	var emailProvider external.EmailProvider = external.NewSendGridClient(cfg.Email, logger)
	if !cfg.Email.Enabled {
		logger.Warn("email delivery disabled, notifications are logged only")
		emailProvider = external.NewLogEmailProvider(logger)
	}
	notifier := notify.NewNotifier(reports, monitors, users, emailProvider, logger)

	replyStore := queue.NewRedisReplyStore(redisClient)
	scanBudget := queue.Budget{Soft: cfg.Worker.SoftTimeLimit, Hard: cfg.Worker.HardTimeLimit}
	notifyBudget := queue.Budget{Soft: notifySoftLimit, Hard: notifyHardLimit}

	scanWorker := queue.NewWorker(sqsClient, cfg.AWS.ScanQueueURL, cfg.Worker, logger)
	scanWorker.Register(types.TaskScanMonitor,
		queue.WithLifecycle(types.TaskScanMonitor, scanBudget, logger, taskMetrics,
			scan.NewHandler(executor, logger)))
	scanWorker.Register(types.TaskPing, queue.NewPingHandler(replyStore))

	notifyWorker := queue.NewWorker(sqsClient, cfg.AWS.NotificationQueueURL, cfg.Worker, logger)
	notifyWorker.Register(types.TaskSendNotification,
		queue.WithLifecycle(types.TaskSendNotification, notifyBudget, logger, taskMetrics,
			notify.NewHandler(notifier, logger)))

	logger.Info("worker ready",
		"scan_queue", cfg.AWS.ScanQueueURL,
		"notification_queue", cfg.AWS.NotificationQueueURL,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scanWorker.Run(gctx) })
	g.Go(func() error { return notifyWorker.Run(gctx) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("worker loop: %w", err)
	}

	logger.Info("worker stopped cleanly")
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
