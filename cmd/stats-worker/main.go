package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"carbon-scribe/credit-registry/internal/app"
	"carbon-scribe/credit-registry/internal/config"
	"carbon-scribe/credit-registry/internal/ledger/gormledger"
	"carbon-scribe/credit-registry/internal/reports"
	"carbon-scribe/credit-registry/pkg/logging"
	"carbon-scribe/credit-registry/pkg/storage"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	once := flag.Bool("once", false, "deliver one report and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := gormledger.Open(gormledger.OpenConfig{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN(),
		MaxOpenConns: cfg.Database.MaxConnections,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxLifetime:  cfg.Database.MaxLifetime.Duration,
	})
	if err != nil {
		logger.Fatal("Failed to open ledger database", zap.Error(err))
	}
	registries, err := app.New(cfg, gormledger.NewBackend(db), logger)
	if err != nil {
		logger.Fatal("Failed to initialize registries", zap.Error(err))
	}
	defer registries.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var uploader storage.Uploader = storage.DirUploader{Root: cfg.Reports.LocalDir}
	bucket := "local"
	if cfg.Reports.Bucket != "" {
		s3, err := storage.NewS3Client(ctx, storage.S3Options{Region: cfg.Reports.Region, Endpoint: cfg.Reports.Endpoint})
		if err != nil {
			logger.Fatal("Failed to create S3 client", zap.Error(err))
		}
		uploader, bucket = s3, cfg.Reports.Bucket
	}

	collector := reports.NewCollector(registries.Issuance, registries.Marketplace, registries.Retirement, logger)
	defer collector.Close()
	scheduler := reports.NewScheduler(collector, uploader, bucket, cfg.Reports.Timeout.Duration, logger)

	if *once {
		runCtx, cancel := context.WithTimeout(ctx, cfg.Reports.Timeout.Duration)
		defer cancel()
		loc, err := scheduler.RunOnce(runCtx)
		if err != nil {
			logger.Fatal("Stats report failed", zap.Error(err))
		}
		fmt.Println(loc)
		return
	}

	if err := scheduler.Schedule(cfg.Reports.Schedule); err != nil {
		logger.Fatal("Failed to schedule stats report", zap.Error(err))
	}
	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}
	logger.Info("Stats worker started", zap.String("bucket", bucket))

	<-ctx.Done()
	logger.Info("Stats worker shutting down")
	scheduler.Stop()
}
