package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/credit-registry/internal/app"
	"carbon-scribe/credit-registry/internal/config"
	"carbon-scribe/credit-registry/internal/ledger"
	"carbon-scribe/credit-registry/internal/ledger/gormledger"
	"carbon-scribe/credit-registry/pkg/logging"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	issueToken := flag.String("issue-token", "", "print a bearer token for this ledger address and exit")
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
		Verbose:      cfg.Database.Verbose,
	})
	if err != nil {
		logger.Fatal("Failed to open ledger database", zap.Error(err))
	}
	var opts []gormledger.BackendOption
	if cfg.Database.Serializable {
		opts = append(opts, gormledger.WithSerializable())
	}

	registries, err := app.New(cfg, gormledger.NewBackend(db, opts...), logger)
	if err != nil {
		logger.Fatal("Failed to initialize registries", zap.Error(err))
	}
	defer registries.Close()

	if *issueToken != "" {
		tok, err := registries.Authn.IssueToken(ledger.Address(*issueToken))
		if err != nil {
			logger.Fatal("Failed to issue token", zap.Error(err))
		}
		fmt.Println(tok)
		return
	}

	if _, err := registries.Genesis(context.Background(), cfg.Ledger.Genesis); err != nil {
		logger.Fatal("Failed to apply genesis balances", zap.Error(err))
	}

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      registries.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("addr", srv.Addr),
		zap.String("database", cfg.Database.Driver),
		zap.Uint64("min_fee", cfg.Ledger.MinFee),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	registries.Hub.Close()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
