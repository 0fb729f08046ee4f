package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edvin/renewd/internal/certstore"
	"github.com/edvin/renewd/internal/config"
	"github.com/edvin/renewd/internal/configstore"
	"github.com/edvin/renewd/internal/db"
	"github.com/edvin/renewd/internal/logging"
	"github.com/edvin/renewd/internal/metrics"
	"github.com/edvin/renewd/internal/orchestrator"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	migrateDirFlag := flag.String("migrate-dir", "migrations", "Migration files directory")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("renewd"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag {
		logger.Info().Str("dir", *migrateDirFlag).Msg("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL, *migrateDirFlag); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to config store database")
	}
	defer pool.Close()

	metrics.RegisterRenewalMetrics()
	metrics.RegisterPgxPoolMetrics(pool)

	store := configstore.NewPostgres(pool)

	certs, err := certstore.New(cfg.AccountsDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize certificate store")
	}

	orch := orchestrator.New(store, certs, logger, cfg.ContactEmail, cfg.LetsEncryptStaging, cfg.MaxConcurrentRenewals,
		orchestrator.WithDNSCleanup(cfg.LetsEncryptCleanupDNS))

	if err := orch.RecoverInterrupted(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to recover interrupted renewals from a previous run")
	}

	httpServer := metrics.NewServer(cfg.MetricsListenAddr)

	go func() {
		logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("starting metrics server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("metrics server failed")
		}
	}()

	logger.Info().Str("environment", cfg.Environment()).Int("max_concurrent", cfg.MaxConcurrentRenewals).
		Msg("renewd ready, waiting for renewal requests")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}
