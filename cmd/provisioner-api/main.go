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

	"golang.org/x/sync/errgroup"

	"github.com/vista/provisioner/internal/api"
	"github.com/vista/provisioner/internal/config"
	"github.com/vista/provisioner/internal/core"
	"github.com/vista/provisioner/internal/db"
	"github.com/vista/provisioner/internal/dokploy"
	"github.com/vista/provisioner/internal/logging"
	"github.com/vista/provisioner/internal/metrics"
	"github.com/vista/provisioner/internal/orchestrator"
	"github.com/vista/provisioner/internal/scheduler"
	"github.com/vista/provisioner/internal/store"
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

	if err := cfg.Validate("provisioner-api"); err != nil {
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
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	provisionStore := store.NewProvisionStore(pool)

	runner := scheduler.NewRunner(logger)

	platformClient := dokploy.NewClient(cfg.DokployAPIBase, cfg.DokployAPIKey, dokploy.CallOptions{
		MaxAttempts: cfg.DokployMaxRetries,
		BaseDelay:   time.Duration(cfg.DokployRetryDelay) * time.Second,
		Multiplier:  cfg.DokployBackoff,
		MaxDelay:    time.Duration(cfg.DokployDelayCap) * time.Second,
	}, logger)

	orch := orchestrator.New(provisionStore, platformClient, runner, logger, orchestrator.Options{
		RootDomain:          cfg.RootDomain,
		DefaultBackendRepo:  cfg.BackendRepo,
		DefaultFrontendRepo: cfg.FrontendRepo,
		GitBranch:           cfg.GitBranch,
		PostgresImage:       cfg.PostgresImage,
		CallbackToken:       cfg.ProvisionCallbackToken,
		DeploySettle:        time.Duration(cfg.DeploySettleSec) * time.Second,
	})

	provisions := core.NewProvisionService(provisionStore, orch.EnqueueRun, logger)

	sweeper := scheduler.NewSweeper(logger, provisionStore, provisions.Enqueue,
		time.Duration(cfg.SweepIntervalMin)*time.Minute,
		time.Duration(cfg.StaleAfterMin)*time.Minute)
	sweeper.Start()

	srv := api.NewServer(logger, pool, provisions)

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsServer := metrics.NewServer(cfg.MetricsListenAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting provisioner API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("starting metrics server")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
		case <-gctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		sweeper.Stop()
		httpServer.Shutdown(shutdownCtx)
		metricsServer.Shutdown(shutdownCtx)
		if err := runner.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("scheduler did not drain in time")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
