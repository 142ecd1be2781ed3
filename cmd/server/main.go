// Package main runs the demo vault deployment behind an HTTP API:
// - Vault and multicall operations on an in-process chain
// - Fact journal (PostgreSQL or memory) and live WebSocket feed
// - Periodic snapshots and NAV samples (PostgreSQL, ClickHouse or memory)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"portfolio-vault/internal/config"
	"portfolio-vault/internal/feed"
	"portfolio-vault/internal/recorder"
	"portfolio-vault/internal/storage"
	chstore "portfolio-vault/internal/storage/clickhouse"
	"portfolio-vault/internal/storage/memory"
	"portfolio-vault/internal/storage/migrations"
	pgstore "portfolio-vault/internal/storage/postgres"
)

// recorderBuffer is the number of committed batches queued ahead of storage.
const recorderBuffer = 256

func main() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	cfg, err := config.Load(fs, os.Args[1:], (*config.Config).RegisterFlags, (*config.Config).RegisterDecayFlags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Channel to signal completion
	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("initiating graceful shutdown", zap.String("signal", sig.String()))
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn("forcing immediate shutdown", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger)
	close(done)
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// run wires the deployment and serves until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	stores, cleanup, err := createStores(ctx, cfg, logger.Named("storage"))
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer cleanup()

	hubCfg := feed.DefaultHubConfig()
	hub := feed.NewHub(&hubCfg, logger.Named("feed"))
	defer hub.Close()

	rec := recorder.New(stores.Facts, hub, logger.Named("recorder"), recorderBuffer)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rec.Run(ctx)
	}()

	d, err := newDeployment(cfg, uint64(time.Now().Unix()), logger, rec)
	if err != nil {
		return err
	}
	a := newAPI(d, stores.Facts, stores.NAV, hub, logger.Named("api"))

	sampler := recorder.NewSampler(recorder.SamplerConfig{
		Vault:        d.vault,
		BaseDecimals: d.baseDecimals,
		BlockTime:    d.env.Now,
		Lock:         a.Locker(),
		Snapshots:    stores.Snapshots,
		NAV:          stores.NAV,
		Logger:       logger.Named("sampler"),
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		sampler.Run(ctx, cfg.NAVInterval)
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("vault", d.vault.Address().Hex()),
			zap.Bool("memory", cfg.UseMemory),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("HTTP shutdown", zap.Error(shutdownErr))
	}

	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	wg.Wait()
	return ctx.Err()
}

// createStores returns the configured stores and their cleanup.
func createStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Stores, func(), error) {
	if cfg.UseMemory {
		stores := storage.Stores{
			Facts:     memory.NewFactStore(),
			Snapshots: memory.NewSnapshotStore(),
			NAV:       memory.NewNAVStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return storage.Stores{}, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		pool.Close()
		return storage.Stores{}, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	logger.Info("postgres schema ready", zap.Strings("applied", applied))

	// ClickHouse
	chConn, applied, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return storage.Stores{}, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	logger.Info("clickhouse schema ready", zap.Strings("applied", applied))

	stores := storage.Stores{
		Facts:     pgstore.NewFactStore(pool),
		Snapshots: pgstore.NewSnapshotStore(pool),
		NAV:       chstore.NewNAVStore(chConn),
	}
	cleanup := func() {
		_ = chConn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}
