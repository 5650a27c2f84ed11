package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"threadhub/internal/config"
	"threadhub/internal/db"
	"threadhub/internal/logging"
	"threadhub/internal/router"
	"threadhub/internal/service"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	database, err := db.Open(cfg)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}
	logger.Info("database migrations applied", "driver", cfg.DBDriver)

	opts := router.Options{Hub: service.NewStreamHub(), Logger: logger}

	if cfg.RedisURL != "" {
		cache, err := service.NewRedisTurnCache(cfg.RedisURL, cfg.TurnCacheTTL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer cache.Close()
		if err := cache.Ping(ctx); err != nil {
			// The cache is optional; turns are recomputed when it is down.
			logger.Warn("redis unreachable, turn cache degraded", "error", err)
		}
		opts.Cache = cache
	}

	if cfg.Archive.Enabled() {
		store, err := service.NewMinioStore(cfg.Archive)
		if err != nil {
			return fmt.Errorf("archive store: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("archive bucket: %w", err)
		}
		opts.Store = store
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(cfg, database, opts),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE and WebSocket streams need unlimited write timeout
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("threadhub listening", "addr", srv.Addr, "version", router.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	err = g.Wait()
	logger.Info("stopped")
	return err
}
