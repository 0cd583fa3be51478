package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"pnlcal/internal/auth"
	"pnlcal/internal/backend"
	"pnlcal/internal/cache"
	"pnlcal/internal/calendar"
	"pnlcal/internal/cli"
	"pnlcal/internal/config"
	apphttp "pnlcal/internal/http"
	applog "pnlcal/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	caches := cache.NewManager()
	caches.StartCleanup(time.Minute)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.Logger, caches).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, applog.FieldBackend, backendCfg.Type.String())
		os.Exit(1)
	}

	dir, err := auth.LoadDirectory(cfg.AuthUsersFile)
	if err != nil {
		logger.Error("Failed to load users", applog.FieldError, err, "path", cfg.AuthUsersFile)
		os.Exit(1)
	}
	sessions, err := auth.NewManager(dir, []byte(cfg.AuthJWTSecret), cfg.AuthSessionTTL)
	if err != nil {
		logger.Error("Failed to initialize sessions", applog.FieldError, err)
		os.Exit(1)
	}

	// A signed-out user's calendar state must not leak into the next session.
	calendars := calendar.NewRegistry(result.Backend)
	unsubscribe := sessions.Subscribe(func(ev auth.Event) {
		if ev.Kind == auth.EventSignedOut {
			calendars.Drop(ev.User.ID)
		}
	})
	defer unsubscribe()

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Entries:            result.Backend,
		Auth:               sessions,
		Calendars:          calendars,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	if err != nil {
		logger.Error("Failed to create server", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		caches.Stop()
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", applog.FieldError, err)
			}
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting pnlcal server", "port", cfg.Port, applog.FieldBackend, result.Type.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := sessions.PruneRevoked(); n > 0 {
					logger.Debug("Pruned revoked sessions", "count", n)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
