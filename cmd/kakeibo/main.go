package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"kakeibo/internal/backend"
	"kakeibo/internal/cache"
	"kakeibo/internal/cli"
	"kakeibo/internal/config"
	"kakeibo/internal/core"
	apphttp "kakeibo/internal/http"
	applog "kakeibo/internal/log"
	"kakeibo/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel, applog.ComponentApp)

	logger.Info("Starting kakeibo", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := run(logger, cfg); err != nil {
		logger.Error("Server terminated", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server exited")
}

func run(logger *applog.Logger, cfg *config.Config) error {
	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	// The local copy outlives TTLs: it is what the instance serves while
	// the remote store is unreachable.
	local := cache.NewLRUCache[[]byte](cfg.CacheSize, 0)
	lists := cache.NewLRUCache[[]core.Project](cfg.CacheSize, cfg.CacheTTL)
	caches := cache.NewManager()
	caches.Register(lists)
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	var announcer services.Announcer
	if res.Broker != nil {
		announcer = res.Broker
	}

	processor := services.NewSyncProcessor(res.Remote, local, announcer, services.SyncProcessorConfig{
		RetryInterval: cfg.SyncInterval,
		MaxBackoff:    cfg.SyncMaxBackoff,
	})
	projects := services.NewProjectService(res.Remote, processor, services.ProjectServiceOptions{
		Local:        local,
		Announcer:    announcer,
		Lists:        lists,
		ShareBaseURL: cfg.ShareBaseURL,
	})

	health, _ := res.Remote.(services.Pinger)
	server := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Projects:           projects,
		Exporter:           res.Exporter,
		Health:             health,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustProxy:         cfg.TrustProxy,
	})

	// The retry loop runs until Stop so pending saves survive the signal.
	if err := processor.Start(context.Background()); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if res.Broker != nil {
		g.Go(func() error {
			err := res.Broker.Consume(gctx, projects.HandleAnnouncement)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", applog.FieldOperation, applog.OpShutdown)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := processor.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
