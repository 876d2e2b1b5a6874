package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/ruslaninoyatov1/calling/internal/bootstrap"
	"github.com/ruslaninoyatov1/calling/internal/config"
	"github.com/ruslaninoyatov1/calling/internal/handler"
	"github.com/ruslaninoyatov1/calling/internal/observability"
	"github.com/ruslaninoyatov1/calling/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Print("failed to load config: ", err)
		return 1
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Print("failed to initialize logger: ", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", zap.Error(err))
		return 1
	}
	defer deps.Close()

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(deps.Metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))

	var broker handler.BrokerHealth
	if deps.Broker != nil {
		broker = deps.Broker
	}
	handler.RegisterHealthRoutes(app, deps.SQLDB, deps.Redis, broker)

	var stats handler.PassStatsReader
	if deps.PassStats != nil {
		stats = deps.PassStats
	}
	if err := handler.RegisterSchedulerRoutes(app, deps.Scheduler, deps.Calls, deps.CallLogs, stats); err != nil {
		logger.Error("route registration failed", zap.Error(err))
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Scheduler.Start(gctx)
	})

	g.Go(func() error {
		logger.Info("ops server listening", zap.Int("port", cfg.HTTPPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTPPort)); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		deps.Scheduler.Stop()
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Warn("http shutdown failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler exited with error", zap.Error(err))
		return 1
	}

	logger.Info("scheduler exited")
	return 0
}
