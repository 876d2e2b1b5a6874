// Command dispatch-once runs a single dispatch pass and exits. It is meant for cron-style
// deployments where a long-running scheduler is not wanted.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/ruslaninoyatov1/calling/internal/bootstrap"
	"github.com/ruslaninoyatov1/calling/internal/config"
	"github.com/ruslaninoyatov1/calling/internal/observability"
	"go.uber.org/zap"
)

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

	summary, err := deps.Scheduler.RunOnce(ctx)
	if err != nil {
		logger.Error("dispatch pass failed", zap.String("passId", summary.PassID), zap.Error(err))
		return 1
	}

	logger.Info("dispatch pass done",
		zap.String("passId", summary.PassID),
		zap.String("result", summary.Result.String()),
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
	)
	return 0
}
