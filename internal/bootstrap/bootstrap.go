// Package bootstrap wires configuration into the dependencies shared by the scheduler
// binaries.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/ruslaninoyatov1/calling/internal/config"
	"github.com/ruslaninoyatov1/calling/internal/infra/postgresql"
	"github.com/ruslaninoyatov1/calling/internal/infra/postgresql/migrations"
	infraredis "github.com/ruslaninoyatov1/calling/internal/infra/redis"
	"github.com/ruslaninoyatov1/calling/internal/observability"
	"github.com/ruslaninoyatov1/calling/internal/queue"
	"github.com/ruslaninoyatov1/calling/internal/repository"
	"github.com/ruslaninoyatov1/calling/internal/service"
	"github.com/ruslaninoyatov1/calling/internal/telephony"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds the wired components. Redis, Broker and PassStats are nil when not configured.
type App struct {
	DB        *gorm.DB
	SQLDB     *sql.DB
	Redis     *goredis.Client
	Broker    *queue.RabbitMQ
	PassStats *infraredis.PassStatsRecorder
	Calls     *repository.GormCallRepo
	CallLogs  *repository.GormCallLogRepo
	Metrics   *observability.Metrics
	Scheduler *service.Scheduler

	logger *zap.Logger
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{logger: logger, Metrics: observability.NewMetrics()}

	window, err := cfg.CallWindow()
	if err != nil {
		return nil, fmt.Errorf("invalid call window: %w", err)
	}

	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres initialization failed: %w", err)
	}
	app.DB = db

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	app.SQLDB = sqlDB

	if err := migrations.Migrate(db); err != nil {
		app.Close()
		return nil, fmt.Errorf("database migrations failed: %w", err)
	}

	app.Calls = repository.NewGormCallRepo(db)
	app.CallLogs = repository.NewGormCallLogRepo(db)

	placer, err := NewPlacer(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	dispatcher, err := service.NewDispatcher(placer, app.CallLogs, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	dispatcher.SetMetrics(app.Metrics)

	scheduler, err := service.NewScheduler(app.Calls, dispatcher, service.SchedulerConfig{
		Window:       window,
		PollInterval: cfg.PollInterval(),
		ErrorBackoff: cfg.ErrorBackoff(),
		BatchSize:    cfg.ScanBatchSize,
	}, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	scheduler.SetMetrics(app.Metrics)
	app.Scheduler = scheduler

	if cfg.RedisURL != "" {
		rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("redis initialization failed: %w", err)
		}
		app.Redis = rdb

		stats, err := infraredis.NewPassStatsRecorder(rdb, "")
		if err != nil {
			app.Close()
			return nil, err
		}
		app.PassStats = stats
		scheduler.SetRecorder(stats)
	}

	if cfg.RabbitMQURL != "" {
		broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		app.Broker = broker
		scheduler.SetPublisher(queue.NewRabbitMQPublisher(broker))
	}

	logger.Info("dependencies ready",
		zap.String("backend", cfg.Backend()),
		zap.String("window", window.String()),
		zap.Bool("redis", app.Redis != nil),
		zap.Bool("rabbitmq", app.Broker != nil),
	)

	return app, nil
}

// NewPlacer builds the call placer selected by PLACEMENT_BACKEND.
func NewPlacer(cfg *config.Config) (telephony.Placer, error) {
	switch cfg.Backend() {
	case config.PlacementBackendARI:
		placer, err := telephony.NewARIPlacer(telephony.ARIConfig{
			BaseURL:      cfg.ARIURL,
			User:         cfg.ARIUser,
			Password:     cfg.ARIPassword,
			App:          cfg.ARIApp,
			DefaultTrunk: cfg.DefaultTrunk,
			Context:      cfg.DialContext,
			CallerIDName: cfg.CallerIDName,
			StaticNumber: cfg.StaticNumber,
		})
		if err != nil {
			return nil, fmt.Errorf("ari placer init failed: %w", err)
		}
		return placer, nil
	case config.PlacementBackendSpool:
		placer, err := telephony.NewSpoolPlacer(telephony.SpoolConfig{
			SpoolDir:     cfg.SpoolDir,
			TempDir:      cfg.SpoolTempDir,
			SoundsDir:    cfg.SoundsDir,
			DefaultTrunk: cfg.DefaultTrunk,
			Context:      cfg.DialContext,
			CallerIDName: cfg.CallerIDName,
			StaticNumber: cfg.StaticNumber,
		})
		if err != nil {
			return nil, fmt.Errorf("spool placer init failed: %w", err)
		}
		return placer, nil
	default:
		return nil, fmt.Errorf("unknown placement backend %q", cfg.PlacementBackend)
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Broker != nil {
		if err := a.Broker.Close(); err != nil {
			a.logger.Warn("rabbitmq close failed", zap.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.SQLDB != nil {
		if err := a.SQLDB.Close(); err != nil {
			a.logger.Warn("postgres close failed", zap.Error(err))
		}
	}
}
