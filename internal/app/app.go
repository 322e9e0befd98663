// Package app wires configuration into the stores, sources and services shared by the
// api, worker and syncctl binaries.
package app

import (
	"context"
	"fmt"
	"regexp"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"academic-sync-service/internal/config"
	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/lock"
	"academic-sync-service/internal/logger"
	"academic-sync-service/internal/metrics"
	"academic-sync-service/internal/pipeline"
	"academic-sync-service/internal/repository/memory"
	"academic-sync-service/internal/repository/postgresql"
	"academic-sync-service/internal/repository/records"
	"academic-sync-service/internal/service"
	"academic-sync-service/internal/source"
	"academic-sync-service/internal/source/chula"
	"academic-sync-service/internal/source/kmitl"
	"academic-sync-service/internal/worker"
)

// JobStore is what both job store implementations provide.
type JobStore interface {
	service.JobStore
	worker.JobStore
	worker.StaleReclaimer
}

type App struct {
	Config      *config.Config
	Metrics     *metrics.Metrics
	Jobs        JobStore
	Sources     *source.Registry
	Redis       *redis.Client
	RecordsDB   *gorm.DB
	Coordinator *service.Coordinator
	JobService  *service.JobService
	Records     *service.RecordService
	Transcripts *service.TranscriptService

	closers []func()
}

// InitLogger builds the process logger from cfg and installs it as the default.
func InitLogger(cfg config.LogConfig, serviceName string) *logger.Logger {
	l := logger.New(&logger.Config{
		Level:       cfg.Level,
		Format:      cfg.Format,
		ServiceName: serviceName,
		Environment: cfg.Environment,
		File:        cfg.File,
		MaxSizeMB:   cfg.MaxSizeMB,
		MaxBackups:  cfg.MaxBackups,
		MaxAgeDays:  cfg.MaxAgeDays,
		Compress:    cfg.Compress,
	})
	logger.SetDefault(l)
	return l
}

// New opens every dependency named by cfg. On error whatever was opened is closed.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	var err error

	log := logger.FromContext(ctx)

	a.Metrics, err = metrics.New()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	a.Jobs, err = a.openJobStore(ctx)
	if err != nil {
		return nil, err
	}

	a.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	a.closers = append(a.closers, func() { _ = a.Redis.Close() })
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	a.RecordsDB, err = records.InitDB(cfg.Records)
	if err != nil {
		return nil, fmt.Errorf("records: %w", err)
	}
	if sqlDB, err := a.RecordsDB.DB(); err == nil {
		a.closers = append(a.closers, func() { _ = sqlDB.Close() })
	}

	a.Sources, err = buildRegistry(cfg.Sources)
	if err != nil {
		return nil, err
	}

	a.Coordinator = service.NewCoordinator(
		a.Jobs,
		lock.NewRedisLock(a.Redis, cfg.Redis.KeyPrefix).
			WithRetry(cfg.Coordinator.LockRetries, cfg.Coordinator.LockRetryDelay),
		a.Sources,
		service.CoordinatorConfig{
			LockTTL:     cfg.Coordinator.LockTTL,
			LockWait:    cfg.Coordinator.LockWait,
			PageSize:    cfg.Coordinator.PageSize,
			MaxAttempts: cfg.Coordinator.MaxAttempts,
		},
		a.Metrics,
	)
	a.JobService = service.NewJobService(a.Jobs, a.Sources)
	a.Records = service.NewRecordService(
		records.NewIngestionLogRepository(a.RecordsDB),
		records.NewSyllabusRepository(a.RecordsDB),
	)
	a.Transcripts = service.NewTranscriptService(
		a.Jobs,
		a.Sources,
		records.NewSubmissionRepository(a.RecordsDB),
		records.NewTranscriptRepository(a.RecordsDB),
	)

	log.WithFields(logger.Fields{
		"store":        cfg.Store.Driver,
		"postgres_dsn": RedactDSN(cfg.Postgres.DSN),
		"redis_addr":   cfg.Redis.Addr,
		"records":      cfg.Records.Driver,
		"sources":      a.Sources.Codes(),
	}).Info("dependencies ready")

	ready = true
	return a, nil
}

func (a *App) openJobStore(ctx context.Context) (JobStore, error) {
	switch a.Config.Store.Driver {
	case "memory":
		logger.FromContext(ctx).Warn("using in-memory job store, jobs do not survive a restart")
		return memory.NewJobStore(), nil
	default:
		pool, err := postgresql.NewPool(ctx, a.Config.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("pg: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if a.Config.Postgres.EnsureSchema {
			if err := postgresql.EnsureSchema(ctx, pool); err != nil {
				return nil, fmt.Errorf("pg schema: %w", err)
			}
		}
		return postgresql.NewJobRepository(pool), nil
	}
}

func buildRegistry(cfg config.SourcesConfig) (*source.Registry, error) {
	var adapters []source.Adapter
	if cfg.Chula.Enabled {
		adapters = append(adapters, chula.New(cfg.Chula.FilePath))
	}
	if cfg.Kmitl.Enabled {
		adapters = append(adapters, kmitl.New(kmitl.Config{
			BaseURL: cfg.Kmitl.BaseURL,
			APIKey:  cfg.Kmitl.APIKey,
			Timeout: cfg.Kmitl.Timeout,
		}))
	}
	reg, err := source.NewRegistry(adapters...)
	if err != nil {
		return nil, fmt.Errorf("sources: %w", err)
	}
	return reg, nil
}

// Processor routes page jobs to the ETL pipeline, transcript jobs to the transcript
// processor and coordination jobs to the coordinator.
func (a *App) Processor() *worker.Processor {
	etl := pipeline.New(a.Sources, records.NewSyllabusRepository(a.RecordsDB),
		pipeline.WithIngestionLogger(records.NewIngestionLogRepository(a.RecordsDB)),
		pipeline.WithMetrics(a.Metrics),
		pipeline.WithExtractRetry(a.Config.Extract.MaxTries, a.Config.Extract.BaseDelay),
	)
	transcripts := pipeline.NewTranscriptProcessor(a.Sources,
		records.NewSubmissionRepository(a.RecordsDB),
		records.NewTranscriptRepository(a.RecordsDB),
		a.Metrics,
	)
	return worker.NewProcessor().
		Register(entity.JobTypeFetchSyllabus, etl).
		Register(entity.JobTypeProcessTranscript, transcripts).
		Register(entity.JobTypeCoordinateSync, a.Coordinator)
}

func (a *App) Poller() *worker.Poller {
	return worker.NewPoller(a.Jobs, a.Processor(), worker.PollerConfig{
		Interval:    a.Config.Worker.PollInterval,
		BatchSize:   a.Config.Worker.BatchSize,
		Concurrency: a.Config.Worker.Concurrency,
	}, a.Metrics)
}

func (a *App) Reaper() *worker.Reaper {
	return worker.NewReaper(a.Jobs, a.Config.Worker.Lease, a.Config.Worker.ReapInterval, a.Metrics)
}

// Close releases resources in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

var dsnPassword = regexp.MustCompile(`://([^:/?#]+):([^@/]+)@`)

// RedactDSN masks the password of a URL-style DSN: user:pass@ -> user:****@.
func RedactDSN(dsn string) string {
	return dsnPassword.ReplaceAllString(dsn, `://$1:****@`)
}
