package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/skyfeed/skyfeed/internal/cache"
	"github.com/skyfeed/skyfeed/internal/db"
	"github.com/skyfeed/skyfeed/internal/definitions"
	"github.com/skyfeed/skyfeed/internal/localindex"
	"github.com/skyfeed/skyfeed/internal/query"
	"github.com/skyfeed/skyfeed/pkg/config"
)

// app holds the stores an operator command works against
type app struct {
	cfg      *config.Config
	database *db.DB
	redis    *cache.Redis
	cache    *cache.Service
	registry *definitions.Registry
	builder  *query.Builder
	queries  *db.QueryLogRepository
}

// loader creates the app for one command invocation
type loader func(ctx context.Context) (*app, error)

func newApp(cfg *config.Config) (*app, error) {
	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	redis, err := cache.NewRedis(&cfg.Redis)
	if err != nil {
		database.Close()
		return nil, err
	}

	repo := db.NewRepository(database.DB)
	queryLog := db.NewQueryLogRepository(repo)
	feedCache := cache.NewService(cache.NewMirroredStore(db.NewCacheRepository(repo), redis), cfg.Cache.MaxEntries)

	return &app{
		cfg:      cfg,
		database: database,
		redis:    redis,
		cache:    feedCache,
		registry: definitions.NewRegistry(db.NewFeedRepository(repo), feedCache),
		builder: query.NewBuilder(query.Config{
			DiggingDepth: cfg.Index.DiggingDepth,
			Table:        cfg.Warehouse.QualifiedTable(),
			IntervalDays: cfg.Warehouse.MaxIntervalDays,
			Limit:        cfg.Warehouse.QueryLimit,
		}, queryLog),
		queries: queryLog,
	}, nil
}

func (a *app) openIndex() (*localindex.Index, error) {
	index, err := localindex.Open(&a.cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("open local index: %w", err)
	}
	return index, nil
}

func (a *app) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.database.Close())
	return errors.Join(errs...)
}
