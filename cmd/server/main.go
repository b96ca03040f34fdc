package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/skyfeed/skyfeed/internal/alert"
	"github.com/skyfeed/skyfeed/internal/api"
	"github.com/skyfeed/skyfeed/internal/cache"
	"github.com/skyfeed/skyfeed/internal/db"
	"github.com/skyfeed/skyfeed/internal/definitions"
	"github.com/skyfeed/skyfeed/internal/feed"
	"github.com/skyfeed/skyfeed/internal/indexer"
	"github.com/skyfeed/skyfeed/internal/localindex"
	"github.com/skyfeed/skyfeed/internal/query"
	"github.com/skyfeed/skyfeed/internal/warehouse"
	"github.com/skyfeed/skyfeed/pkg/config"
	"github.com/skyfeed/skyfeed/pkg/logging"
	"github.com/skyfeed/skyfeed/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Skyfeed feed generator")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()
	if err := database.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	repo := db.NewRepository(database.DB)

	notifier := alert.New(&cfg.Alert)

	// Initialize local index
	var index *localindex.Index
	if cfg.LocalIndexEnabled() {
		index, err = localindex.Open(&cfg.Index)
		if err != nil {
			logger.Fatal("Failed to open local index", zap.Error(err))
		}
		defer index.Close()
	}

	// Initialize warehouse
	var bq *warehouse.Client
	if cfg.Warehouse.Enabled {
		bq, err = warehouse.New(ctx, &cfg.Warehouse)
		if err != nil {
			logger.Fatal("Failed to create warehouse client", zap.Error(err))
		}
		defer bq.Close()
	}

	// Initialize cache tiers
	redis, err := cache.NewRedis(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	if redis != nil {
		defer redis.Close()
	}
	feedCache := cache.NewService(cache.NewMirroredStore(db.NewCacheRepository(repo), redis), cfg.Cache.MaxEntries)

	builder := query.NewBuilder(query.Config{
		DiggingDepth: cfg.Index.DiggingDepth,
		Table:        cfg.Warehouse.QualifiedTable(),
		IntervalDays: cfg.Warehouse.MaxIntervalDays,
		Limit:        cfg.Warehouse.QueryLimit,
	}, db.NewQueryLogRepository(repo))

	var timeMachine *feed.TimeMachine
	if bq != nil {
		timeMachine = feed.NewTimeMachine(feedCache, bq, builder, cfg.Cache.Timeout)
	}
	var searcher feed.Searcher
	if index != nil {
		searcher = index
	}
	executor := feed.NewExecutor(feedCache, searcher, timeMachine, builder)

	// Load feed definitions
	registry := definitions.NewRegistry(db.NewFeedRepository(repo), feedCache)
	if dir := cfg.Definitions.Dir; dir != "" {
		applied, err := registry.ApplyDir(ctx, dir, cfg.Server.PublisherDID)
		if err != nil {
			logger.Fatal("Failed to load feed definitions", zap.String("dir", dir), zap.Error(err))
		}
		logger.Info("Feed definitions loaded", zap.String("dir", dir), zap.Int("count", applied))

		if cfg.Definitions.Watch {
			go func() {
				if err := registry.Watch(ctx, dir, cfg.Server.PublisherDID); err != nil {
					logger.Error("Definition watcher stopped", zap.Error(err))
				}
			}()
		}
	}

	// Start background jobs
	if index != nil {
		maintainer := localindex.NewMaintainer(index, notifier, cfg.Index.MaxAgeDays, cfg.Index.CleanupPageSize,
			cfg.Index.CleanupInterval, cfg.Index.SizeCheckInterval)
		go maintainer.Run(ctx)
	}

	syncDone := make(chan struct{})
	if cfg.Firehose.Enabled {
		sync, err := indexer.NewSync(&cfg.Firehose, syncTargets(cfg, index, bq, repo), notifier, func() {
			logger.Fatal("Firehose delayed, exiting for restart")
		})
		if err != nil {
			logger.Fatal("Failed to create firehose sync", zap.Error(err))
		}
		go func() {
			defer close(syncDone)
			if err := sync.Run(ctx); err != nil {
				logger.Error("Firehose sync stopped", zap.Error(err))
			}
		}()
	} else {
		close(syncDone)
	}

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := api.NewRouter(cfg.Server, feed.NewService(registry, executor), registry)
	router.AddHealthCheck("database", database)
	if index != nil {
		router.AddHealthCheck("index", index)
	}
	if redis != nil {
		router.AddHealthCheck("redis", redis)
	}

	engine := gin.New()
	router.SetupRoutes(engine, cfg.Telemetry.ServiceName)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: engine,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()

	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	<-syncDone

	logger.Info("Server exited")
}

// syncTargets only sets the targets that exist, so the sync sees nil interfaces for the rest
func syncTargets(cfg *config.Config, index *localindex.Index, bq *warehouse.Client, repo *db.Repository) indexer.Targets {
	var targets indexer.Targets
	if index != nil {
		targets.Index = index
	}
	if bq != nil {
		targets.Warehouse = bq
	}
	if cfg.Firehose.ContentStoreEnabled {
		targets.ContentStore = db.NewPostRepository(repo)
	}
	return targets
}
