package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/skyfeed/skyfeed/internal/alert"
	"github.com/skyfeed/skyfeed/internal/db"
	"github.com/skyfeed/skyfeed/internal/indexer"
	"github.com/skyfeed/skyfeed/internal/localindex"
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
	logger.Info("Starting Skyfeed indexer", zap.String("mode", cfg.Firehose.Mode))

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier := alert.New(&cfg.Alert)
	var targets indexer.Targets

	switch cfg.Firehose.Mode {
	case config.ModeWarehouse:
		bq, err := warehouse.New(ctx, &cfg.Warehouse)
		if err != nil {
			logger.Fatal("Failed to create warehouse client", zap.Error(err))
		}
		defer bq.Close()
		targets.Warehouse = bq
	default:
		index, err := localindex.Open(&cfg.Index)
		if err != nil {
			logger.Fatal("Failed to open local index", zap.Error(err))
		}
		defer index.Close()
		targets.Index = index

		maintainer := localindex.NewMaintainer(index, notifier, cfg.Index.MaxAgeDays, cfg.Index.CleanupPageSize,
			cfg.Index.CleanupInterval, cfg.Index.SizeCheckInterval)
		go maintainer.Run(ctx)
	}

	if cfg.Firehose.ContentStoreEnabled {
		database, err := db.New(&cfg.Database, cfg.Logging.Level)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer database.Close()
		if err := database.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		targets.ContentStore = db.NewPostRepository(db.NewRepository(database.DB))
	}

	sync, err := indexer.NewSync(&cfg.Firehose, targets, notifier, func() {
		logger.Fatal("Firehose delayed, exiting for restart")
	})
	if err != nil {
		logger.Fatal("Failed to create firehose sync", zap.Error(err))
	}

	if err := sync.Run(ctx); err != nil {
		logger.Error("Firehose sync stopped", zap.Error(err))
	}

	logger.Info("Indexer exited")
}
