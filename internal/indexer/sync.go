package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skyfeed/skyfeed/internal/alert"
	"github.com/skyfeed/skyfeed/pkg/config"
	"github.com/skyfeed/skyfeed/pkg/logging"
)

const (
	watchdogInterval = 5 * time.Second
	drainTimeout     = 10 * time.Second
)

// Targets are the stores a sync flushes into. Unused targets are left nil.
type Targets struct {
	Index        inserter
	Warehouse    inserter
	ContentStore batchCreator
}

// Sync manages the firehose ingestion process
type Sync struct {
	config     *config.FirehoseConfig
	pipeline   *Pipeline
	subscriber *Subscriber
	watchdog   *Watchdog
	logger     *zap.Logger
}

// NewSync wires the subscriber, pipeline and watchdog for the configured mode
func NewSync(cfg *config.FirehoseConfig, targets Targets, notifier alert.Notifier, onDelayed func()) (*Sync, error) {
	var sinks []Sink
	switch cfg.Mode {
	case config.ModeLocal:
		if targets.Index == nil {
			return nil, errors.New("local firehose mode needs the local index")
		}
		sinks = append(sinks, IndexSink(targets.Index))
	case config.ModeWarehouse:
		if targets.Warehouse == nil {
			return nil, errors.New("warehouse firehose mode needs the warehouse")
		}
		sinks = append(sinks, WarehouseSink(targets.Warehouse))
	default:
		return nil, fmt.Errorf("unknown firehose mode %q", cfg.Mode)
	}
	if cfg.ContentStoreEnabled && targets.ContentStore != nil {
		sinks = append(sinks, ContentStoreSink(targets.ContentStore))
	}

	escalator := alert.NewEscalator("Firehose "+cfg.Mode+" flush", notifier, cfg.AlertAfterFailures)
	pipeline := NewPipeline(cfg.FlushSize(), cfg.FlushTimeout(), escalator, sinks...)
	if cfg.SkipEmptyText {
		pipeline.Use(SkipEmptyText())
	}

	return &Sync{
		config:     cfg,
		pipeline:   pipeline,
		subscriber: NewSubscriber(cfg.Endpoint, cfg.ReconnectDelay, pipeline),
		watchdog:   NewWatchdog(pipeline, watchdogInterval, onDelayed),
		logger:     logging.WithComponent("indexer"),
	}, nil
}

// Run starts the sync process and blocks until ctx is cancelled.
// Buffered records are flushed before returning.
func (s *Sync) Run(ctx context.Context) error {
	s.logger.Info("Starting firehose sync",
		zap.String("mode", s.config.Mode),
		zap.Int("flush_size", s.config.FlushSize()),
		zap.Duration("flush_timeout", s.config.FlushTimeout()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.subscriber.Run(gctx) })
	g.Go(func() error { return s.pipeline.Run(gctx) })
	g.Go(func() error { return s.watchdog.Run(gctx) })
	err := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if drainErr := s.pipeline.Drain(drainCtx); drainErr != nil {
		s.logger.Error("Failed to flush buffered records on shutdown", zap.Error(drainErr))
	}

	s.logger.Info("Firehose sync stopped", zap.Int64("messages", s.subscriber.Received()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
