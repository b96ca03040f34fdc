package feed

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/skyfeed/skyfeed/internal/cache"
	"github.com/skyfeed/skyfeed/internal/models"
	"github.com/skyfeed/skyfeed/internal/query"
	"github.com/skyfeed/skyfeed/pkg/logging"
	"github.com/skyfeed/skyfeed/pkg/telemetry"
)

// Cache is the feed cache as seen by the executor
type Cache interface {
	Lookup(ctx context.Context, identifier string) (cache.Entry, bool)
	Refresh(ctx context.Context, identifier string, records []models.Post, localOnly bool) (cache.Entry, error)
	Snapshot(ctx context.Context, identifier string) (cache.Entry, bool, error)
	Promote(identifier string, entry cache.Entry)
}

// Warehouse runs warehouse queries
type Warehouse interface {
	Query(ctx context.Context, sql string, args []any) ([]models.Post, error)
}

// TimeMachine backfills stale cache entries from the warehouse
type TimeMachine struct {
	cache     Cache
	warehouse Warehouse
	builder   *query.Builder
	timeout   time.Duration
	now       func() time.Time
	group     singleflight.Group
	logger    *zap.Logger
}

// NewTimeMachine creates a time machine treating entries older than timeout as stale
func NewTimeMachine(c Cache, warehouse Warehouse, builder *query.Builder, timeout time.Duration) *TimeMachine {
	return &TimeMachine{
		cache:     c,
		warehouse: warehouse,
		builder:   builder,
		timeout:   timeout,
		now:       time.Now,
		logger:    logging.WithComponent("timemachine"),
	}
}

// Travel returns the cached records of a feed, reloading them from the persisted
// snapshot or the warehouse when the in-process entry is stale.
// Concurrent calls for the same feed and cursor share one reload.
func (tm *TimeMachine) Travel(ctx context.Context, identifier string, plan query.Plan, attr query.Attribution, cursor *time.Time) ([]models.Post, error) {
	if entry, ok := tm.cache.Lookup(ctx, identifier); ok && entry.Fresh(tm.now(), tm.timeout) {
		return entry.Records, nil
	}

	key := identifier
	if cursor != nil {
		key += "@" + strconv.FormatInt(cursor.UnixMilli(), 10)
	}
	records, err, shared := tm.group.Do(key, func() (interface{}, error) {
		return tm.reload(ctx, identifier, plan, attr, cursor)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		tm.logger.Debug("Shared backfill", zap.String("feed", identifier))
	}
	return records.([]models.Post), nil
}

func (tm *TimeMachine) reload(ctx context.Context, identifier string, plan query.Plan, attr query.Attribution, cursor *time.Time) (records []models.Post, err error) {
	ctx, span := telemetry.StartSpan(ctx, "feed.TimeMachine")
	span.SetAttributes(attribute.String("feed", identifier))
	defer func() { telemetry.EndSpan(span, err) }()

	snapshot, ok, err := tm.cache.Snapshot(ctx, identifier)
	if err != nil {
		tm.logger.Warn("Failed to read persisted cache entry", zap.String("feed", identifier), zap.Error(err))
	} else if ok && snapshot.Fresh(tm.now(), tm.timeout) {
		span.SetAttributes(attribute.String("source", "snapshot"))
		tm.cache.Promote(identifier, snapshot)
		return snapshot.Records, nil
	}

	if plan.Empty() {
		return nil, nil
	}

	span.SetAttributes(attribute.String("source", "warehouse"))
	q := tm.builder.Warehouse(plan, attr, cursor)
	var rows []models.Post
	if err := q.Observe(ctx, func(ctx context.Context) error {
		var err error
		rows, err = tm.warehouse.Query(ctx, q.SQL, q.Args)
		return err
	}); err != nil {
		return nil, err
	}

	entry, err := tm.cache.Refresh(ctx, identifier, rows, false)
	if err != nil {
		tm.logger.Warn("Failed to persist backfilled cache entry", zap.String("feed", identifier), zap.Error(err))
	}
	tm.logger.Info("Backfilled feed from warehouse",
		zap.String("feed", identifier),
		zap.Int("rows", len(rows)),
		zap.Int("cached", len(entry.Records)))
	return entry.Records, nil
}
