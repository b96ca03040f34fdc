package feed

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/skyfeed/skyfeed/internal/cache"
	"github.com/skyfeed/skyfeed/internal/models"
	"github.com/skyfeed/skyfeed/internal/query"
	"github.com/skyfeed/skyfeed/pkg/logging"
)

// ErrInvalidCursor is returned for cursors that are not millisecond timestamps
var ErrInvalidCursor = errors.New("invalid cursor")

// Searcher runs local index queries
type Searcher interface {
	Search(ctx context.Context, query string, args []any) ([]models.Post, error)
}

// Params are the inputs of one executor run
type Params struct {
	Identifier string
	Definition models.FilterDefinition
	Identity   models.Identity
	Cursor     string
	Limit      int
}

// Executor assembles feed skeletons from the cache, the local index and the time machine
type Executor struct {
	cache       Cache
	index       Searcher
	timeMachine *TimeMachine
	builder     *query.Builder
	now         func() time.Time
	logger      *zap.Logger
}

// NewExecutor creates an executor. A nil index disables real-time merging,
// a nil time machine disables warehouse backfill.
func NewExecutor(c Cache, index Searcher, timeMachine *TimeMachine, builder *query.Builder) *Executor {
	return &Executor{
		cache:       c,
		index:       index,
		timeMachine: timeMachine,
		builder:     builder,
		now:         time.Now,
		logger:      logging.WithComponent("executor"),
	}
}

// Execute returns one page of a feed
func (e *Executor) Execute(ctx context.Context, p Params) (models.Skeleton, error) {
	plan := query.Compile(p.Definition)
	attr := query.Attribution{FeedIdentifier: p.Identifier, Identity: p.Identity}

	var cursor *time.Time
	upper := e.now()
	if p.Cursor != "" {
		ms, err := strconv.ParseInt(p.Cursor, 10, 64)
		if err != nil {
			return models.Skeleton{}, ErrInvalidCursor
		}
		t := time.UnixMilli(ms).UTC()
		cursor, upper = &t, t
	}

	entry, _ := e.cache.Lookup(ctx, p.Identifier)
	records := entry.Records

	if e.index != nil {
		q := e.builder.Local(plan, attr)
		var fresh []models.Post
		if err := q.Observe(ctx, func(ctx context.Context) error {
			var err error
			fresh, err = e.index.Search(ctx, q.SQL, q.Args)
			return err
		}); err != nil {
			return models.Skeleton{}, err
		}

		merged := make([]models.Post, 0, len(fresh)+len(records))
		merged = append(merged, fresh...)
		merged = append(merged, records...)
		merged = matching(sortByTimestamp(cache.Dedupe(merged)), plan)

		refreshed, err := e.cache.Refresh(ctx, p.Identifier, merged, true)
		if err != nil {
			e.logger.Warn("Failed to persist merged cache entry", zap.String("feed", p.Identifier), zap.Error(err))
		}
		records = refreshed.Records
	}

	page := before(matching(sortByTimestamp(records), plan), upper)

	if e.timeMachine != nil && len(page) < p.Limit {
		backfilled, err := e.timeMachine.Travel(ctx, p.Identifier, plan, attr, cursor)
		if err != nil {
			return models.Skeleton{}, err
		}
		page = before(matching(sortByTimestamp(backfilled), plan), upper)
	}

	return skeleton(page, plan.AtURIs, p.Limit), nil
}

func skeleton(page []models.Post, atURIs []string, limit int) models.Skeleton {
	if len(atURIs) > 0 {
		page = slices.DeleteFunc(slices.Clone(page), func(r models.Post) bool {
			return slices.Contains(atURIs, r.URI)
		})
	}
	if len(page) > limit {
		page = page[:pageEnd(page, limit)]
	}

	out := models.Skeleton{Feed: make([]models.SkeletonItem, 0, len(atURIs)+len(page))}
	for _, uri := range atURIs {
		out.Feed = append(out.Feed, models.SkeletonItem{Post: uri})
	}
	for _, r := range page {
		out.Feed = append(out.Feed, models.SkeletonItem{Post: r.URI})
	}

	if len(page) > 0 {
		if ts, ok := page[len(page)-1].Timestamp(); ok {
			next := strconv.FormatInt(ts.UnixMilli(), 10)
			out.Cursor = &next
		}
	}
	return out
}

// pageEnd returns where a page longer than limit is cut. Cursors have millisecond
// precision, so the cut never splits one millisecond across two pages unless a
// single millisecond holds more than limit records.
func pageEnd(page []models.Post, limit int) int {
	next := unixMilli(page[limit])
	for end := limit; end > 0; end-- {
		if unixMilli(page[end-1]) != next {
			return end
		}
	}
	return limit
}

func unixMilli(r models.Post) int64 {
	ts, _ := r.Timestamp()
	return ts.UnixMilli()
}

// sortByTimestamp orders records newest first; records without a valid timestamp go last
func sortByTimestamp(records []models.Post) []models.Post {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b models.Post) int {
		ta, okA := a.Timestamp()
		tb, okB := b.Timestamp()
		switch {
		case !okA && !okB:
			return 0
		case !okA:
			return 1
		case !okB:
			return -1
		}
		return tb.Compare(ta)
	})
	return sorted
}

func matching(records []models.Post, plan query.Plan) []models.Post {
	out := make([]models.Post, 0, len(records))
	for _, r := range records {
		if plan.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// before keeps records strictly older than upper
func before(records []models.Post, upper time.Time) []models.Post {
	out := make([]models.Post, 0, len(records))
	for _, r := range records {
		if ts, ok := r.Timestamp(); ok && ts.Before(upper) {
			out = append(out, r)
		}
	}
	return out
}
