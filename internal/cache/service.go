// Package cache keeps the per-feed result sets in process and in the persisted cache table.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/skyfeed/skyfeed/internal/models"
	"github.com/skyfeed/skyfeed/pkg/logging"
	"github.com/skyfeed/skyfeed/pkg/telemetry"
)

// Entry is a cached result set, most recent first
type Entry struct {
	Records     []models.Post
	RefreshedAt time.Time
}

// LocalOnly reports whether the entry was built from the local index alone
func (e Entry) LocalOnly() bool {
	return e.RefreshedAt.Equal(models.Epoch)
}

// Fresh reports whether the entry is still inside its TTL window at now
func (e Entry) Fresh(now time.Time, timeout time.Duration) bool {
	return now.Before(e.RefreshedAt.Add(timeout))
}

var cacheLookups = telemetry.Counter("skyfeed.cache.hits", "In-process cache lookups by outcome")

// Service is the two-tier feed cache
type Service struct {
	store      Store
	maxEntries int
	now        func() time.Time
	logger     *zap.Logger

	mu      sync.RWMutex
	entries map[string]slot
	gen     uint64
}

// slot is an in-process entry; persisted is set once the entry is known to have a persisted row
type slot struct {
	entry     Entry
	persisted bool
	gen       uint64
}

// NewService creates a cache service persisting through store
func NewService(store Store, maxEntries int) *Service {
	return &Service{
		store:      store,
		maxEntries: maxEntries,
		now:        time.Now,
		logger:     logging.WithComponent("cache"),
		entries:    make(map[string]slot),
	}
}

// Lookup returns the in-process entry of a feed unless its persisted row was
// deleted since, which is how invalidations made by other processes arrive.
// Entries whose last persist failed are served without the check.
func (s *Service) Lookup(ctx context.Context, identifier string) (Entry, bool) {
	s.mu.RLock()
	current, ok := s.entries[identifier]
	s.mu.RUnlock()

	if ok && current.persisted {
		exists, err := s.store.Exists(ctx, identifier)
		switch {
		case err != nil:
			s.logger.Warn("Failed to check persisted cache entry", zap.String("identifier", identifier), zap.Error(err))
		case !exists:
			s.drop(identifier, current.gen)
			s.logger.Info("Cache entry invalidated elsewhere", zap.String("identifier", identifier))
			current, ok = slot{}, false
		}
	}

	cacheLookups.Add(ctx, 1, telemetry.Attrs(attribute.Bool("hit", ok)))
	return current.entry, ok
}

func (s *Service) set(identifier string, entry Entry, persisted bool) {
	s.mu.Lock()
	s.gen++
	s.entries[identifier] = slot{entry: entry, persisted: persisted, gen: s.gen}
	s.mu.Unlock()
}

// drop removes the in-process entry unless it was replaced after gen
func (s *Service) drop(identifier string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.entries[identifier]; ok && current.gen == gen {
		delete(s.entries, identifier)
	}
}

// Refresh replaces the entry of a feed in both tiers.
// Records are deduplicated by URI keeping the first occurrence, then truncated.
// A local-only refresh is stamped with Epoch; the persisted row then keeps its refreshedAt if it exists.
// The in-process tier is updated even when persisting fails.
func (s *Service) Refresh(ctx context.Context, identifier string, records []models.Post, localOnly bool) (Entry, error) {
	records = Dedupe(records)
	if len(records) > s.maxEntries {
		records = records[:s.maxEntries]
	}

	entry := Entry{Records: records, RefreshedAt: models.Epoch}
	if !localOnly {
		entry.RefreshedAt = s.now().UTC()
	}

	content, err := Encode(records)
	if err == nil {
		err = s.store.Save(ctx, &models.CacheSnapshot{
			Identifier:  identifier,
			Content:     content,
			RefreshedAt: models.FormatTime(entry.RefreshedAt),
		}, localOnly)
	}

	s.set(identifier, entry, err == nil)

	if err != nil {
		return entry, fmt.Errorf("failed to persist cache entry %s: %w", identifier, err)
	}
	return entry, nil
}

// Invalidate drops a feed's entry, persisted row first.
// A refresh racing with it may write the persisted row again.
func (s *Service) Invalidate(ctx context.Context, identifier string) error {
	if err := s.store.Delete(ctx, identifier); err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", identifier, err)
	}

	s.mu.Lock()
	delete(s.entries, identifier)
	s.mu.Unlock()

	s.logger.Info("Cache entry invalidated", zap.String("identifier", identifier))
	return nil
}

// Snapshot loads the persisted entry of a feed. Undecodable content is returned as empty.
func (s *Service) Snapshot(ctx context.Context, identifier string) (Entry, bool, error) {
	snapshot, err := s.store.Load(ctx, identifier)
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to load cache entry %s: %w", identifier, err)
	}
	if snapshot == nil {
		return Entry{}, false, nil
	}

	records, err := Decode(snapshot.Content)
	if err != nil {
		s.logger.Warn("Discarding unreadable cache content", zap.String("identifier", identifier), zap.Error(err))
		records = nil
	}

	refreshedAt, ok := models.ParseTime(snapshot.RefreshedAt)
	if !ok {
		refreshedAt = models.Epoch
	}
	return Entry{Records: records, RefreshedAt: refreshedAt}, true, nil
}

// Promote sets the in-process entry of a feed from its persisted snapshot
func (s *Service) Promote(identifier string, entry Entry) {
	s.set(identifier, entry, true)
}

// Dedupe drops records whose URI was already seen, preserving order
func Dedupe(records []models.Post) []models.Post {
	seen := make(map[string]struct{}, len(records))
	out := make([]models.Post, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.URI]; ok {
			continue
		}
		seen[r.URI] = struct{}{}
		out = append(out, r)
	}
	return out
}
