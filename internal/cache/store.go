package cache

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/skyfeed/skyfeed/internal/models"
	"github.com/skyfeed/skyfeed/pkg/logging"
)

// Store persists cache snapshots
type Store interface {
	Load(ctx context.Context, identifier string) (*models.CacheSnapshot, error)
	// Save upserts a snapshot; keepRefreshedAt leaves an existing row's refreshedAt untouched
	Save(ctx context.Context, snapshot *models.CacheSnapshot, keepRefreshedAt bool) error
	Delete(ctx context.Context, identifier string) error
	Exists(ctx context.Context, identifier string) (bool, error)
}

// MirroredStore reads snapshots from Redis before the persisted store.
// Writes go to the persisted store and drop the mirrored copy so the next
// read mirrors the row as stored.
type MirroredStore struct {
	store  Store
	redis  *Redis
	logger *zap.Logger
}

// NewMirroredStore wraps store with a Redis mirror. A nil redis returns store unchanged.
func NewMirroredStore(store Store, redis *Redis) Store {
	if redis == nil {
		return store
	}
	return &MirroredStore{store: store, redis: redis, logger: logging.WithComponent("cache")}
}

func snapshotKey(identifier string) string {
	return "snapshot:" + HashKey(identifier)
}

// Load implements Store
func (s *MirroredStore) Load(ctx context.Context, identifier string) (*models.CacheSnapshot, error) {
	var snapshot models.CacheSnapshot
	err := s.redis.GetJSON(ctx, snapshotKey(identifier), &snapshot)
	if err == nil {
		return &snapshot, nil
	}
	if !errors.Is(err, ErrMiss) {
		s.logger.Warn("Redis read failed", zap.String("identifier", identifier), zap.Error(err))
	}

	stored, err := s.store.Load(ctx, identifier)
	if err != nil || stored == nil {
		return stored, err
	}
	if err := s.redis.SetJSON(ctx, snapshotKey(identifier), stored); err != nil {
		s.logger.Warn("Redis write failed", zap.String("identifier", identifier), zap.Error(err))
	}
	return stored, nil
}

// Save implements Store
func (s *MirroredStore) Save(ctx context.Context, snapshot *models.CacheSnapshot, keepRefreshedAt bool) error {
	if err := s.store.Save(ctx, snapshot, keepRefreshedAt); err != nil {
		return err
	}
	s.dropMirror(ctx, snapshot.Identifier)
	return nil
}

// Delete implements Store
func (s *MirroredStore) Delete(ctx context.Context, identifier string) error {
	if err := s.store.Delete(ctx, identifier); err != nil {
		return err
	}
	s.dropMirror(ctx, identifier)
	return nil
}

// Exists implements Store. A mirrored copy counts as present since every delete drops it.
func (s *MirroredStore) Exists(ctx context.Context, identifier string) (bool, error) {
	mirrored, err := s.redis.Exists(ctx, snapshotKey(identifier))
	if err != nil {
		s.logger.Warn("Redis read failed", zap.String("identifier", identifier), zap.Error(err))
	} else if mirrored {
		return true, nil
	}
	return s.store.Exists(ctx, identifier)
}

func (s *MirroredStore) dropMirror(ctx context.Context, identifier string) {
	if err := s.redis.Delete(ctx, snapshotKey(identifier)); err != nil {
		s.logger.Warn("Redis delete failed", zap.String("identifier", identifier), zap.Error(err))
	}
}
