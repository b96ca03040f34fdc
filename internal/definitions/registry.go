// Package definitions owns the published feeds and their filter definitions.
// Every definition change goes through the Registry, which invalidates the feed cache when needed.
package definitions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/skyfeed/skyfeed/internal/models"
	"github.com/skyfeed/skyfeed/pkg/logging"
)

// ErrInvalidDefinition is returned for feeds that cannot be published
var ErrInvalidDefinition = errors.New("invalid feed definition")

// Store persists feeds
type Store interface {
	GetByIdentifier(ctx context.Context, identifier string) (*models.Feed, error)
	GetByDIDSlug(ctx context.Context, did, slug string) (*models.Feed, error)
	List(ctx context.Context) ([]models.Feed, error)
	Save(ctx context.Context, feed *models.Feed) error
	Delete(ctx context.Context, identifier string) error
}

// Invalidator drops cached feed results
type Invalidator interface {
	Invalidate(ctx context.Context, identifier string) error
}

// Registry manages feed definitions
type Registry struct {
	store  Store
	cache  Invalidator
	logger *zap.Logger
}

// NewRegistry creates a registry invalidating cache on definition changes
func NewRegistry(store Store, cache Invalidator) *Registry {
	return &Registry{store: store, cache: cache, logger: logging.WithComponent("definitions")}
}

// Lookup returns the feed published by did under slug, or nil
func (r *Registry) Lookup(ctx context.Context, did, slug string) (*models.Feed, error) {
	return r.store.GetByDIDSlug(ctx, did, slug)
}

// Get returns a feed by identifier, or nil
func (r *Registry) Get(ctx context.Context, identifier string) (*models.Feed, error) {
	return r.store.GetByIdentifier(ctx, identifier)
}

// List returns every published feed
func (r *Registry) List(ctx context.Context) ([]models.Feed, error) {
	return r.store.List(ctx)
}

// Apply creates or updates a feed. The cached results are invalidated
// only when the change affects which records match.
func (r *Registry) Apply(ctx context.Context, feed *models.Feed) (invalidated bool, err error) {
	if err := validate(feed); err != nil {
		return false, err
	}
	feed.Identifier = models.FeedIdentifier(feed.DID, feed.Slug)
	feed.Definition = feed.Definition.Normalize()

	existing, err := r.store.GetByIdentifier(ctx, feed.Identifier)
	if err != nil {
		return false, fmt.Errorf("failed to load feed %s: %w", feed.Identifier, err)
	}
	if err := r.store.Save(ctx, feed); err != nil {
		return false, fmt.Errorf("failed to save feed %s: %w", feed.Identifier, err)
	}

	if existing == nil || existing.Definition.MatchingEqual(feed.Definition) {
		r.logger.Info("Feed applied", zap.String("feed", feed.Identifier), zap.Bool("created", existing == nil))
		return false, nil
	}

	if err := r.cache.Invalidate(ctx, feed.Identifier); err != nil {
		return false, err
	}
	r.logger.Info("Feed definition changed", zap.String("feed", feed.Identifier))
	return true, nil
}

// Delete removes a feed and its cached results
func (r *Registry) Delete(ctx context.Context, identifier string) error {
	if err := r.store.Delete(ctx, identifier); err != nil {
		return fmt.Errorf("failed to delete feed %s: %w", identifier, err)
	}
	if err := r.cache.Invalidate(ctx, identifier); err != nil {
		return err
	}
	r.logger.Info("Feed deleted", zap.String("feed", identifier))
	return nil
}

func validate(feed *models.Feed) error {
	if !strings.HasPrefix(feed.DID, "did:") {
		return fmt.Errorf("%w: did %q", ErrInvalidDefinition, feed.DID)
	}
	if feed.Slug == "" || strings.ContainsAny(feed.Slug, "/ ") {
		return fmt.Errorf("%w: slug %q", ErrInvalidDefinition, feed.Slug)
	}
	switch models.Operator(strings.ToUpper(string(feed.Definition.Operator))) {
	case "", models.OperatorAnd, models.OperatorOr:
	default:
		return fmt.Errorf("%w: operator %q", ErrInvalidDefinition, feed.Definition.Operator)
	}
	return nil
}
