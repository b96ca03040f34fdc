// Package feed produces feed skeletons: it resolves the requested feed, merges real-time
// index results into the cached result set and backfills from the warehouse.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/skyfeed/skyfeed/internal/models"
	"github.com/skyfeed/skyfeed/pkg/logging"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

var (
	// ErrFeedNotFound is returned for feeds this service does not publish
	ErrFeedNotFound = errors.New("unknown feed")
	// ErrInvalidFeedURI is returned for malformed feed URIs
	ErrInvalidFeedURI = errors.New("invalid feed uri")
)

// Registry looks up published feeds
type Registry interface {
	Lookup(ctx context.Context, did, slug string) (*models.Feed, error)
}

// Service answers feed skeleton requests
type Service struct {
	registry Registry
	executor *Executor
	logger   *zap.Logger
}

// NewService creates a skeleton service
func NewService(registry Registry, executor *Executor) *Service {
	return &Service{
		registry: registry,
		executor: executor,
		logger:   logging.WithComponent("feed"),
	}
}

// GetFeedSkeleton returns one page of the feed published at feedURI.
// A nil identity is attributed as anonymous.
func (s *Service) GetFeedSkeleton(ctx context.Context, feedURI, cursor string, limit int, identity *models.Identity) (models.Skeleton, error) {
	did, slug, err := ParseFeedURI(feedURI)
	if err != nil {
		return models.Skeleton{}, err
	}

	feed, err := s.registry.Lookup(ctx, did, slug)
	if err != nil {
		return models.Skeleton{}, fmt.Errorf("failed to look up feed: %w", err)
	}
	if feed == nil {
		return models.Skeleton{}, ErrFeedNotFound
	}

	def := feed.Definition.Normalize()
	if def.IsNothing() {
		return models.EmptySkeleton(), nil
	}

	who := models.Anonymous()
	if identity != nil {
		who = *identity
	}

	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	skeleton, err := s.executor.Execute(ctx, Params{
		Identifier: feed.Identifier,
		Definition: def,
		Identity:   who,
		Cursor:     cursor,
		Limit:      limit,
	})
	if err != nil {
		s.logger.Error("Feed execution failed",
			zap.String("feed", feed.Identifier),
			zap.String("cursor", cursor),
			zap.Error(err))
		return models.Skeleton{}, err
	}
	return skeleton, nil
}

// ParseFeedURI splits at://<did>/app.bsky.feed.generator/<rkey> into did and rkey
func ParseFeedURI(uri string) (did, rkey string, err error) {
	rest, ok := strings.CutPrefix(uri, "at://")
	if !ok {
		return "", "", ErrInvalidFeedURI
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", "", ErrInvalidFeedURI
	}
	if parts[1] != models.FeedGeneratorCollection {
		return "", "", ErrFeedNotFound
	}
	return parts[0], parts[2], nil
}
