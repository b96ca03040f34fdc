package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skyfeed/skyfeed/internal/models"
)

const postBatchSize = 500

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// PostRepository is the append-only content store
type PostRepository struct {
	*Repository
}

// NewPostRepository creates a new post repository
func NewPostRepository(repo *Repository) *PostRepository {
	return &PostRepository{Repository: repo}
}

// CreateBatch appends posts, keeping the first stored copy of any URI
func (r *PostRepository) CreateBatch(ctx context.Context, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(posts, postBatchSize).Error
}

// CacheRepository persists feed cache snapshots
type CacheRepository struct {
	*Repository
}

// NewCacheRepository creates a new cache repository
func NewCacheRepository(repo *Repository) *CacheRepository {
	return &CacheRepository{Repository: repo}
}

// Load retrieves the snapshot of a feed
func (r *CacheRepository) Load(ctx context.Context, identifier string) (*models.CacheSnapshot, error) {
	var snapshot models.CacheSnapshot
	if err := r.db.WithContext(ctx).Where("identifier = ?", identifier).First(&snapshot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}

// Save upserts a snapshot. With keepRefreshedAt an existing row keeps its refreshedAt
// and only its content is replaced.
func (r *CacheRepository) Save(ctx context.Context, snapshot *models.CacheSnapshot, keepRefreshedAt bool) error {
	columns := []string{"content", "refreshedAt"}
	if keepRefreshedAt {
		columns = []string{"content"}
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identifier"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).
		Create(snapshot).Error
}

// Delete removes the snapshot of a feed
func (r *CacheRepository) Delete(ctx context.Context, identifier string) error {
	return r.db.WithContext(ctx).Where("identifier = ?", identifier).Delete(&models.CacheSnapshot{}).Error
}

// Exists reports whether a feed has a persisted snapshot
func (r *CacheRepository) Exists(ctx context.Context, identifier string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CacheSnapshot{}).Where("identifier = ?", identifier).Count(&count).Error
	return count > 0, err
}

// QueryLogRepository stores the executed query trail
type QueryLogRepository struct {
	*Repository
}

// NewQueryLogRepository creates a new query log repository
func NewQueryLogRepository(repo *Repository) *QueryLogRepository {
	return &QueryLogRepository{Repository: repo}
}

// LogQuery appends one query log entry
func (r *QueryLogRepository) LogQuery(ctx context.Context, entry *models.QueryLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// Recent returns the latest entries of a feed, newest first
func (r *QueryLogRepository) Recent(ctx context.Context, feedIdentifier string, limit int) ([]models.QueryLog, error) {
	var entries []models.QueryLog
	err := r.db.WithContext(ctx).
		Where(`"feedIdentifier" = ?`, feedIdentifier).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// FeedRepository provides feed definition operations
type FeedRepository struct {
	*Repository
}

// NewFeedRepository creates a new feed repository
func NewFeedRepository(repo *Repository) *FeedRepository {
	return &FeedRepository{Repository: repo}
}

// GetByIdentifier retrieves a feed by identifier
func (r *FeedRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.Feed, error) {
	var feed models.Feed
	if err := r.db.WithContext(ctx).Where("identifier = ?", identifier).First(&feed).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &feed, nil
}

// GetByDIDSlug retrieves a feed by publisher DID and record key
func (r *FeedRepository) GetByDIDSlug(ctx context.Context, did, slug string) (*models.Feed, error) {
	var feed models.Feed
	if err := r.db.WithContext(ctx).Where("did = ? AND slug = ?", did, slug).First(&feed).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &feed, nil
}

// List returns all feeds ordered by identifier
func (r *FeedRepository) List(ctx context.Context) ([]models.Feed, error) {
	var feeds []models.Feed
	err := r.db.WithContext(ctx).Order("identifier").Find(&feeds).Error
	return feeds, err
}

// Save creates or replaces a feed
func (r *FeedRepository) Save(ctx context.Context, feed *models.Feed) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identifier"}},
			DoUpdates: clause.AssignmentColumns([]string{"did", "slug", "displayName", "description", "definition", "updatedAt"}),
		}).
		Create(feed).Error
}

// Delete removes a feed
func (r *FeedRepository) Delete(ctx context.Context, identifier string) error {
	return r.db.WithContext(ctx).Where("identifier = ?", identifier).Delete(&models.Feed{}).Error
}
