package indexer

import (
	"context"

	"github.com/skyfeed/skyfeed/internal/models"
)

// Sink receives flushed batches
type Sink interface {
	Name() string
	Flush(ctx context.Context, posts []models.Post) error
}

type inserter interface {
	Insert(ctx context.Context, posts []models.Post) error
}

type insertSink struct {
	name   string
	target inserter
}

func (s insertSink) Name() string {
	return s.name
}

func (s insertSink) Flush(ctx context.Context, posts []models.Post) error {
	return s.target.Insert(ctx, posts)
}

// IndexSink flushes into the local full-text index
func IndexSink(index inserter) Sink {
	return insertSink{name: "index", target: index}
}

// WarehouseSink flushes into the warehouse history table (and its realtime copy when enabled)
func WarehouseSink(warehouse inserter) Sink {
	return insertSink{name: "warehouse", target: warehouse}
}

type batchCreator interface {
	CreateBatch(ctx context.Context, posts []models.Post) error
}

type contentStoreSink struct {
	posts batchCreator
}

// ContentStoreSink appends batches to the relational content store
func ContentStoreSink(posts batchCreator) Sink {
	return contentStoreSink{posts: posts}
}

func (s contentStoreSink) Name() string {
	return "content_store"
}

func (s contentStoreSink) Flush(ctx context.Context, posts []models.Post) error {
	return s.posts.CreateBatch(ctx, posts)
}
