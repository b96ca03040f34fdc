package indexer

import (
	"context"

	"github.com/skyfeed/skyfeed/internal/models"
)

// Interceptor inspects records before they are buffered.
// It returns the record to buffer, possibly rewritten, or false to drop it.
type Interceptor interface {
	Intercept(ctx context.Context, post models.Post) (models.Post, bool)
}

// InterceptorFunc adapts a function to Interceptor
type InterceptorFunc func(ctx context.Context, post models.Post) (models.Post, bool)

// Intercept calls f
func (f InterceptorFunc) Intercept(ctx context.Context, post models.Post) (models.Post, bool) {
	return f(ctx, post)
}

// SkipEmptyText drops records without text
func SkipEmptyText() Interceptor {
	return InterceptorFunc(func(_ context.Context, post models.Post) (models.Post, bool) {
		return post, post.Text != ""
	})
}
