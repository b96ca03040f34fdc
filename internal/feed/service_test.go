package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfeed/skyfeed/internal/cache"
	"github.com/skyfeed/skyfeed/internal/models"
)

type fakeRegistry map[string]*models.Feed

func (r fakeRegistry) Lookup(_ context.Context, did, slug string) (*models.Feed, error) {
	return r[models.FeedIdentifier(did, slug)], nil
}

func TestParseFeedURI(t *testing.T) {
	tests := []struct {
		uri      string
		wantDID  string
		wantRKey string
		wantErr  error
	}{
		{uri: "at://did:plc:pub/app.bsky.feed.generator/cats", wantDID: "did:plc:pub", wantRKey: "cats"},
		{uri: "at://did:plc:pub/app.bsky.feed.post/cats", wantErr: ErrFeedNotFound},
		{uri: "https://did:plc:pub/app.bsky.feed.generator/cats", wantErr: ErrInvalidFeedURI},
		{uri: "at://did:plc:pub/app.bsky.feed.generator", wantErr: ErrInvalidFeedURI},
		{uri: "at://did:plc:pub/app.bsky.feed.generator/", wantErr: ErrInvalidFeedURI},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			did, rkey, err := ParseFeedURI(tt.uri)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDID, did)
			assert.Equal(t, tt.wantRKey, rkey)
		})
	}
}

func TestGetFeedSkeleton(t *testing.T) {
	cats := &models.Feed{Identifier: "did:plc:pub/cats", DID: "did:plc:pub", Slug: "cats", Definition: models.FilterDefinition{Hashtags: []string{" cats "}}}
	nothing := &models.Feed{Identifier: "did:plc:pub/nothing", DID: "did:plc:pub", Slug: "nothing"}
	registry := fakeRegistry{cats.Identifier: cats, nothing.Identifier: nothing}

	logger := &queryLog{}
	index := &fakeIndex{rows: []models.Post{at("a", 1, "#cats")}}
	svc := NewService(registry, NewExecutor(cache.NewService(newMemStore(), 100), index, nil, newBuilder(logger)))
	ctx := context.Background()

	got, err := svc.GetFeedSkeleton(ctx, cats.URI(), "", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, feedURIs(got))
	require.Len(t, logger.entries, 1)
	assert.Equal(t, "anonymous", logger.entries[0].UserDID)
	assert.Equal(t, "n/a", logger.entries[0].UserHandle)
	assert.Equal(t, cats.Identifier, logger.entries[0].FeedIdentifier)

	got, err = svc.GetFeedSkeleton(ctx, nothing.URI(), "", 10, &models.Identity{DID: "did:plc:user"})
	require.NoError(t, err)
	assert.Empty(t, got.Feed)
	assert.Nil(t, got.Cursor)
	assert.Len(t, logger.entries, 1, "nothing feeds do not query")

	_, err = svc.GetFeedSkeleton(ctx, "at://did:plc:pub/app.bsky.feed.generator/missing", "", 10, nil)
	assert.ErrorIs(t, err, ErrFeedNotFound)
}
