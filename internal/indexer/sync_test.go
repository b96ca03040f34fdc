package indexer

import (
	"context"
	"testing"
	"time"

	"github.com/skyfeed/skyfeed/internal/models"
	"github.com/skyfeed/skyfeed/pkg/config"
)

type discardInserter struct{}

func (discardInserter) Insert(context.Context, []models.Post) error {
	return nil
}

func localFirehoseConfig() *config.FirehoseConfig {
	return &config.FirehoseConfig{
		Endpoint:           "wss://jetstream.invalid/subscribe",
		Mode:               config.ModeLocal,
		ReconnectDelay:     time.Second,
		LocalFlushSize:     500,
		WarehouseFlushSize: 2500,
		LocalTimeout:       30 * time.Second,
		WarehouseTimeout:   90 * time.Second,
		AlertAfterFailures: 3,
	}
}

func TestSyncBuffersPostCreations(t *testing.T) {
	tests := []struct {
		name          string
		skipEmptyText bool
		message       string
		wantBuffered  int
	}{
		{
			name:         "commit without collection",
			message:      `{"kind":"commit","did":"did:plc:a","commit":{"operation":"create","cid":"bafy","rkey":"3k","record":{"text":"hello #cats","createdAt":"2024-05-01T10:00:00.000Z"}}}`,
			wantBuffered: 1,
		},
		{
			name:         "empty text",
			message:      `{"kind":"commit","did":"did:plc:a","commit":{"operation":"create","collection":"app.bsky.feed.post","cid":"bafy","rkey":"3k","record":{"text":"","createdAt":"2024-05-01T10:00:00.000Z"}}}`,
			wantBuffered: 1,
		},
		{
			name:          "empty text skipped when configured",
			skipEmptyText: true,
			message:       `{"kind":"commit","did":"did:plc:a","commit":{"operation":"create","collection":"app.bsky.feed.post","cid":"bafy","rkey":"3k","record":{"text":"","createdAt":"2024-05-01T10:00:00.000Z"}}}`,
		},
		{
			name:    "like without collection filter",
			message: `{"kind":"commit","did":"did:plc:a","commit":{"operation":"create","collection":"app.bsky.feed.like","cid":"bafy","rkey":"3k","record":{"subject":{}}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := localFirehoseConfig()
			cfg.SkipEmptyText = tt.skipEmptyText
			s, err := NewSync(cfg, Targets{Index: discardInserter{}}, &recordingNotifier{}, func() {})
			if err != nil {
				t.Fatalf("NewSync() error = %v", err)
			}

			s.pipeline.Handle(context.Background(), []byte(tt.message))
			if got := s.pipeline.Buffered(); got != tt.wantBuffered {
				t.Errorf("Buffered() = %d, want %d", got, tt.wantBuffered)
			}
		})
	}
}
