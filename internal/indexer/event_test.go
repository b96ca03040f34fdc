package indexer

import (
	"testing"
	"time"
)

func TestEventToPost(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		message string
		wantErr bool
		wantOK  bool
		wantURI string
	}{
		{
			name:    "post creation",
			message: `{"did":"did:plc:a","time_us":1,"kind":"commit","commit":{"operation":"create","collection":"app.bsky.feed.post","rkey":"3k","cid":"bafy","record":{"text":"hello #cats","createdAt":"2024-05-01T09:59:59.000Z"}}}`,
			wantOK:  true,
			wantURI: "at://did:plc:a/app.bsky.feed.post/3k",
		},
		{
			name:    "post creation without collection",
			message: `{"did":"did:plc:a","kind":"commit","commit":{"operation":"create","rkey":"3k","cid":"bafy","record":{"text":"","createdAt":"2024-05-01T09:59:59.000Z"}}}`,
			wantOK:  true,
			wantURI: "at://did:plc:a/app.bsky.feed.post/3k",
		},
		{
			name:    "delete is ignored",
			message: `{"did":"did:plc:a","kind":"commit","commit":{"operation":"delete","collection":"app.bsky.feed.post","rkey":"3k"}}`,
		},
		{
			name:    "other collection is ignored",
			message: `{"did":"did:plc:a","kind":"commit","commit":{"operation":"create","collection":"app.bsky.feed.like","rkey":"3k","cid":"bafy","record":{"subject":{}}}}`,
		},
		{
			name:    "identity event is ignored",
			message: `{"did":"did:plc:a","kind":"identity","identity":{"handle":"a.bsky.social"}}`,
		},
		{
			name:    "missing cid",
			message: `{"did":"did:plc:a","kind":"commit","commit":{"operation":"create","collection":"app.bsky.feed.post","rkey":"3k","record":{"text":"x","createdAt":"2024-05-01T09:59:59.000Z"}}}`,
		},
		{
			name:    "missing createdAt",
			message: `{"did":"did:plc:a","kind":"commit","commit":{"operation":"create","collection":"app.bsky.feed.post","rkey":"3k","cid":"bafy","record":{"text":"x"}}}`,
		},
		{
			name:    "malformed json",
			message: `{"did":"did:plc:a","kind":`,
			wantErr: true,
		},
		{
			name:    "malformed record",
			message: `{"did":"did:plc:a","kind":"commit","commit":{"operation":"create","collection":"app.bsky.feed.post","rkey":"3k","cid":"bafy","record":{"text":42}}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := parseEvent([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}

			post, ok := event.post(now)
			if ok != tt.wantOK {
				t.Fatalf("post() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if post.URI != tt.wantURI {
				t.Errorf("URI = %q, want %q", post.URI, tt.wantURI)
			}
			if post.Author != "did:plc:a" {
				t.Errorf("Author = %q", post.Author)
			}
			if post.IndexedAt != "2024-05-01T10:00:00.000Z" {
				t.Errorf("IndexedAt = %q", post.IndexedAt)
			}
			if post.CreatedAt != "2024-05-01T09:59:59.000Z" {
				t.Errorf("CreatedAt = %q", post.CreatedAt)
			}
		})
	}
}
