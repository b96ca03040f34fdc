package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skyfeed/skyfeed/internal/alert"
	"github.com/skyfeed/skyfeed/internal/models"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]models.Post
	err     error
}

func (s *fakeSink) Name() string {
	return "fake"
}

func (s *fakeSink) Flush(_ context.Context, posts []models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, posts)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func testPost(n int) models.Post {
	return models.Post{
		URI:       fmt.Sprintf("at://did:plc:a/app.bsky.feed.post/%d", n),
		Author:    "did:plc:a",
		Text:      fmt.Sprintf("post %d", n),
		IndexedAt: "2024-05-01T10:00:00.000Z",
		CreatedAt: "2024-05-01T10:00:00.000Z",
	}
}

func TestPipelineHandsOffAtThreshold(t *testing.T) {
	sink := &fakeSink{}
	p := NewPipeline(3, time.Minute, nil, sink)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		p.Add(ctx, testPost(i))
	}

	if got := len(p.batches); got != 2 {
		t.Fatalf("Expected 2 batches handed off, got %d", got)
	}
	if got := p.Buffered(); got != 1 {
		t.Errorf("Buffered() = %d, want 1", got)
	}

	for i := 0; i < 2; i++ {
		if err := p.Flush(ctx, <-p.batches); err != nil {
			t.Fatalf("Flush() error = %v", err)
		}
	}
	if err := p.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if sink.count() != 3 {
		t.Errorf("Expected 3 flushed batches, got %d", sink.count())
	}
	if len(sink.batches[0]) != 3 || len(sink.batches[2]) != 1 {
		t.Errorf("Unexpected batch sizes %d and %d", len(sink.batches[0]), len(sink.batches[2]))
	}
}

func TestPipelineDropsBatchWhenFlusherIsBehind(t *testing.T) {
	p := NewPipeline(1, time.Minute, nil, &fakeSink{})
	for i := 0; i < pendingBatches+2; i++ {
		p.Add(context.Background(), testPost(i))
	}
	if got := len(p.batches); got != pendingBatches {
		t.Errorf("Expected %d pending batches, got %d", pendingBatches, got)
	}
}

func TestPipelineDrainFlushesPendingAndBuffered(t *testing.T) {
	sink := &fakeSink{}
	p := NewPipeline(2, time.Minute, nil, sink)
	for i := 0; i < 5; i++ {
		p.Add(context.Background(), testPost(i))
	}

	if err := p.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if got := sink.count(); got != 3 {
		t.Errorf("Expected 3 flushed batches, got %d", got)
	}
	if p.Buffered() != 0 || len(p.batches) != 0 {
		t.Errorf("Expected nothing left after drain")
	}
}

func TestPipelineInterceptors(t *testing.T) {
	p := NewPipeline(10, time.Minute, nil, &fakeSink{})
	p.Use(SkipEmptyText())
	p.Use(InterceptorFunc(func(_ context.Context, post models.Post) (models.Post, bool) {
		post.Text = strings.ToUpper(post.Text)
		return post, true
	}))

	empty := testPost(1)
	empty.Text = ""
	p.Add(context.Background(), empty)
	p.Add(context.Background(), testPost(2))

	if p.Buffered() != 1 {
		t.Fatalf("Buffered() = %d, want 1", p.Buffered())
	}
	if got := p.buffer[0].Text; got != "POST 2" {
		t.Errorf("Expected rewritten text, got %q", got)
	}
}

func TestPipelineFlushFailures(t *testing.T) {
	ctx := context.Background()
	failing := &fakeSink{err: errors.New("quota exceeded")}
	notifier := &recordingNotifier{}
	escalator := alert.NewEscalator("Firehose warehouse flush", notifier, 2)

	p := NewPipeline(10, 90*time.Second, escalator, failing)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	now := start
	p.now = func() time.Time { return now }
	p.lastFlush.Store(start.UnixNano())

	for i := 0; i < 3; i++ {
		if err := p.Flush(ctx, []models.Post{testPost(i)}); err == nil {
			t.Fatal("Expected flush error")
		}
	}
	if escalator.Failures() != 3 {
		t.Errorf("Failures() = %d, want 3", escalator.Failures())
	}
	if len(notifier.messages) == 0 {
		t.Error("Expected an alert after repeated failures")
	}

	now = start.Add(91 * time.Second)
	if !p.IsDelayed() {
		t.Error("Expected pipeline to be delayed after the timeout without a successful flush")
	}

	failing.err = nil
	if err := p.Flush(ctx, []models.Post{testPost(9)}); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if p.IsDelayed() {
		t.Error("Expected pipeline to recover after a successful flush")
	}
	if escalator.Failures() != 0 {
		t.Errorf("Failures() after success = %d, want 0", escalator.Failures())
	}
}

func TestPipelineHandle(t *testing.T) {
	p := NewPipeline(10, time.Minute, nil, &fakeSink{})
	ctx := context.Background()

	p.Handle(ctx, []byte(`not json`))
	p.Handle(ctx, []byte(`{"did":"did:plc:a","kind":"commit","commit":{"operation":"delete","collection":"app.bsky.feed.post","rkey":"1"}}`))
	p.Handle(ctx, []byte(`{"did":"did:plc:a","kind":"commit","commit":{"operation":"create","collection":"app.bsky.feed.post","rkey":"1","cid":"c","record":{"text":"hi","createdAt":"2024-05-01T10:00:00.000Z"}}}`))

	if p.Buffered() != 1 {
		t.Errorf("Buffered() = %d, want 1", p.Buffered())
	}
}

type delayedProbe struct{}

func (delayedProbe) IsDelayed() bool { return true }

func TestWatchdogFiresWhenDelayed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 1)
	w := NewWatchdog(delayedProbe{}, time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
		cancel()
	})

	go w.Run(ctx)

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("Watchdog did not fire")
	}
}
