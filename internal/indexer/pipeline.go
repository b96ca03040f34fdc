package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/skyfeed/skyfeed/internal/alert"
	"github.com/skyfeed/skyfeed/internal/models"
	"github.com/skyfeed/skyfeed/pkg/logging"
	"github.com/skyfeed/skyfeed/pkg/telemetry"
)

// pendingBatches bounds the batches waiting for the flusher
const pendingBatches = 4

var (
	ingestEvents  = telemetry.Counter("skyfeed.ingest.events", "Firehose events by outcome")
	ingestFlushes = telemetry.Counter("skyfeed.ingest.flushes", "Successful buffer flushes")
	flushFailures = telemetry.Counter("skyfeed.ingest.flush_failures", "Failed buffer flushes by sink")
)

// Pipeline buffers ingested records and flushes them to its sinks in batches.
// A failed batch is dropped, not retried.
type Pipeline struct {
	sinks        []Sink
	interceptors []Interceptor
	threshold    int
	timeout      time.Duration
	escalator    *alert.Escalator
	now          func() time.Time
	logger       *zap.Logger

	mu     sync.Mutex
	buffer []models.Post

	batches   chan []models.Post
	lastFlush atomic.Int64
}

// NewPipeline creates a pipeline flushing every threshold records.
// IsDelayed reports true once no flush succeeded for timeout.
func NewPipeline(threshold int, timeout time.Duration, escalator *alert.Escalator, sinks ...Sink) *Pipeline {
	p := &Pipeline{
		sinks:     sinks,
		threshold: threshold,
		timeout:   timeout,
		escalator: escalator,
		now:       time.Now,
		logger:    logging.WithComponent("indexer"),
		buffer:    make([]models.Post, 0, threshold),
		batches:   make(chan []models.Post, pendingBatches),
	}
	p.lastFlush.Store(p.now().UnixNano())
	return p
}

// Use registers an interceptor. Interceptors run in registration order.
func (p *Pipeline) Use(interceptor Interceptor) {
	p.interceptors = append(p.interceptors, interceptor)
}

// Handle processes one firehose message
func (p *Pipeline) Handle(ctx context.Context, message []byte) {
	event, err := parseEvent(message)
	if err != nil {
		ingestEvents.Add(ctx, 1, telemetry.Attrs(attribute.String("outcome", "malformed")))
		p.logger.Debug("Dropping malformed event", zap.Error(err))
		return
	}

	post, ok := event.post(p.now())
	if !ok {
		ingestEvents.Add(ctx, 1, telemetry.Attrs(attribute.String("outcome", "ignored")))
		return
	}
	p.Add(ctx, post)
}

// Add buffers a record, handing the buffer to the flusher once it reaches the threshold
func (p *Pipeline) Add(ctx context.Context, post models.Post) {
	for _, interceptor := range p.interceptors {
		var keep bool
		if post, keep = interceptor.Intercept(ctx, post); !keep {
			ingestEvents.Add(ctx, 1, telemetry.Attrs(attribute.String("outcome", "intercepted")))
			return
		}
	}
	ingestEvents.Add(ctx, 1, telemetry.Attrs(attribute.String("outcome", "buffered")))

	p.mu.Lock()
	p.buffer = append(p.buffer, post)
	if len(p.buffer) < p.threshold {
		p.mu.Unlock()
		return
	}
	batch := p.buffer
	p.buffer = make([]models.Post, 0, p.threshold)
	p.mu.Unlock()

	select {
	case p.batches <- batch:
	default:
		p.logger.Warn("Flusher is behind, dropping batch", zap.Int("posts", len(batch)))
	}
}

// Run flushes handed-off batches until ctx is cancelled
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch := <-p.batches:
			if err := p.Flush(ctx, batch); err != nil {
				p.logger.Error("Flush failed, batch dropped", zap.Int("posts", len(batch)), zap.Error(err))
			}
		}
	}
}

// Flush writes a batch to every sink. The flush counts as successful only if every sink accepted it.
func (p *Pipeline) Flush(ctx context.Context, batch []models.Post) (err error) {
	if len(batch) == 0 {
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "indexer.Flush")
	span.SetAttributes(attribute.Int("posts", len(batch)))
	defer func() { telemetry.EndSpan(span, err) }()

	var errs []error
	for _, sink := range p.sinks {
		if err := sink.Flush(ctx, batch); err != nil {
			flushFailures.Add(ctx, 1, telemetry.Attrs(attribute.String("sink", sink.Name())))
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		if p.escalator != nil {
			p.escalator.Failure(ctx, err)
		}
		return err
	}

	if p.escalator != nil {
		p.escalator.Success()
	}
	p.lastFlush.Store(p.now().UnixNano())
	ingestFlushes.Add(ctx, 1)
	p.logger.Debug("Flushed batch", zap.Int("posts", len(batch)))
	return nil
}

// Drain flushes the handed-off batches and whatever is buffered, for shutdown
func (p *Pipeline) Drain(ctx context.Context) error {
	var errs []error
	for pending := true; pending; {
		select {
		case batch := <-p.batches:
			errs = append(errs, p.Flush(ctx, batch))
		default:
			pending = false
		}
	}

	p.mu.Lock()
	batch := p.buffer
	p.buffer = make([]models.Post, 0, p.threshold)
	p.mu.Unlock()
	return errors.Join(append(errs, p.Flush(ctx, batch))...)
}

// Buffered returns the number of records waiting for the next flush
func (p *Pipeline) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// LastFlush returns the time of the last successful flush
func (p *Pipeline) LastFlush() time.Time {
	return time.Unix(0, p.lastFlush.Load())
}

// IsDelayed reports whether no flush succeeded within the timeout
func (p *Pipeline) IsDelayed() bool {
	return p.now().Sub(p.LastFlush()) > p.timeout
}
