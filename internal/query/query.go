package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/skyfeed/skyfeed/internal/models"
	"github.com/skyfeed/skyfeed/pkg/logging"
	"github.com/skyfeed/skyfeed/pkg/telemetry"
)

// Logger stores executed queries
type Logger interface {
	LogQuery(ctx context.Context, entry *models.QueryLog) error
}

// Attribution identifies who a query runs for
type Attribution struct {
	FeedIdentifier string
	Identity       models.Identity
}

// Query is a translated, ready to run query
type Query struct {
	Target models.QueryTarget
	SQL    string
	Args   []any

	attribution Attribution
	logger      Logger
	now         func() time.Time
}

var queryDuration = telemetry.Histogram("skyfeed.query.duration_ms", "Duration of index and warehouse queries", "ms")

// Text returns the query with its arguments, as written to the query log
func (q *Query) Text() string {
	if len(q.Args) == 0 {
		return q.SQL
	}
	return fmt.Sprintf("%s\n-- args: %v", q.SQL, q.Args)
}

// Observe runs fn and records one query log entry with its duration and outcome.
// The entry is written even when fn panics.
func (q *Query) Observe(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	start := q.now()
	defer func() {
		if r := recover(); r != nil {
			q.finalize(ctx, q.now().Sub(start), fmt.Errorf("panic: %v", r))
			panic(r)
		}
		q.finalize(ctx, q.now().Sub(start), err)
	}()
	return fn(ctx)
}

func (q *Query) finalize(ctx context.Context, elapsed time.Duration, err error) {
	finished := q.now()
	entry := &models.QueryLog{
		FeedIdentifier: q.attribution.FeedIdentifier,
		UserDID:        q.attribution.Identity.DID,
		UserHandle:     q.attribution.Identity.Handle,
		Target:         q.Target,
		Query:          q.Text(),
		Duration:       elapsed.Milliseconds(),
		Successful:     err == nil,
		Timestamp:      finished.UnixMilli(),
		CreatedAt:      models.FormatTime(finished),
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}

	queryDuration.Record(ctx, float64(entry.Duration),
		telemetry.Attrs(attribute.String("target", string(q.Target)), attribute.Bool("success", entry.Successful)))

	if q.logger == nil {
		return
	}
	// the request context may already be cancelled; the trail is written regardless
	if logErr := q.logger.LogQuery(context.WithoutCancel(ctx), entry); logErr != nil {
		logging.WithComponent("query").Warn("Failed to write query log",
			zap.String("feed", entry.FeedIdentifier),
			zap.String("target", string(entry.Target)),
			zap.Error(logErr))
	}
}

// header renders the audit comment placed in front of every query
func header(prefix string, attr Attribution) string {
	var b strings.Builder
	for _, line := range []string{attr.Identity.DID, attr.Identity.Handle, attr.FeedIdentifier} {
		b.WriteString(prefix)
		b.WriteString(" ")
		b.WriteString(strings.NewReplacer("\n", " ", "\r", " ").Replace(line))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}
