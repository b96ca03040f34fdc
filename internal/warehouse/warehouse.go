// Package warehouse talks to the BigQuery tables holding the full post history.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/skyfeed/skyfeed/internal/models"
	"github.com/skyfeed/skyfeed/pkg/config"
	"github.com/skyfeed/skyfeed/pkg/logging"
	"github.com/skyfeed/skyfeed/pkg/telemetry"
)

// Client wraps a BigQuery client bound to one dataset
type Client struct {
	bq              *bigquery.Client
	dataset         string
	table           string
	realtimeTable   string
	realtimeEnabled bool
	logger          *zap.Logger
}

// New creates a warehouse client from configuration
func New(ctx context.Context, cfg *config.WarehouseConfig) (*Client, error) {
	var opts []option.ClientOption
	if cfg.KeyFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.KeyFile))
	}

	bq, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}

	logger := logging.WithComponent("warehouse")
	logger.Info("Warehouse client created",
		zap.String("project", cfg.ProjectID),
		zap.String("dataset", cfg.DatasetID),
		zap.String("table", cfg.TableID),
		zap.Bool("realtime", cfg.RealtimeEnabled))

	return &Client{
		bq:              bq,
		dataset:         cfg.DatasetID,
		table:           cfg.TableID,
		realtimeTable:   cfg.RealtimeTableID,
		realtimeEnabled: cfg.RealtimeEnabled,
		logger:          logger,
	}, nil
}

// row is the warehouse schema of a post
type row struct {
	URI       string                 `bigquery:"uri"`
	CID       bigquery.NullString    `bigquery:"cid"`
	Author    bigquery.NullString    `bigquery:"author"`
	Text      bigquery.NullString    `bigquery:"text"`
	IndexedAt time.Time              `bigquery:"indexedAt"`
	CreatedAt bigquery.NullTimestamp `bigquery:"createdAt"`
}

func (r row) post() models.Post {
	p := models.Post{
		URI:       r.URI,
		CID:       r.CID.StringVal,
		Author:    r.Author.StringVal,
		Text:      r.Text.StringVal,
		IndexedAt: models.FormatTime(r.IndexedAt),
	}
	if r.CreatedAt.Valid {
		p.CreatedAt = models.FormatTime(r.CreatedAt.Timestamp)
	}
	return p
}

// saver streams a post with its URI as insert id, letting BigQuery drop retried duplicates
type saver struct {
	post models.Post
}

// Save implements bigquery.ValueSaver. Author-declared timestamps that do not parse
// are stored as NULL instead of failing the whole insert.
func (s saver) Save() (map[string]bigquery.Value, string, error) {
	indexedAt, ok := models.ParseTime(s.post.IndexedAt)
	if !ok {
		return nil, "", fmt.Errorf("post %s has invalid indexedAt %q", s.post.URI, s.post.IndexedAt)
	}
	values := map[string]bigquery.Value{
		"uri":       s.post.URI,
		"cid":       s.post.CID,
		"author":    s.post.Author,
		"text":      s.post.Text,
		"indexedAt": indexedAt,
		"createdAt": nil,
	}
	if createdAt, ok := models.ParseTime(s.post.CreatedAt); ok {
		values["createdAt"] = createdAt
	}
	return values, s.post.URI, nil
}

// Insert streams posts into the history table and, when enabled, the realtime table
func (c *Client) Insert(ctx context.Context, posts []models.Post) (err error) {
	if len(posts) == 0 {
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "warehouse.Insert")
	span.SetAttributes(attribute.Int("posts", len(posts)))
	defer func() { telemetry.EndSpan(span, err) }()

	savers := make([]saver, len(posts))
	for i, p := range posts {
		savers[i] = saver{post: p}
	}

	if err := c.put(ctx, c.table, savers); err != nil {
		return err
	}
	if c.realtimeEnabled {
		if err := c.put(ctx, c.realtimeTable, savers); err != nil {
			return fmt.Errorf("realtime table: %w", err)
		}
	}
	return nil
}

func (c *Client) put(ctx context.Context, table string, savers []saver) error {
	inserter := c.bq.Dataset(c.dataset).Table(table).Inserter()
	if err := inserter.Put(ctx, savers); err != nil {
		var multi bigquery.PutMultiError
		if errors.As(err, &multi) {
			c.logger.Warn("Rows rejected by warehouse",
				zap.String("table", table),
				zap.Int("rejected", len(multi)),
				zap.Int("sent", len(savers)))
		}
		return fmt.Errorf("failed to insert into %s.%s: %w", c.dataset, table, err)
	}
	return nil
}

// Query runs a parameterised query with positional parameters
func (c *Client) Query(ctx context.Context, sql string, args []any) (posts []models.Post, err error) {
	ctx, span := telemetry.StartSpan(ctx, "warehouse.Query")
	defer func() {
		span.SetAttributes(attribute.Int("rows", len(posts)))
		telemetry.EndSpan(span, err)
	}()

	q := c.bq.Query(sql)
	q.Parameters = make([]bigquery.QueryParameter, len(args))
	for i, arg := range args {
		q.Parameters[i] = bigquery.QueryParameter{Value: arg}
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("warehouse query failed: %w", err)
	}

	for {
		var r row
		err := it.Next(&r)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read warehouse row: %w", err)
		}
		posts = append(posts, r.post())
	}
	return posts, nil
}

// Close closes the underlying client
func (c *Client) Close() error {
	return c.bq.Close()
}
