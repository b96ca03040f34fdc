package localindex

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/skyfeed/skyfeed/internal/models"
	"github.com/skyfeed/skyfeed/pkg/telemetry"
)

const insertPost = `INSERT INTO "post" ("uri", "author", "text", "indexedAt", "createdAt") VALUES (?, ?, ?, ?, ?)`

// Insert writes posts in a single transaction
func (i *Index) Insert(ctx context.Context, posts []models.Post) (err error) {
	if len(posts) == 0 {
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "localindex.Insert")
	span.SetAttributes(attribute.Int("posts", len(posts)))
	defer func() { telemetry.EndSpan(span, err) }()

	return i.Write(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin insert: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, insertPost)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range posts {
			if _, err := stmt.ExecContext(ctx, p.URI, p.Author, p.Text, p.IndexedAt, p.CreatedAt); err != nil {
				return fmt.Errorf("failed to insert %s: %w", p.URI, err)
			}
		}
		return tx.Commit()
	})
}

// Search runs a compiled index query. The query must select
// "uri", "author", "text", "indexedAt", "createdAt" in that order.
func (i *Index) Search(ctx context.Context, query string, args []any) (posts []models.Post, err error) {
	ctx, span := telemetry.StartSpan(ctx, "localindex.Search")
	defer func() {
		span.SetAttributes(attribute.Int("rows", len(posts)))
		telemetry.EndSpan(span, err)
	}()

	err = i.Read(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var p models.Post
			var createdAt sql.NullString
			if err := rows.Scan(&p.URI, &p.Author, &p.Text, &p.IndexedAt, &createdAt); err != nil {
				return err
			}
			p.CreatedAt = createdAt.String
			posts = append(posts, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("index search failed: %w", err)
	}
	return posts, nil
}

// Count returns the number of indexed rows
func (i *Index) Count(ctx context.Context) (int64, error) {
	var count int64
	err := i.Read(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `SELECT count(*) FROM "post"`).Scan(&count)
	})
	return count, err
}
