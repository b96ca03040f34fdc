package localindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/skyfeed/skyfeed/internal/alert"
	"github.com/skyfeed/skyfeed/internal/models"
)

const bytesPerGB = 1 << 30

// Cleanup deletes posts indexed before cutoff in batches of pageSize rows, one transaction
// per batch. Rows are appended in ingestion order, so the expired rows are a rowid prefix.
func (i *Index) Cleanup(ctx context.Context, cutoff time.Time, pageSize int) (int64, error) {
	mark := models.FormatTime(cutoff)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := i.deleteExpiredBatch(ctx, mark, pageSize)
		if err != nil {
			return total, err
		}
		total += deleted
		if deleted < int64(pageSize) {
			return total, nil
		}
	}
}

func (i *Index) deleteExpiredBatch(ctx context.Context, mark string, pageSize int) (int64, error) {
	var deleted int64
	err := i.Write(ctx, func(conn *sql.Conn) error {
		var boundary sql.NullInt64
		err := conn.QueryRowContext(ctx, `
			SELECT max("rowid") FROM (
				SELECT "rowid", "indexedAt" FROM "post" ORDER BY "rowid" LIMIT ?
			) WHERE "indexedAt" < ?`, pageSize, mark).Scan(&boundary)
		if err != nil {
			return fmt.Errorf("failed to find retention boundary: %w", err)
		}
		if !boundary.Valid {
			return nil
		}

		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(ctx, `DELETE FROM "post" WHERE "rowid" <= ?`, boundary.Int64)
		if err != nil {
			return fmt.Errorf("failed to delete expired posts: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return tx.Commit()
	})
	return deleted, err
}

// SizeLimit returns the configured size limit in bytes, if any
func (i *Index) SizeLimit(ctx context.Context) (int64, bool, error) {
	var limit sql.NullInt64
	err := i.Read(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `SELECT "limit" FROM "config" LIMIT 1`).Scan(&limit)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read size limit: %w", err)
	}
	return limit.Int64, limit.Valid, nil
}

// SetSizeLimit stores the size limit in bytes
func (i *Index) SetSizeLimit(ctx context.Context, limit int64) error {
	return i.Write(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM "config"`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO "config" ("limit") VALUES (?)`, limit); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// Size returns the on-disk size of the database file and its WAL and shared-memory files
func (i *Index) Size() (int64, error) {
	var size int64
	for _, suffix := range []string{"", "-wal", "-shm"} {
		info, err := os.Stat(i.path + suffix)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		size += info.Size()
	}
	return size, nil
}

// Maintainer runs the retention and size-check jobs of an index
type Maintainer struct {
	index             *Index
	notifier          alert.Notifier
	maxAge            time.Duration
	pageSize          int
	cleanupInterval   time.Duration
	sizeCheckInterval time.Duration
	now               func() time.Time
	logger            *zap.Logger
}

// NewMaintainer creates the background jobs for index
func NewMaintainer(index *Index, notifier alert.Notifier, maxAgeDays, pageSize int, cleanupInterval, sizeCheckInterval time.Duration) *Maintainer {
	return &Maintainer{
		index:             index,
		notifier:          notifier,
		maxAge:            time.Duration(maxAgeDays) * 24 * time.Hour,
		pageSize:          pageSize,
		cleanupInterval:   cleanupInterval,
		sizeCheckInterval: sizeCheckInterval,
		now:               time.Now,
		logger:            index.logger.With(zap.String("job", "maintenance")),
	}
}

// Run executes both jobs on their intervals until ctx is cancelled
func (m *Maintainer) Run(ctx context.Context) {
	cleanup := time.NewTicker(m.cleanupInterval)
	defer cleanup.Stop()
	sizeCheck := time.NewTicker(m.sizeCheckInterval)
	defer sizeCheck.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanup.C:
			m.RunCleanup(ctx)
		case <-sizeCheck.C:
			m.RunSizeCheck(ctx)
		}
	}
}

// RunCleanup deletes posts older than the retention window
func (m *Maintainer) RunCleanup(ctx context.Context) {
	start := m.now()
	deleted, err := m.index.Cleanup(ctx, start.Add(-m.maxAge), m.pageSize)
	if err != nil {
		m.logger.Error("Index cleanup failed", zap.Int64("deleted", deleted), zap.Error(err))
		return
	}
	if deleted > 0 {
		m.logger.Info("Index cleanup finished",
			zap.Int64("deleted", deleted),
			zap.Duration("took", m.now().Sub(start)))
	}
}

// RunSizeCheck alerts when the index grows beyond its configured limit
func (m *Maintainer) RunSizeCheck(ctx context.Context) bool {
	limit, ok, err := m.index.SizeLimit(ctx)
	if err != nil {
		m.logger.Error("Failed to read index size limit", zap.Error(err))
		return false
	}
	if !ok || limit <= 0 {
		return false
	}

	size, err := m.index.Size()
	if err != nil {
		m.logger.Error("Failed to measure index size", zap.Error(err))
		return false
	}
	if size < limit {
		return false
	}

	message := fmt.Sprintf("Firehose Cache: %.2fGB", float64(size)/bytesPerGB)
	if err := m.notifier.Notify(ctx, message); err != nil {
		m.logger.Error("Failed to send size alert", zap.Error(err))
	}
	return true
}
