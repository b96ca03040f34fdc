// Package localindex is the embedded full-text index holding the recent window of posts.
package localindex

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	// Pure-Go SQLite driver with FTS5, registered as "sqlite"
	_ "modernc.org/sqlite"

	"github.com/skyfeed/skyfeed/pkg/config"
	"github.com/skyfeed/skyfeed/pkg/logging"
)

var (
	writerPragmas = []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -20480",
	}
	readerPragmas = []string{
		"PRAGMA cache_size = -20480",
	}
)

// Index owns two pools over the same database file: a single-connection writer and a
// read-only reader pool, so searches never queue behind flushes.
type Index struct {
	path   string
	writer *sql.DB
	reader *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the index at cfg.Path and applies the schema
func Open(cfg *config.IndexConfig) (*Index, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	writer, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open index writer: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	version, err := runMigrations(writer)
	if err != nil {
		writer.Close()
		return nil, err
	}

	// The writer has created the file and switched it to WAL before readers attach
	reader, err := sql.Open("sqlite", cfg.Path+"?_pragma=busy_timeout(5000)&_pragma=query_only(1)")
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to open index reader: %w", err)
	}
	reader.SetMaxOpenConns(cfg.ReaderPoolSize)
	reader.SetMaxIdleConns(min(cfg.ReaderPoolSize, 10))

	idx := &Index{
		path:   cfg.Path,
		writer: writer,
		reader: reader,
		logger: logging.WithComponent("localindex"),
	}
	idx.logger.Info("Local index opened",
		zap.String("path", cfg.Path),
		zap.Uint("schema_version", version),
		zap.Int("reader_pool", cfg.ReaderPoolSize))
	return idx, nil
}

// Read runs fn on a pooled read-only connection
func (i *Index) Read(ctx context.Context, fn func(*sql.Conn) error) error {
	return acquire(ctx, i.reader, readerPragmas, fn)
}

// Write runs fn on the writer connection
func (i *Index) Write(ctx context.Context, fn func(*sql.Conn) error) error {
	return acquire(ctx, i.writer, writerPragmas, fn)
}

func acquire(ctx context.Context, pool *sql.DB, pragmas []string, fn func(*sql.Conn) error) error {
	conn, err := pool.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire index connection: %w", err)
	}
	defer conn.Close()

	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return fn(conn)
}

// Path returns the database file path
func (i *Index) Path() string {
	return i.path
}

// Close closes both pools
func (i *Index) Close() error {
	rerr := i.reader.Close()
	werr := i.writer.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// Health pings the reader pool
func (i *Index) Health(ctx context.Context) error {
	return i.reader.PingContext(ctx)
}
