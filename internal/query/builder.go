package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/skyfeed/skyfeed/internal/models"
)

const localColumns = `SELECT "uri", "author", "text", "indexedAt", "createdAt" FROM "post"`

// Config holds the translation settings
type Config struct {
	// DiggingDepth bounds the rows a local query returns
	DiggingDepth int
	// Table is the fully qualified warehouse table, project.dataset.table
	Table string
	// IntervalDays is the warehouse look-back window
	IntervalDays int
	// Limit bounds the rows a warehouse query returns
	Limit int
}

// Builder translates plans into queries
type Builder struct {
	cfg    Config
	logger Logger
	now    func() time.Time
}

// NewBuilder creates a builder whose queries are recorded through logger
func NewBuilder(cfg Config, logger Logger) *Builder {
	return &Builder{cfg: cfg, logger: logger, now: time.Now}
}

func (b *Builder) query(target models.QueryTarget, sql string, args []any, attr Attribution) *Query {
	return &Query{Target: target, SQL: sql, Args: args, attribution: attr, logger: b.logger, now: b.now}
}

// Local translates a plan into a full-text query against the local index.
// An empty plan yields a query that returns no rows.
func (b *Builder) Local(plan Plan, attr Attribution) *Query {
	var sql string
	var args []any

	switch {
	case plan.Empty():
		sql = localColumns + ` WHERE 0`
	case plan.Include == nil:
		sql = localColumns + ` WHERE "rowid" NOT IN (SELECT "rowid" FROM "post" WHERE "post" MATCH ?)`
		args = []any{matchExpr(plan.Exclude)}
	case plan.Exclude == nil:
		sql = localColumns + ` WHERE "post" MATCH ?`
		args = []any{matchExpr(plan.Include)}
	default:
		sql = localColumns + ` WHERE "post" MATCH ?`
		args = []any{"(" + matchExpr(plan.Include) + ") NOT (" + matchExpr(plan.Exclude) + ")"}
	}
	sql += fmt.Sprintf(` ORDER BY "rowid" DESC LIMIT %d`, b.cfg.DiggingDepth)

	return b.query(models.TargetIndex, header("--", attr)+sql, args, attr)
}

// matchExpr renders an expression in full-text query syntax
func matchExpr(e *Expr) string {
	switch e.Kind {
	case KindAnd, KindOr:
		sep := " AND "
		if e.Kind == KindOr {
			sep = " OR "
		}
		parts := make([]string, len(e.Children))
		for i, c := range e.Children {
			parts[i] = "(" + matchExpr(c) + ")"
		}
		return strings.Join(parts, sep)
	case KindAuthors:
		parts := make([]string, len(e.Authors))
		for i, a := range e.Authors {
			parts[i] = "author : " + phrase(a)
		}
		return strings.Join(parts, " OR ")
	default:
		return "text : " + phrase(e.Value)
	}
}

func phrase(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Warehouse translates a plan into a SQL query against the warehouse table.
// Without a cursor the window ends now; with one it ends at the cursor.
func (b *Builder) Warehouse(plan Plan, attr Attribution, cursor *time.Time) *Query {
	var where []string
	var args []any

	if cursor == nil {
		where = append(where, fmt.Sprintf("indexedAt > TIMESTAMP_SUB(CURRENT_TIMESTAMP(), INTERVAL %d DAY)", b.cfg.IntervalDays))
	} else {
		where = append(where, fmt.Sprintf("indexedAt > TIMESTAMP_SUB(TIMESTAMP_MILLIS(?), INTERVAL %d DAY)", b.cfg.IntervalDays))
		args = append(args, cursor.UnixMilli())
	}

	if plan.Empty() {
		where = append(where, "FALSE")
	}
	if plan.Include != nil {
		clause, a := sqlExpr(plan.Include)
		where = append(where, "("+clause+")")
		args = append(args, a...)
	}
	if plan.Exclude != nil {
		clause, a := sqlExpr(plan.Exclude)
		where = append(where, "NOT ("+clause+")")
		args = append(args, a...)
	}

	sql := fmt.Sprintf("SELECT uri, cid, author, text, indexedAt, createdAt FROM `%s`\nWHERE %s\nORDER BY indexedAt DESC, uri DESC\nLIMIT %d",
		b.cfg.Table, strings.Join(where, "\n  AND "), b.cfg.Limit)

	return b.query(models.TargetWarehouse, header("#", attr)+sql, args, attr)
}

// sqlExpr renders an expression as a SQL condition with positional parameters
func sqlExpr(e *Expr) (string, []any) {
	switch e.Kind {
	case KindAnd, KindOr:
		sep := " AND "
		if e.Kind == KindOr {
			sep = " OR "
		}
		var args []any
		parts := make([]string, len(e.Children))
		for i, c := range e.Children {
			clause, a := sqlExpr(c)
			parts[i] = "(" + clause + ")"
			args = append(args, a...)
		}
		return strings.Join(parts, sep), args
	case KindAuthors:
		return "author IN UNNEST(?)", []any{e.Authors}
	default:
		return "SEARCH(text, ?)", []any{e.Value}
	}
}
