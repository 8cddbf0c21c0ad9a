// Package duckdb executes statements against a dataset bound into an
// embedded, in-memory DuckDB database.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/askolist/askolist/internal/dataset"
	"github.com/askolist/askolist/internal/query"
)

// RelationName is the view every statement queries.
const RelationName = "olist"

var readOnlyKeywords = []string{"SELECT", "WITH", "FROM", "DESCRIBE", "SUMMARIZE", "EXPLAIN", "SHOW", "VALUES"}

type Options struct {
	// MaxRows caps the rows kept from one result; 0 keeps all of them.
	MaxRows int
	// ReadOnly rejects statements that do not start with a query keyword
	// before they reach the database.
	ReadOnly bool
}

type Engine struct {
	db   *sql.DB
	opts Options
}

// Bind opens a fresh in-memory database and exposes ds as a read-only view
// named RelationName.
func Bind(ctx context.Context, ds *dataset.Dataset, opts Options) (*Engine, error) {
	if ds == nil || strings.TrimSpace(ds.Path) == "" {
		return nil, fmt.Errorf("dataset is required")
	}
	if opts.MaxRows < 0 {
		return nil, fmt.Errorf("max rows must be >= 0")
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	viewSQL := fmt.Sprintf(`CREATE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(RelationName), quoteString(ds.Path))
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create view %q: %w", RelationName, err)
	}
	return &Engine{db: db, opts: opts}, nil
}

// Execute runs one statement. Statement failures come back as
// *query.ExecError; a cancelled or expired ctx comes back as a wrapped
// context error so callers can tell the two apart.
func (e *Engine) Execute(ctx context.Context, statement string) (query.Relation, error) {
	if e == nil || e.db == nil {
		return query.Relation{}, fmt.Errorf("engine is closed")
	}
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return query.Relation{}, &query.ExecError{Statement: statement, Message: "empty statement"}
	}
	if e.opts.ReadOnly && !isReadOnly(statement) {
		return query.Relation{}, &query.ExecError{Statement: statement, Message: "only read-only queries are allowed"}
	}

	rows, err := e.db.QueryContext(ctx, statement)
	if err != nil {
		return query.Relation{}, classify(ctx, statement, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Relation{}, classify(ctx, statement, err)
	}

	result := query.Relation{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		if e.opts.MaxRows > 0 && len(result.Rows) == e.opts.MaxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Relation{}, classify(ctx, statement, err)
		}
		result.Rows = append(result.Rows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Relation{}, classify(ctx, statement, err)
	}
	return result, nil
}

func (e *Engine) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

func classify(ctx context.Context, statement string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("execute query: %w", ctxErr)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("execute query: %w", err)
	}
	return &query.ExecError{Statement: statement, Message: err.Error()}
}

func isReadOnly(statement string) bool {
	trimmed := strings.TrimLeft(statement, "( \t\r\n")
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return false
	}
	first := strings.ToUpper(fields[0])
	for _, keyword := range readOnlyKeywords {
		if first == keyword {
			return true
		}
	}
	return false
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case duckdb.Decimal:
			normalized[i] = typed.Float64()
		case *big.Int:
			if typed.IsInt64() {
				normalized[i] = typed.Int64()
			} else {
				normalized[i] = typed.String()
			}
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
