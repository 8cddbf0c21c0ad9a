// Package postgres stores audit entries in the query_audit table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/askolist/askolist/internal/audit"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping audit db: %w", err)
	}
	return nil
}

// Record inserts entry, assigning an id when it has none.
func (r *Repository) Record(ctx context.Context, entry audit.Entry) (audit.Entry, error) {
	if strings.TrimSpace(entry.Outcome) == "" {
		return audit.Entry{}, fmt.Errorf("audit outcome is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO query_audit (audit_id, trace_id, principal, question, translated_question, outcome, sql_text, repaired, row_count, duration_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID,
		nullString(entry.TraceID),
		nullString(entry.Principal),
		entry.Question,
		nullString(entry.Translated),
		entry.Outcome,
		nullString(entry.SQL),
		entry.Repaired,
		entry.RowCount,
		entry.DurationMs,
		entry.CreatedAt,
	)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("insert audit entry: %w", err)
	}
	return entry, nil
}

func (r *Repository) Get(ctx context.Context, id string) (audit.Entry, error) {
	row := r.db.QueryRowContext(ctx, selectEntries+`
WHERE audit_id = $1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return audit.Entry{}, audit.ErrNotFound
		}
		return audit.Entry{}, fmt.Errorf("get audit entry: %w", err)
	}
	return entry, nil
}

// ListRecent returns the newest entries first. limit is clamped to
// [1, 500] and defaults to 50.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := r.db.QueryContext(ctx, selectEntries+`
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]audit.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

const selectEntries = `
SELECT audit_id, trace_id, principal, question, translated_question, outcome, sql_text, repaired, row_count, duration_ms, created_at
FROM query_audit`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (audit.Entry, error) {
	var (
		entry                                   audit.Entry
		traceID, principal, translated, sqlText sql.NullString
	)
	if err := row.Scan(
		&entry.ID,
		&traceID,
		&principal,
		&entry.Question,
		&translated,
		&entry.Outcome,
		&sqlText,
		&entry.Repaired,
		&entry.RowCount,
		&entry.DurationMs,
		&entry.CreatedAt,
	); err != nil {
		return audit.Entry{}, err
	}
	entry.TraceID = traceID.String
	entry.Principal = principal.String
	entry.Translated = translated.String
	entry.SQL = sqlText.String
	return entry, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
