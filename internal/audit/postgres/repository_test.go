package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/askolist/askolist/internal/audit"
)

var entryColumns = []string{"audit_id", "trace_id", "principal", "question", "translated_question", "outcome", "sql_text", "repaired", "row_count", "duration_ms", "created_at"}

func TestRecordAssignsIDAndTimestamp(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Date(2026, time.October, 18, 10, 15, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO query_audit (audit_id, trace_id, principal, question, translated_question, outcome, sql_text, repaired, row_count, duration_ms, created_at)`)).
		WithArgs(sqlmock.AnyArg(), "trace-1", nil, "faturamento por estado", "Revenue by state", "answered", "SELECT 1", true, 2, int64(840), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry, err := repo.Record(context.Background(), audit.Entry{
		TraceID:    "trace-1",
		Question:   "faturamento por estado",
		Translated: "Revenue by state",
		Outcome:    "answered",
		SQL:        "SELECT 1",
		Repaired:   true,
		RowCount:   2,
		DurationMs: 840,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if len(entry.ID) != 36 {
		t.Fatalf("ID = %q", entry.ID)
	}
	if !entry.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v", entry.CreatedAt)
	}
	assertSQLMock(t, mock)
}

func TestRecordRequiresOutcome(t *testing.T) {
	db, mock := newSQLMock(t)
	if _, err := NewRepository(db).Record(context.Background(), audit.Entry{Question: "q"}); err == nil {
		t.Fatal("expected outcome error")
	}
	assertSQLMock(t, mock)
}

func TestGetReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM query_audit
WHERE audit_id = $1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := NewRepository(db).Get(context.Background(), "missing")
	if !errors.Is(err, audit.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestListRecentClampsLimitAndMapsNulls(t *testing.T) {
	db, mock := newSQLMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC
LIMIT $1`)).
		WithArgs(500).
		WillReturnRows(sqlmock.NewRows(entryColumns).
			AddRow("id-2", nil, "alice", "What is AOV?", nil, "glossary", nil, false, 0, int64(300), now).
			AddRow("id-1", "trace-1", nil, "count orders", "count orders", "answered", "SELECT COUNT(*) FROM olist", false, 1, int64(900), now.Add(-time.Minute)))

	entries, err := NewRepository(db).ListRecent(context.Background(), 10000)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %#v", entries)
	}
	if entries[0].TraceID != "" || entries[0].SQL != "" || entries[0].Principal != "alice" {
		t.Fatalf("first entry = %#v", entries[0])
	}
	if entries[1].SQL != "SELECT COUNT(*) FROM olist" || entries[1].RowCount != 1 {
		t.Fatalf("second entry = %#v", entries[1])
	}
	assertSQLMock(t, mock)
}

func TestListRecentDefaultsLimit(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`LIMIT $1`)).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows(entryColumns))

	entries, err := NewRepository(db).ListRecent(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Fatalf("entries = %#v", entries)
	}
	assertSQLMock(t, mock)
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), DBConfig{}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
