// Package audit records every answered question for operators. It is host
// state kept beside the assistant; the question pipeline itself persists
// nothing.
package audit

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("audit entry not found")

type Entry struct {
	ID         string    `json:"id"`
	TraceID    string    `json:"trace_id,omitempty"`
	Principal  string    `json:"principal,omitempty"`
	Question   string    `json:"question"`
	Translated string    `json:"translated_question,omitempty"`
	Outcome    string    `json:"outcome"`
	SQL        string    `json:"sql,omitempty"`
	Repaired   bool      `json:"repaired"`
	RowCount   int       `json:"row_count"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) (Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
}
