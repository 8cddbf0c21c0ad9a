// Package query defines the relation exchanged between SQL execution and
// summarization, and the engine contract the assistant executes against.
package query

import (
	"context"
	"fmt"
)

type Relation struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

// Head returns a relation holding at most n leading rows of r.
func (r Relation) Head(n int) Relation {
	if n < 0 || n >= len(r.Rows) {
		return r
	}
	return Relation{Columns: r.Columns, Rows: r.Rows[:n], Truncated: true}
}

// ExecError reports a statement the engine refused or failed to run. It is
// an expected outcome of executing model-generated SQL, not a fault.
type ExecError struct {
	Statement string
	Message   string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("query error: %s", e.Message)
}

type Engine interface {
	Execute(ctx context.Context, statement string) (Relation, error)
}
