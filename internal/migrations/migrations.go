// Package migrations applies the embedded audit schema migrations.
package migrations

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

// ledgerTable records applied versions. The prefix keeps it apart from any
// other tool sharing the audit database.
const ledgerTable = "askolist_schema_migrations"

var fileNamePattern = regexp.MustCompile(`^([0-9]+)_([a-z0-9_]+)\.(up|down)\.sql$`)

type Runner struct {
	fsys fs.FS
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

type migration struct {
	version int64
	name    string
	up      string
	down    string
}

// VersionStatus describes one embedded migration. AppliedAt is zero while
// the migration is pending.
type VersionStatus struct {
	Version   int64
	Name      string
	AppliedAt time.Time
}

func (s VersionStatus) Applied() bool {
	return !s.AppliedAt.IsZero()
}

// Up applies pending migrations in version order. steps <= 0 applies all.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	source, applied, err := r.prepare(ctx, db)
	if err != nil {
		return 0, err
	}
	var pending []migration
	for _, item := range source {
		if _, ok := applied[item.version]; !ok {
			pending = append(pending, item)
		}
	}
	if steps > 0 && len(pending) > steps {
		pending = pending[:steps]
	}
	for i, item := range pending {
		err := runStep(ctx, db, item.up, `INSERT INTO `+ledgerTable+` (version, name) VALUES ($1, $2)`, item.version, item.name)
		if err != nil {
			return i, fmt.Errorf("apply migration %06d_%s: %w", item.version, item.name, err)
		}
	}
	return len(pending), nil
}

// Down rolls back the newest applied migrations. steps <= 0 rolls back one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	source, applied, err := r.prepare(ctx, db)
	if err != nil {
		return 0, err
	}
	versions := make([]int64, 0, len(applied))
	for version := range applied {
		versions = append(versions, version)
	}
	slices.Sort(versions)
	slices.Reverse(versions)
	if len(versions) > steps {
		versions = versions[:steps]
	}

	for i, version := range versions {
		idx := slices.IndexFunc(source, func(m migration) bool { return m.version == version })
		if idx < 0 {
			return i, fmt.Errorf("applied migration %06d is missing from source", version)
		}
		item := source[idx]
		err := runStep(ctx, db, item.down, `DELETE FROM `+ledgerTable+` WHERE version = $1`, item.version)
		if err != nil {
			return i, fmt.Errorf("roll back migration %06d_%s: %w", item.version, item.name, err)
		}
	}
	return len(versions), nil
}

// Status lists every embedded migration with its applied time.
func (r *Runner) Status(ctx context.Context, db *sql.DB) ([]VersionStatus, error) {
	source, applied, err := r.prepare(ctx, db)
	if err != nil {
		return nil, err
	}
	statuses := make([]VersionStatus, 0, len(source))
	for _, item := range source {
		statuses = append(statuses, VersionStatus{Version: item.version, Name: item.name, AppliedAt: applied[item.version]})
	}
	return statuses, nil
}

// prepare loads the embedded scripts, creates the ledger if needed and
// reads which versions it holds.
func (r *Runner) prepare(ctx context.Context, db *sql.DB) ([]migration, map[int64]time.Time, error) {
	source, err := loadMigrations(r.fsys)
	if err != nil {
		return nil, nil, err
	}
	ledger := `CREATE TABLE IF NOT EXISTS ` + ledgerTable + ` (
	version BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := db.ExecContext(ctx, ledger); err != nil {
		return nil, nil, fmt.Errorf("ensure %s: %w", ledgerTable, err)
	}

	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM `+ledgerTable+` ORDER BY version`)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", ledgerTable, err)
	}
	defer func() { _ = rows.Close() }()

	applied := map[int64]time.Time{}
	for rows.Next() {
		var (
			version   int64
			appliedAt time.Time
		)
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", ledgerTable, err)
		}
		applied[version] = appliedAt
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", ledgerTable, err)
	}
	return source, applied, nil
}

// runStep executes a script and its ledger update in one transaction.
func runStep(ctx context.Context, db *sql.DB, script, ledgerSQL string, ledgerArgs ...any) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, ledgerSQL, ledgerArgs...); err != nil {
		return fmt.Errorf("update ledger: %w", err)
	}
	return tx.Commit()
}

// loadMigrations pairs sql/<version>_<name>.(up|down).sql files. Both
// directions are required.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, "sql/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := map[int64]*migration{}
	for _, file := range files {
		matches := fileNamePattern.FindStringSubmatch(path.Base(file))
		if matches == nil {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse version of %q: %w", file, err)
		}
		script, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", file, err)
		}

		item, ok := byVersion[version]
		if !ok {
			item = &migration{version: version, name: matches[2]}
			byVersion[version] = item
		}
		if item.name != matches[2] {
			return nil, fmt.Errorf("migration %06d has two names: %q and %q", version, item.name, matches[2])
		}
		if matches[3] == "up" {
			item.up = string(script)
		} else {
			item.down = string(script)
		}
	}

	out := make([]migration, 0, len(byVersion))
	for _, item := range byVersion {
		if strings.TrimSpace(item.up) == "" {
			return nil, fmt.Errorf("migration %06d_%s missing up SQL", item.version, item.name)
		}
		if strings.TrimSpace(item.down) == "" {
			return nil, fmt.Errorf("migration %06d_%s missing down SQL", item.version, item.name)
		}
		out = append(out, *item)
	}
	slices.SortFunc(out, func(a, b migration) int { return cmp.Compare(a.version, b.version) })
	return out, nil
}
