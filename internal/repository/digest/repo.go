// Package digest archives pipeline runs and their annotated items in SQLite.
package digest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/kailas-cloud/newsdigest/internal/domain"
)

// Repo is the run archive.
type Repo struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// Open opens or creates the archive at path and bootstraps its schema.
// ":memory:" keeps the archive in memory.
func Open(ctx context.Context, path string) (*Repo, error) {
	if path == "" {
		return nil, fmt.Errorf("archive path is empty: %w", domain.ErrInvalidInput)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap archive schema: %w", err)
	}

	return &Repo{db: db, sb: sq.StatementBuilder.RunWith(db)}, nil
}

// Close releases the database handle.
func (r *Repo) Close() error { return r.db.Close() }

// Ping checks the archive is reachable.
func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// insertBatchSize keeps one item INSERT (8 parameters per row) well below
// SQLite's bound-variable limit.
const insertBatchSize = 500

// SaveRun stores run and its items in one transaction. An empty run ID is
// replaced with a fresh UUID; the stored run is returned.
func (r *Repo) SaveRun(ctx context.Context, run domain.Run, items []domain.AnnotatedItem) (domain.Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}
	run.Tally(items)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Run{}, fmt.Errorf("begin archive tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = sq.Insert("runs").
		Columns("id", "started_at", "finished_at", "weekly", "provider", "model", "total", "fallback").
		Values(run.ID, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), run.Weekly,
			run.Provider, run.Model, run.Total, run.Fallback).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return domain.Run{}, fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	for start := 0; start < len(items); start += insertBatchSize {
		batch := items[start:min(start+insertBatchSize, len(items))]
		ins := sq.Insert("annotated_items").
			Columns("run_id", "position", "title", "link", "source", "category", "summary", "origin")
		for _, it := range batch {
			ins = ins.Values(run.ID, it.Position, it.Title, it.Link, it.Source, it.Category, it.Summary, string(it.Origin))
		}
		if _, err := ins.RunWith(tx).ExecContext(ctx); err != nil {
			return domain.Run{}, fmt.Errorf("insert items %d-%d of run %s: %w", start, start+len(batch), run.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Run{}, fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return run, nil
}

// LatestRun returns the most recently finished run.
func (r *Repo) LatestRun(ctx context.Context) (domain.Run, error) {
	row := r.sb.
		Select("id", "started_at", "finished_at", "weekly", "provider", "model", "total", "fallback").
		From("runs").
		OrderBy("finished_at DESC", "rowid DESC").
		Limit(1).
		QueryRowContext(ctx)

	var run domain.Run
	var started, finished int64
	err := row.Scan(&run.ID, &started, &finished, &run.Weekly, &run.Provider, &run.Model, &run.Total, &run.Fallback)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, fmt.Errorf("latest run: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("scan latest run: %w", err)
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	run.FinishedAt = time.UnixMilli(finished).UTC()
	return run, nil
}

// ListItems returns the items archived for runID ordered by input position.
func (r *Repo) ListItems(ctx context.Context, runID string) ([]domain.AnnotatedItem, error) {
	rows, err := r.sb.
		Select("position", "title", "link", "source", "category", "summary", "origin").
		From("annotated_items").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("position").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query items of run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var items []domain.AnnotatedItem
	for rows.Next() {
		var (
			it     domain.AnnotatedItem
			origin string
		)
		if err := rows.Scan(&it.Position, &it.Title, &it.Link, &it.Source, &it.Category, &it.Summary, &origin); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.Origin = domain.Origin(origin)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items of run %s: %w", runID, err)
	}
	return items, nil
}
