// Package sqlite provides a SQLite-backed catalog source and run history.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3" // Import the driver anonymously

	"github.com/ewilliams-labs/encore/internal/core/domain"
	"github.com/ewilliams-labs/encore/internal/core/ports"
)

// Adapter implements the catalog and run repository ports for SQLite.
type Adapter struct {
	db *sql.DB
}

var (
	_ ports.CatalogSource = (*Adapter)(nil)
	_ ports.RunRepository = (*Adapter)(nil)
)

// NewAdapter creates a connection and runs the schema migration
func NewAdapter(storagePath string) (*Adapter, error) {
	db, err := sql.Open("sqlite3", storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	// Each :memory: connection is its own database.
	if storagePath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	adapter := &Adapter{db: db}

	if err := adapter.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return adapter, nil
}

// Close ensures the DB connection is closed gracefully
func (a *Adapter) Close() error {
	return a.db.Close()
}

// featureColumns lists the quoted feature column names in vector order.
// "key" is an SQL keyword, hence the quoting.
func featureColumns(sep string) string {
	cols := make([]string, 0, len(domain.Features()))
	for _, f := range domain.Features() {
		cols = append(cols, `"`+f.String()+`"`)
	}
	return strings.Join(cols, sep)
}

// LoadCatalog reads the catalog table in insertion order. Feature columns
// are untyped in SQLite, so each value is handed to domain.NewCatalogRow as scanned.
func (a *Adapter) LoadCatalog(ctx context.Context) (domain.Catalog, error) {
	query := fmt.Sprintf(`SELECT track_name, artist_name, %s FROM catalog ORDER BY id ASC`, featureColumns(", "))

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	defer rows.Close()

	features := domain.Features()
	catalog := domain.Catalog{}
	for rows.Next() {
		var trackName, artistName sql.NullString
		values := make([]any, len(features))
		dest := make([]any, 0, len(features)+2)
		dest = append(dest, &trackName, &artistName)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}

		raw := make(domain.RawFeatures, len(features))
		for i, f := range features {
			raw[f] = values[i]
		}
		catalog = append(catalog, domain.NewCatalogRow(len(catalog), trackName.String, artistName.String, raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate catalog: %w", err)
	}

	return catalog, nil
}

// ReplaceCatalog swaps the stored catalog for the given rows in one
// transaction. Missing features are written as NULL.
func (a *Adapter) ReplaceCatalog(ctx context.Context, catalog domain.Catalog) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safety net: auto-rollback if we error/panic before commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM catalog"); err != nil {
		return fmt.Errorf("failed to clear catalog: %w", err)
	}

	features := domain.Features()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(features)+2), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO catalog (track_name, artist_name, %s) VALUES (%s)`,
		featureColumns(", "), placeholders,
	))
	if err != nil {
		return fmt.Errorf("failed to prepare catalog insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range catalog {
		raw := row.Raw()
		args := make([]any, 0, len(features)+2)
		args = append(args, row.TrackName, row.ArtistName)
		for _, f := range features {
			args = append(args, raw[f])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to save catalog row %d: %w", row.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transaction commit failed: %w", err)
	}

	return nil
}

// SaveRun upserts a run report by ID.
func (a *Adapter) SaveRun(ctx context.Context, r domain.RunReport) error {
	trackIDs, err := json.Marshal(r.TrackIDs)
	if err != nil {
		return fmt.Errorf("failed to encode track ids: %w", err)
	}

	query := `
		INSERT INTO runs (
			id, started_at, finished_at, outcome, observations, matched,
			recommended, resolved, track_ids, error, notify_error
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			started_at=excluded.started_at,
			finished_at=excluded.finished_at,
			outcome=excluded.outcome,
			observations=excluded.observations,
			matched=excluded.matched,
			recommended=excluded.recommended,
			resolved=excluded.resolved,
			track_ids=excluded.track_ids,
			error=excluded.error,
			notify_error=excluded.notify_error;
	`
	if _, err := a.db.ExecContext(
		ctx,
		query,
		r.ID,
		unixNano(r.StartedAt),
		unixNano(r.FinishedAt),
		string(r.Outcome),
		r.Observations,
		r.Matched,
		r.Recommended,
		r.Resolved,
		string(trackIDs),
		r.Error,
		r.NotifyError,
	); err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.ID, err)
	}

	return nil
}

const runColumns = `id, started_at, finished_at, outcome, observations, matched,
	recommended, resolved, track_ids, error, notify_error`

// GetRun returns one stored report or domain.ErrNotFound.
func (a *Adapter) GetRun(ctx context.Context, id string) (domain.RunReport, error) {
	row := a.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RunReport{}, domain.ErrNotFound
		}
		return domain.RunReport{}, fmt.Errorf("failed to load run: %w", err)
	}
	return r, nil
}

// ListRuns returns up to limit reports, newest first.
func (a *Adapter) ListRuns(ctx context.Context, limit int) ([]domain.RunReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, id ASC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	out := []domain.RunReport{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (domain.RunReport, error) {
	var (
		r                   domain.RunReport
		started, finished   int64
		outcome, trackIDs   string
		runErr, notifyError sql.NullString
	)
	if err := s.Scan(
		&r.ID,
		&started,
		&finished,
		&outcome,
		&r.Observations,
		&r.Matched,
		&r.Recommended,
		&r.Resolved,
		&trackIDs,
		&runErr,
		&notifyError,
	); err != nil {
		return domain.RunReport{}, err
	}

	r.StartedAt = fromUnixNano(started)
	r.FinishedAt = fromUnixNano(finished)
	r.Outcome = domain.Outcome(outcome)
	r.Error = runErr.String
	r.NotifyError = notifyError.String
	if trackIDs != "" && trackIDs != "null" {
		if err := json.Unmarshal([]byte(trackIDs), &r.TrackIDs); err != nil {
			return domain.RunReport{}, fmt.Errorf("failed to decode track ids: %w", err)
		}
	}
	return r, nil
}

// unixNano stores the zero time as 0; a queued run has no finish time yet.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func (a *Adapter) migrate() error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS catalog (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		track_name TEXT NOT NULL,
		artist_name TEXT NOT NULL,
		%s -- untyped: SQLite keeps whatever was imported, text included
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		observations INTEGER NOT NULL DEFAULT 0,
		matched INTEGER NOT NULL DEFAULT 0,
		recommended INTEGER NOT NULL DEFAULT 0,
		resolved INTEGER NOT NULL DEFAULT 0,
		track_ids TEXT,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`, featureColumns(",\n\t\t"))
	if _, err := a.db.Exec(query); err != nil {
		return err
	}

	// notify_error arrived after the first schema.
	if _, err := a.db.Exec("ALTER TABLE runs ADD COLUMN notify_error TEXT"); err != nil {
		if !isDuplicateColumnError(err) {
			return err
		}
	}

	return nil
}

func isDuplicateColumnError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "duplicate column") || strings.Contains(err.Error(), "already exists"))
}
