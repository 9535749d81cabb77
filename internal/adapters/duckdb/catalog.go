// Package duckdb reads a Kaggle-style CSV catalog through DuckDB's CSV reader.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // DuckDB driver

	"github.com/ewilliams-labs/encore/internal/core/domain"
	"github.com/ewilliams-labs/encore/internal/core/ports"
)

// CSVCatalog is a catalog source backed by a CSV file. The file is re-read
// on every LoadCatalog so edits show up on the next run.
type CSVCatalog struct {
	db   *sql.DB
	path string
}

var _ ports.CatalogSource = (*CSVCatalog)(nil)

// NewCSVCatalog opens an in-memory DuckDB instance for reading path.
func NewCSVCatalog(path string) (*CSVCatalog, error) {
	if path == "" {
		return nil, fmt.Errorf("duckdb catalog: empty csv path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("duckdb catalog: %w", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("duckdb catalog: open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("duckdb catalog: ping duckdb: %w", err)
	}

	return &CSVCatalog{db: db, path: path}, nil
}

// Close releases the DuckDB instance.
func (c *CSVCatalog) Close() error {
	return c.db.Close()
}

// LoadCatalog reads every row of the CSV in file order. All columns are read
// as text so malformed feature cells reach domain.NewCatalogRow unchanged
// and end up as missing features rather than failing the whole read.
// Column names match case-insensitively, so TRACK_NAME and track_name both work.
func (c *CSVCatalog) LoadCatalog(ctx context.Context) (domain.Catalog, error) {
	features := domain.Features()
	cols := make([]string, 0, len(features))
	for _, f := range features {
		cols = append(cols, `"`+f.String()+`"`)
	}

	query := fmt.Sprintf(
		`SELECT track_name, artist_name, %s FROM read_csv_auto('%s', header = true, all_varchar = true)`,
		strings.Join(cols, ", "),
		strings.ReplaceAll(c.path, "'", "''"),
	)

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("duckdb catalog: query %s: %w", c.path, err)
	}
	defer rows.Close()

	catalog := domain.Catalog{}
	for rows.Next() {
		var trackName, artistName sql.NullString
		values := make([]any, len(features))
		dest := []any{&trackName, &artistName}
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("duckdb catalog: scan row %d: %w", len(catalog), err)
		}

		raw := make(domain.RawFeatures, len(features))
		for i, f := range features {
			raw[f] = values[i]
		}
		catalog = append(catalog, domain.NewCatalogRow(len(catalog), trackName.String, artistName.String, raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("duckdb catalog: iterate rows: %w", err)
	}

	return catalog, nil
}
