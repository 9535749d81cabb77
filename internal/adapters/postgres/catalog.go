// Package postgres reads the reference catalog from a warehouse table.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ewilliams-labs/encore/internal/core/domain"
	"github.com/ewilliams-labs/encore/internal/core/ports"
)

// DefaultTable is the table the catalog was first published under.
const DefaultTable = "kaggle_data_top_10000"

// DefaultOrderBy is the heap position. It follows load order for a
// bulk-loaded table and keeps a synchronized scan from changing row order.
const DefaultOrderBy = "ctid"

// Querier is the subset of *pgxpool.Pool the catalog needs. pgxmock
// implements it in tests.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Catalog is a catalog source backed by a Postgres table.
type Catalog struct {
	db      Querier
	table   string
	orderBy string
}

var _ ports.CatalogSource = (*Catalog)(nil)

// NewPool connects to dsn and verifies the connection.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres catalog: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres catalog: ping: %w", err)
	}
	return pool, nil
}

// NewCatalog builds a source over table, which may be schema-qualified.
// orderBy names the column that fixes catalog order; empty means DefaultOrderBy.
func NewCatalog(db Querier, table, orderBy string) *Catalog {
	if table == "" {
		table = DefaultTable
	}
	if orderBy == "" {
		orderBy = DefaultOrderBy
	}
	return &Catalog{db: db, table: table, orderBy: orderBy}
}

func (c *Catalog) query() string {
	features := domain.Features()
	cols := make([]string, 0, len(features)+2)
	cols = append(cols, pgx.Identifier{"track_name"}.Sanitize(), pgx.Identifier{"artist_name"}.Sanitize())
	for _, f := range features {
		cols = append(cols, pgx.Identifier{f.String()}.Sanitize())
	}

	q := fmt.Sprintf("SELECT %s FROM %s",
		strings.Join(cols, ", "),
		pgx.Identifier(strings.Split(c.table, ".")).Sanitize(),
	)
	return q + " ORDER BY " + pgx.Identifier{c.orderBy}.Sanitize()
}

// LoadCatalog reads every row of the table.
func (c *Catalog) LoadCatalog(ctx context.Context) (domain.Catalog, error) {
	rows, err := c.db.Query(ctx, c.query())
	if err != nil {
		return nil, fmt.Errorf("postgres catalog: query %s: %w", c.table, err)
	}
	defer rows.Close()

	features := domain.Features()
	catalog := domain.Catalog{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres catalog: read row %d: %w", len(catalog), err)
		}
		if len(values) != len(features)+2 {
			return nil, fmt.Errorf("postgres catalog: row %d has %d columns, want %d", len(catalog), len(values), len(features)+2)
		}

		raw := make(domain.RawFeatures, len(features))
		for i, f := range features {
			raw[f] = plainValue(values[i+2])
		}
		catalog = append(catalog, domain.NewCatalogRow(len(catalog), text(values[0]), text(values[1]), raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres catalog: iterate rows: %w", err)
	}

	return catalog, nil
}

// plainValue unwraps pgtype values that domain.Coerce does not know.
func plainValue(v any) any {
	switch n := v.(type) {
	case pgtype.Numeric:
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case pgtype.Float8:
		if !n.Valid {
			return nil
		}
		return n.Float64
	case pgtype.Text:
		if !n.Valid {
			return nil
		}
		return n.String
	default:
		return v
	}
}

func text(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
