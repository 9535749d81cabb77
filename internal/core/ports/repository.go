package ports

import (
	"context"

	"github.com/ewilliams-labs/encore/internal/core/domain"
)

// CatalogSource returns a fresh snapshot of the reference catalog.
type CatalogSource interface {
	LoadCatalog(ctx context.Context) (domain.Catalog, error)
}

// RunRepository stores reconcile run reports.
type RunRepository interface {
	SaveRun(ctx context.Context, r domain.RunReport) error
	GetRun(ctx context.Context, id string) (domain.RunReport, error)
	ListRuns(ctx context.Context, limit int) ([]domain.RunReport, error)
}
