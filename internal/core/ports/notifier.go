package ports

import (
	"context"

	"github.com/ewilliams-labs/encore/internal/core/domain"
)

// Notifier delivers a run summary to whoever is listening.
type Notifier interface {
	Notify(ctx context.Context, report domain.RunReport) error
}
