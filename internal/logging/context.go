package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const runIDKey contextKey = "run_id"

// NewRunID returns a fresh identifier for a reconcile run.
func NewRunID() string {
	return uuid.New().String()
}

// ContextWithRunID attaches a run ID so Ctx can tag every entry of that run.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext returns the run ID, or "" when none is set.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger enriched with the run ID found in ctx.
func Ctx(ctx context.Context) *zerolog.Logger {
	l := Logger()
	if ctx != nil {
		if id := RunIDFromContext(ctx); id != "" {
			l = l.With().Str("run_id", id).Logger()
		}
	}
	return &l
}
