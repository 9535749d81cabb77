package worker

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/ewilliams-labs/encore/internal/logging"
)

// SupervisorConfig holds suture's restart policy.
type SupervisorConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// NewSupervisor builds a suture supervisor whose events go to the process logger.
// Zero fields take suture's defaults.
func NewSupervisor(name string, cfg SupervisorConfig) *suture.Supervisor {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	log := loggerFor("supervisor")
	return suture.New(name, suture.Spec{
		EventHook:        eventHook(log),
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	})
}

//nolint:gocritic // zerolog.Logger is designed to be passed by value
func eventHook(log zerolog.Logger) suture.EventHook {
	return func(e suture.Event) {
		entry := log.Warn()
		if e.Type() == suture.EventTypeResume {
			entry = log.Info()
		}
		entry.Fields(e.Map()).Msg(e.String())
	}
}

func loggerFor(component string) zerolog.Logger {
	return logging.With().Str("component", component).Logger()
}
