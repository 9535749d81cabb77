package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Submitter accepts jobs without blocking. *Pool satisfies it.
type Submitter interface {
	Submit(job Job) bool
}

// Scheduler submits a run on a fixed interval. It implements suture.Service.
type Scheduler struct {
	pool       Submitter
	interval   time.Duration
	runOnStart bool
	newJob     func(Trigger) Job
	log        zerolog.Logger
}

// NewScheduler creates a scheduler. A non-positive interval falls back to one hour.
func NewScheduler(pool Submitter, interval time.Duration, runOnStart bool) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		pool:       pool,
		interval:   interval,
		runOnStart: runOnStart,
		newJob:     NewJob,
		log:        loggerFor("scheduler"),
	}
}

// Serve implements suture.Service. It returns ctx.Err() once canceled.
func (s *Scheduler) Serve(ctx context.Context) error {
	if s.runOnStart {
		s.pool.Submit(s.newJob(TriggerStartup))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.pool.Submit(s.newJob(TriggerSchedule))
		}
	}
}

// String identifies the service in supervisor events.
func (s *Scheduler) String() string {
	return "scheduler"
}
