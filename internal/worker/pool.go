// Package worker runs reconcile jobs in the background and schedules them.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/encore/internal/core/domain"
	"github.com/ewilliams-labs/encore/internal/logging"
)

// Trigger names what queued a job.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerAPI      Trigger = "api"
	TriggerStartup  Trigger = "startup"
)

// Job represents one queued reconcile run.
type Job struct {
	ID        string
	Trigger   Trigger
	Submitted time.Time
}

// NewJob returns a job with a fresh run ID.
func NewJob(trigger Trigger) Job {
	return Job{ID: logging.NewRunID(), Trigger: trigger, Submitted: time.Now()}
}

// Runner executes one run under a caller-chosen ID.
// *services.Orchestrator satisfies it.
type Runner interface {
	RunWithID(ctx context.Context, id string) (domain.RunReport, error)
}

// Pool manages background workers for queued runs.
type Pool struct {
	runner     Runner
	jobs       chan Job
	workers    int
	runTimeout time.Duration
	log        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewPool creates a worker pool with the given worker count and queue size.
func NewPool(runner Runner, workers int, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Pool{
		runner:  runner,
		jobs:    make(chan Job, queueSize),
		workers: workers,
		log:     logging.With().Str("component", "worker").Logger(),
	}
}

// SetRunTimeout bounds each run. Zero leaves runs unbounded.
func (p *Pool) SetRunTimeout(d time.Duration) {
	p.runTimeout = d
}

// Start launches the worker goroutines. Canceling ctx aborts in-flight runs.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.processJob(job)
			}
		}()
	}
}

// Stop closes the queue and waits for queued jobs to drain.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
}

// Submit queues a job without blocking. It reports false when the queue is
// full or the pool is stopped.
func (p *Pool) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		p.log.Warn().Str("run_id", job.ID).Msg("pool stopped, dropping job")
		return false
	}

	select {
	case p.jobs <- job:
		p.log.Debug().Str("run_id", job.ID).Str("trigger", string(job.Trigger)).Msg("job queued")
		return true
	default:
		p.log.Warn().Str("run_id", job.ID).Str("trigger", string(job.Trigger)).Msg("queue full, dropping job")
		return false
	}
}

func (p *Pool) processJob(job Job) {
	ctx := p.ctx
	if p.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.runTimeout)
		defer cancel()
	}

	report, err := p.runner.RunWithID(ctx, job.ID)
	if err != nil {
		p.log.Warn().Err(err).Str("run_id", job.ID).Msg("queued run failed")
		return
	}
	p.log.Info().
		Str("run_id", job.ID).
		Str("trigger", string(job.Trigger)).
		Str("outcome", string(report.Outcome)).
		Dur("queued_for", report.StartedAt.Sub(job.Submitted)).
		Msg("processed job")
}
