// Package nats publishes run summaries over NATS through a watermill
// publisher guarded by a circuit breaker.
package nats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ewilliams-labs/encore/internal/core/domain"
	"github.com/ewilliams-labs/encore/internal/core/ports"
	"github.com/ewilliams-labs/encore/internal/metrics"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "encore.runs"

// Config holds notifier settings.
type Config struct {
	URL           string
	Subject       string
	MaxReconnects int
	ReconnectWait time.Duration
	// FailureThreshold consecutive failures open the breaker for BreakerTimeout.
	FailureThreshold uint32
	BreakerTimeout   time.Duration
}

// RunSummary is the payload published for every notified run.
type RunSummary struct {
	ID         string         `json:"id"`
	Outcome    domain.Outcome `json:"outcome"`
	Subject    string         `json:"subject"`
	Message    string         `json:"message"`
	Tracks     int            `json:"tracks"`
	TrackIDs   []string       `json:"track_ids,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Notifier implements ports.Notifier.
type Notifier struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker[interface{}]
	subject   string
	logger    watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier connects a core-NATS watermill publisher to cfg.URL.
func NewNotifier(cfg Config, logger watermill.LoggerAdapter) (*Notifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats notifier: empty url")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("nats notifier: create publisher: %w", err)
	}

	return newNotifier(pub, cfg, logger), nil
}

func newNotifier(pub message.Publisher, cfg Config, logger watermill.LoggerAdapter) *Notifier {
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 3
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	breaker := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "nats-notifier",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed", watermill.LogFields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})

	return &Notifier{
		publisher: pub,
		breaker:   breaker,
		subject:   subject,
		logger:    logger,
	}
}

// Summarize builds the published payload for a report.
func Summarize(r domain.RunReport) RunSummary {
	return RunSummary{
		ID:         r.ID,
		Outcome:    r.Outcome,
		Subject:    "Music Recommendations Updated",
		Message:    fmt.Sprintf("Playlist updated with %d tracks.", len(r.TrackIDs)),
		Tracks:     len(r.TrackIDs),
		TrackIDs:   r.TrackIDs,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// Notify publishes one summary. It does not retry; a tripped breaker
// fails fast with gobreaker.ErrOpenState.
func (n *Notifier) Notify(ctx context.Context, r domain.RunReport) error {
	err := n.notify(ctx, r)
	metrics.RecordNotify(err)
	return err
}

func (n *Notifier) notify(ctx context.Context, r domain.RunReport) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return errors.New("nats notifier: closed")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("nats notifier: %w", err)
	}

	data, err := json.Marshal(Summarize(r))
	if err != nil {
		return fmt.Errorf("nats notifier: marshal summary: %w", err)
	}

	msg := message.NewMessage(r.ID, data)
	msg.Metadata.Set("outcome", string(r.Outcome))

	_, err = n.breaker.Execute(func() (interface{}, error) {
		return nil, n.publisher.Publish(n.subject, msg)
	})
	if err != nil {
		return fmt.Errorf("nats notifier: publish to %s: %w", n.subject, err)
	}
	return nil
}

// Close closes the underlying publisher. It is safe to call twice.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	return n.publisher.Close()
}
