package nats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewilliams-labs/encore/internal/core/domain"
)

type fakePublisher struct {
	mu       sync.Mutex
	err      error
	calls    int
	topics   []string
	messages []*message.Message
	closed   int
}

func (p *fakePublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, messages...)
	return nil
}

func (p *fakePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func sampleReport() domain.RunReport {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return domain.RunReport{
		ID:         "run-1",
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Outcome:    domain.OutcomeUpdated,
		TrackIDs:   []string{"id-a", "id-b", "id-c"},
	}
}

func runEmbeddedServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestSummarize(t *testing.T) {
	got := Summarize(sampleReport())

	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, domain.OutcomeUpdated, got.Outcome)
	assert.Equal(t, 3, got.Tracks)
	assert.Equal(t, "Playlist updated with 3 tracks.", got.Message)
}

func TestNotifier_Notify_PublishesSummary(t *testing.T) {
	pub := &fakePublisher{}
	n := newNotifier(pub, Config{Subject: "runs.test"}, nil)

	require.NoError(t, n.Notify(context.Background(), sampleReport()))

	require.Len(t, pub.messages, 1)
	assert.Equal(t, []string{"runs.test"}, pub.topics)
	assert.Equal(t, "run-1", pub.messages[0].UUID)
	assert.Equal(t, "updated", pub.messages[0].Metadata.Get("outcome"))

	var got RunSummary
	require.NoError(t, json.Unmarshal(pub.messages[0].Payload, &got))
	assert.Equal(t, []string{"id-a", "id-b", "id-c"}, got.TrackIDs)
	assert.True(t, got.FinishedAt.Equal(sampleReport().FinishedAt))
}

func TestNotifier_DefaultSubject(t *testing.T) {
	pub := &fakePublisher{}
	n := newNotifier(pub, Config{}, watermill.NopLogger{})

	require.NoError(t, n.Notify(context.Background(), sampleReport()))
	assert.Equal(t, []string{DefaultSubject}, pub.topics)
}

func TestNotifier_BreakerOpensAfterFailures(t *testing.T) {
	boom := errors.New("publish failed")
	pub := &fakePublisher{err: boom}
	n := newNotifier(pub, Config{FailureThreshold: 2, BreakerTimeout: time.Minute}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := n.Notify(ctx, sampleReport())
		require.ErrorIs(t, err, boom)
	}

	err := n.Notify(ctx, sampleReport())
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, pub.calls, "open breaker must not reach the publisher")
}

func TestNotifier_CanceledContext(t *testing.T) {
	pub := &fakePublisher{}
	n := newNotifier(pub, Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.Notify(ctx, sampleReport())
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, pub.calls)
}

func TestNotifier_Close(t *testing.T) {
	pub := &fakePublisher{}
	n := newNotifier(pub, Config{}, nil)

	require.NoError(t, n.Close())
	require.NoError(t, n.Close())
	assert.Equal(t, 1, pub.closed)

	assert.Error(t, n.Notify(context.Background(), sampleReport()))
}

func TestNewNotifier_RequiresURL(t *testing.T) {
	_, err := NewNotifier(Config{}, nil)
	assert.Error(t, err)
}

func TestNotifier_EmbeddedServer(t *testing.T) {
	ns := runEmbeddedServer(t)

	sub, err := natsgo.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	received := make(chan *natsgo.Msg, 1)
	_, err = sub.ChanSubscribe("encore.runs", received)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	n, err := NewNotifier(Config{
		URL:           ns.ClientURL(),
		MaxReconnects: 1,
		ReconnectWait: 10 * time.Millisecond,
	}, watermill.NopLogger{})
	require.NoError(t, err)
	defer n.Close()

	require.NoError(t, n.Notify(context.Background(), sampleReport()))

	select {
	case msg := <-received:
		var got RunSummary
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, "run-1", got.ID)
		assert.Equal(t, 3, got.Tracks)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}
