package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/diaspora-enterprise/website/pkg/config"
)

type recordingSink struct {
	mu     sync.Mutex
	events []*Event
	fail   bool
	closed bool
}

func (s *recordingSink) Write(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestNewEventPopulatesIDAndTimestamp(t *testing.T) {
	e := NewEvent(EventContactSubmitted).
		WithActor("admin").
		WithSourceIP("10.0.0.1").
		WithSubject("contact-1").
		WithDetail("subject", "Pricing question")

	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, EventContactSubmitted, e.Type)
	assert.Equal(t, "admin", e.Actor)
	assert.Equal(t, "contact-1", e.Subject)
	assert.Equal(t, "Pricing question", e.Details["subject"])
}

func TestLogSinkWritesStructuredEntry(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	event := NewEvent(EventAdminLogin).WithActor("admin")
	require.NoError(t, sink.Write(context.Background(), event))

	entries := logs.FilterMessage("audit_event").All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, string(EventAdminLogin), fields["event_type"])
	assert.Equal(t, "admin", fields["actor"])
}

func TestServiceDeliversToAllSinks(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{}
	log := zap.NewNop().Sugar()

	svc := NewService([]Sink{first, second}, 16, log)
	svc.Start()

	svc.Emit(NewEvent(EventContactSubmitted))
	svc.Emit(NewEvent(EventContactRead))

	assert.Eventually(t, func() bool {
		return first.count() == 2 && second.count() == 2
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(ctx))
	assert.True(t, first.closed)
}

func TestServiceFailingSinkDoesNotBlockOthers(t *testing.T) {
	failing := &recordingSink{fail: true}
	healthy := &recordingSink{}
	log := zap.NewNop().Sugar()

	svc := NewService([]Sink{failing, healthy}, 16, log)
	svc.Start()

	svc.Emit(NewEvent(EventMailFailed))

	assert.Eventually(t, func() bool {
		return healthy.count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(ctx))
}

func TestServiceStopFlushesBufferedEvents(t *testing.T) {
	sink := &recordingSink{}
	log := zap.NewNop().Sugar()

	svc := NewService([]Sink{sink}, 16, log)
	for i := 0; i < 5; i++ {
		svc.Emit(NewEvent(EventContactSubmitted))
	}

	// Worker starts only now; Stop must still flush the buffer.
	svc.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(ctx))

	assert.Equal(t, 5, sink.count())
}

func TestNewKafkaSinkValidation(t *testing.T) {
	log := zap.NewNop()

	_, err := NewKafkaSink(config.Audit{Topic: "website-audit"}, log)
	assert.Error(t, err)

	_, err = NewKafkaSink(config.Audit{Brokers: []string{"broker:9092"}}, log)
	assert.Error(t, err)

	_, err = NewKafkaSink(config.Audit{
		Brokers:       []string{"broker:9092"},
		Topic:         "website-audit",
		SASLMechanism: "GSSAPI",
	}, log)
	assert.Error(t, err)

	sink, err := NewKafkaSink(config.Audit{
		Brokers:       []string{"broker:9092"},
		Topic:         "website-audit",
		SASLMechanism: "PLAIN",
		SASLUsername:  "svc",
		SASLPassword:  "secret",
		TLSEnabled:    true,
	}, log)
	require.NoError(t, err)
	require.NoError(t, sink.Close())
}
