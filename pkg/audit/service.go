package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/diaspora-enterprise/website/pkg/metrics"
)

// Service fans audit events out to the configured sinks from a buffered
// channel, so emitting never blocks a request handler. Events are dropped
// (and counted) when the buffer is full.
type Service struct {
	sinks  []Sink
	events chan *Event
	logger *zap.SugaredLogger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates an audit service over the given sinks.
func NewService(sinks []Sink, bufferSize int, logger *zap.SugaredLogger) *Service {
	if bufferSize <= 0 {
		bufferSize = 256
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		sinks:  sinks,
		events: make(chan *Event, bufferSize),
		logger: logger.Named("audit"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the dispatch worker.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.worker()
}

// Emit queues an event for delivery. Non-blocking: a full buffer drops the
// event with a log record and a metric increment.
func (s *Service) Emit(event *Event) {
	select {
	case s.events <- event:
	default:
		metrics.AuditEventsDropped.WithLabelValues("buffer").Inc()
		s.logger.Warnw("Audit buffer full, dropping event",
			"eventType", event.Type, "eventID", event.ID)
	}
}

func (s *Service) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			// Drain whatever is still buffered before exiting.
			for {
				select {
				case event := <-s.events:
					s.dispatch(event)
				default:
					return
				}
			}
		case event := <-s.events:
			s.dispatch(event)
		}
	}
}

func (s *Service) dispatch(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, sink := range s.sinks {
		if err := sink.Write(ctx, event); err != nil {
			metrics.AuditEventsDropped.WithLabelValues(sink.Name()).Inc()
			s.logger.Warnw("Audit sink write failed",
				"sink", sink.Name(), "eventType", event.Type, "error", err)
			continue
		}
		metrics.AuditEventsEmitted.WithLabelValues(sink.Name()).Inc()
	}
}

// Stop flushes buffered events and closes the sinks.
func (s *Service) Stop(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			s.logger.Warnw("Failed to close audit sink",
				"sink", sink.Name(), "error", err)
		}
	}
	return nil
}
