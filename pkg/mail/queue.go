package mail

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/diaspora-enterprise/website/pkg/audit"
	"github.com/diaspora-enterprise/website/pkg/metrics"
)

// Auditor records delivery outcomes as audit events. *audit.Service
// satisfies it; a nil auditor disables auditing.
type Auditor interface {
	Emit(event *audit.Event)
}

// QueueItem is one email waiting for delivery, with retry bookkeeping.
type QueueItem struct {
	ID        string
	Receivers []string
	Subject   string
	Body      string
	Attempt   int
	CreatedAt time.Time
	NextRetry time.Time
	Succeeded bool
}

// Queue delivers emails asynchronously with exponential-backoff retries.
// Contact-form handling must not block on SMTP round trips; submissions
// enqueue and return immediately.
type Queue struct {
	sender           Sender
	queue            chan *QueueItem
	log              *zap.SugaredLogger
	auditor          Auditor
	maxRetries       int
	initialBackoffMs int
	maxQueueSize     int
	wg               sync.WaitGroup
	ctx              context.Context
	cancel           context.CancelFunc
}

// QueueOption customizes a Queue.
type QueueOption func(*Queue)

// WithQueueAuditor records each delivery and final failure as an audit event.
func WithQueueAuditor(a Auditor) QueueOption {
	return func(q *Queue) {
		q.auditor = a
	}
}

// NewQueue creates a mail queue. Call Start to begin processing.
func NewQueue(sender Sender, log *zap.SugaredLogger, maxRetries, initialBackoffMs, maxQueueSize int, opts ...QueueOption) *Queue {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if initialBackoffMs <= 0 {
		initialBackoffMs = 10000
	}
	if maxQueueSize <= 0 {
		maxQueueSize = 100
	}

	log.Infow("Initializing mail queue",
		"maxRetries", maxRetries,
		"initialBackoffMs", initialBackoffMs,
		"maxQueueSize", maxQueueSize)

	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		sender:           sender,
		queue:            make(chan *QueueItem, maxQueueSize),
		log:              log,
		maxRetries:       maxRetries,
		initialBackoffMs: initialBackoffMs,
		maxQueueSize:     maxQueueSize,
		ctx:              ctx,
		cancel:           cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the background delivery worker.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.worker()
	q.log.Info("Mail queue worker started")
}

// Enqueue accepts an email for asynchronous delivery. It fails when the
// queue is full or shutting down; the email is dropped, never blocked on.
func (q *Queue) Enqueue(id string, receivers []string, subject, body string) error {
	if len(receivers) == 0 {
		metrics.MailQueueDropped.WithLabelValues(q.sender.GetHost()).Inc()
		return fmt.Errorf("cannot enqueue email with no receivers")
	}

	select {
	case <-q.ctx.Done():
		metrics.MailQueueDropped.WithLabelValues(q.sender.GetHost()).Inc()
		return fmt.Errorf("mail queue is shutting down")
	default:
	}

	item := &QueueItem{
		ID:        id,
		Receivers: receivers,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now(),
		NextRetry: time.Now(),
	}

	select {
	case q.queue <- item:
		metrics.MailQueued.WithLabelValues(q.sender.GetHost()).Inc()
		q.log.Debugw("Email queued",
			"id", id, "receivers", len(receivers), "subject", subject)
		return nil
	case <-q.ctx.Done():
		metrics.MailQueueDropped.WithLabelValues(q.sender.GetHost()).Inc()
		return fmt.Errorf("mail queue is shutting down")
	default:
		metrics.MailQueueDropped.WithLabelValues(q.sender.GetHost()).Inc()
		q.log.Errorw("Mail queue full, dropping message",
			"id", id, "capacity", q.maxQueueSize)
		return fmt.Errorf("mail queue is full (capacity: %d)", q.maxQueueSize)
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			q.log.Errorw("Mail queue worker panic recovered", "panic", r)
			metrics.MailFailed.WithLabelValues(q.sender.GetHost()).Inc()
			q.wg.Add(1)
			go q.worker()
		}
	}()

	pending := make([]*QueueItem, 0)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			q.log.Info("Mail queue worker shutting down")
			q.drainPending(pending)
			return

		case item := <-q.queue:
			if item == nil {
				continue
			}
			q.deliver(item)
			if !item.Succeeded && item.Attempt < q.maxRetries {
				pending = append(pending, item)
			}

		case <-ticker.C:
			now := time.Now()
			remaining := pending[:0]
			for _, item := range pending {
				if !item.Succeeded && now.After(item.NextRetry) {
					q.deliver(item)
				}
				if !item.Succeeded && item.Attempt < q.maxRetries {
					remaining = append(remaining, item)
				}
			}
			pending = remaining
		}
	}
}

// deliver attempts one send and schedules a retry on failure.
func (q *Queue) deliver(item *QueueItem) {
	item.Attempt++

	err := q.sender.Send(item.Receivers, item.Subject, item.Body)
	if err == nil {
		q.log.Infow("Queued email delivered",
			"id", item.ID, "attempt", item.Attempt, "receivers", len(item.Receivers))
		metrics.MailSent.WithLabelValues(q.sender.GetHost()).Inc()
		q.emit(audit.NewEvent(audit.EventMailSent).
			WithSubject(q.sender.GetHost()).
			WithDetail("id", item.ID).
			WithDetail("receivers", len(item.Receivers)).
			WithDetail("attempt", item.Attempt))
		item.Succeeded = true
		return
	}

	if item.Attempt < q.maxRetries {
		backoffMs := q.backoff(item.Attempt)
		item.NextRetry = time.Now().Add(time.Duration(backoffMs) * time.Millisecond)
		q.log.Warnw("Email delivery failed, retry scheduled",
			"id", item.ID, "attempt", item.Attempt,
			"error", err, "retryInMs", backoffMs)
		metrics.MailRetryScheduled.WithLabelValues(q.sender.GetHost()).Inc()
	} else {
		q.log.Errorw("Email delivery failed after all retries",
			"id", item.ID, "attempts", item.Attempt,
			"error", err, "subject", item.Subject)
		metrics.MailFailed.WithLabelValues(q.sender.GetHost()).Inc()
		q.emit(audit.NewEvent(audit.EventMailFailed).
			WithSubject(q.sender.GetHost()).
			WithDetail("id", item.ID).
			WithDetail("attempts", item.Attempt).
			WithDetail("error", err.Error()))
	}
}

func (q *Queue) emit(event *audit.Event) {
	if q.auditor != nil {
		q.auditor.Emit(event)
	}
}

// drainPending gives undelivered items one final attempt on shutdown.
func (q *Queue) drainPending(items []*QueueItem) {
	if len(items) == 0 {
		return
	}
	q.log.Infow("Final delivery pass before shutdown", "count", len(items))
	for _, item := range items {
		if !item.Succeeded && item.Attempt < q.maxRetries {
			q.deliver(item)
		}
	}
}

// backoff doubles per attempt starting from initialBackoffMs, capped at 30m.
func (q *Queue) backoff(attempt int) int {
	backoffMs := int(float64(q.initialBackoffMs) * math.Pow(2, float64(attempt-1)))
	if backoffMs > 1800000 {
		backoffMs = 1800000
	}
	return backoffMs
}

// Stop cancels the worker and waits for it within the context deadline.
func (q *Queue) Stop(ctx context.Context) error {
	q.log.Info("Stopping mail queue")
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.log.Info("Mail queue stopped")
		return nil
	case <-ctx.Done():
		q.log.Warn("Mail queue shutdown timed out")
		return ctx.Err()
	}
}

// Length returns the number of items waiting in the channel.
func (q *Queue) Length() int {
	return len(q.queue)
}
