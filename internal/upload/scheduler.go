// Package upload serializes event persistence behind a single worker so
// the minimum spacing between uploads holds no matter how many detection
// goroutines produce events at once.
//
// The worker goroutine is the only writer of the shared last-upload
// timestamp, and it advances the timestamp at execution time, never from
// a snapshot taken at submission. Scheduling from a submission-time
// snapshot is exactly the stale-deadline mistake that lets two deferred
// uploads land inside the same spacing window.
package upload

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/sentrylabs/facewatch/internal/config"
	"github.com/sentrylabs/facewatch/internal/event"
)

// Sink persists one event record. Implementations must be safe for use
// from the single worker goroutine.
type Sink interface {
	Persist(ctx context.Context, rec *event.Record) error
}

// DecisionKind classifies what the scheduler did with a submission.
type DecisionKind int

const (
	// Accepted means the spacing gate was open at submission; the event
	// will persist as soon as the worker reaches it.
	Accepted DecisionKind = iota
	// Deferred means the gate was closed; the event is queued and will
	// persist once the spacing window reopens.
	Deferred
	// Rejected means the queue was full; the event is dropped.
	Rejected
)

func (k DecisionKind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case Deferred:
		return "deferred"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Decision is the synchronous answer to a Submit call. Remaining is the
// spacing window left at submission time and is advisory only; the
// worker recomputes the true wait when it executes.
type Decision struct {
	Kind      DecisionKind
	Remaining time.Duration
}

// Status is a point-in-time view of the spacing gate. Reading it never
// mutates scheduler state.
type Status struct {
	CanUploadNow bool
	Remaining    time.Duration
	LastUpload   time.Time
	QueueDepth   int
}

// Scheduler owns the upload queue and the shared last-upload timestamp.
type Scheduler struct {
	sink       Sink
	delay      time.Duration
	maxRetries uint64
	queue      chan *event.Record
	logger     *zap.Logger
	wg         sync.WaitGroup

	mu         sync.Mutex
	lastUpload time.Time
}

// NewScheduler builds a scheduler over the given sink. The queue is
// bounded by cfg.QueueSize; submissions beyond it are rejected rather
// than blocking the detection loop.
func NewScheduler(sink Sink, cfg config.UploadConfig) *Scheduler {
	return &Scheduler{
		sink:       sink,
		delay:      cfg.Delay,
		maxRetries: 3,
		queue:      make(chan *event.Record, cfg.QueueSize),
		logger:     zap.L().Named("upload-scheduler"),
	}
}

// Start launches the persistence worker. It returns immediately; cancel
// ctx and call Stop to shut down.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop waits for the worker to exit. The caller cancels the context
// passed to Start first.
func (s *Scheduler) Stop() {
	s.wg.Wait()
}

// Submit queues a record for persistence and reports how the spacing
// gate stood at submission. Submit never blocks: a full queue yields
// Rejected and the record is dropped.
func (s *Scheduler) Submit(rec *event.Record) Decision {
	rem := s.remaining(time.Now())

	select {
	case s.queue <- rec:
	default:
		s.logger.Warn("upload queue full, rejecting event",
			zap.String("id", rec.ID),
			zap.String("kind", string(rec.Kind)))
		return Decision{Kind: Rejected}
	}

	if rem > 0 {
		s.logger.Info("upload deferred",
			zap.String("id", rec.ID),
			zap.String("kind", string(rec.Kind)),
			zap.Duration("remaining", rem))
		return Decision{Kind: Deferred, Remaining: rem}
	}
	return Decision{Kind: Accepted}
}

// Status returns the gate state as of now.
func (s *Scheduler) Status(now time.Time) Status {
	s.mu.Lock()
	last := s.lastUpload
	s.mu.Unlock()

	rem := s.remainingSince(last, now)
	return Status{
		CanUploadNow: rem == 0,
		Remaining:    rem,
		LastUpload:   last,
		QueueDepth:   len(s.queue),
	}
}

func (s *Scheduler) remaining(now time.Time) time.Duration {
	s.mu.Lock()
	last := s.lastUpload
	s.mu.Unlock()
	return s.remainingSince(last, now)
}

func (s *Scheduler) remainingSince(last, now time.Time) time.Duration {
	if last.IsZero() {
		return 0
	}
	if rem := s.delay - now.Sub(last); rem > 0 {
		return rem
	}
	return 0
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			if dropped := len(s.queue); dropped > 0 {
				s.logger.Warn("shutting down with events still queued",
					zap.Int("dropped", dropped))
			}
			return
		case rec := <-s.queue:
			s.execute(ctx, rec)
		}
	}
}

// execute waits out whatever remains of the spacing window, persists the
// record, then advances the shared timestamp. Because only this
// goroutine runs execute, consecutive persists are always at least
// delay apart.
func (s *Scheduler) execute(ctx context.Context, rec *event.Record) {
	if wait := s.remaining(time.Now()); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	newBackoff := func() backoff.BackOff {
		ebo := backoff.NewExponentialBackOff()
		ebo.InitialInterval = 200 * time.Millisecond
		ebo.Reset()
		return backoff.WithMaxRetries(ebo, s.maxRetries)
	}

	op := func() error {
		return s.sink.Persist(ctx, rec)
	}
	if err := backoff.Retry(op, backoff.WithContext(newBackoff(), ctx)); err != nil {
		s.logger.Error("persist failed, dropping event",
			zap.String("id", rec.ID),
			zap.String("kind", string(rec.Kind)),
			zap.Error(err))
		return
	}

	s.mu.Lock()
	s.lastUpload = time.Now()
	s.mu.Unlock()

	s.logger.Info("event persisted",
		zap.String("id", rec.ID),
		zap.String("kind", string(rec.Kind)),
		zap.Float64("confidence", rec.Confidence))
}
