package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// AsyncSink decouples decisions from a slow sink. LogEvent never blocks:
// when the queue is full the event is dropped and counted.
type AsyncSink struct {
	inner  Sink
	queue  chan Event
	logger *slog.Logger

	dropped atomic.Uint64
	failed  atomic.Uint64

	// mu guards the send against close of queue.
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncSink starts a worker that forwards events to inner.
func NewAsyncSink(inner Sink, size int) *AsyncSink {
	if size <= 0 {
		size = 1024
	}
	s := &AsyncSink{
		inner:  inner,
		queue:  make(chan Event, size),
		logger: slog.Default().With("component", "audit.async"),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for e := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.inner.LogEvent(ctx, e); err != nil {
			s.failed.Add(1)
			s.logger.Error("audit sink write failed", "event_id", e.ID, "correlation_id", e.CorrelationID, "error", err)
		}
		cancel()
	}
}

func (s *AsyncSink) LogEvent(_ context.Context, e Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		n := s.dropped.Add(1)
		s.logger.Warn("audit event after close", "event_id", e.ID, "correlation_id", e.CorrelationID, "dropped_total", n)
		return ErrSinkClosed
	}
	select {
	case s.queue <- e:
		return nil
	default:
		n := s.dropped.Add(1)
		s.logger.Warn("audit event dropped", "event_id", e.ID, "correlation_id", e.CorrelationID, "dropped_total", n)
		return ErrQueueFull
	}
}

// Dropped returns how many events were dropped, either on a full queue or
// after Close.
func (s *AsyncSink) Dropped() uint64 { return s.dropped.Load() }

// Failed returns how many forwarded events the inner sink rejected.
func (s *AsyncSink) Failed() uint64 { return s.failed.Load() }

// Close stops accepting events and waits for the queue to drain or ctx to end.
// Events logged after Close are dropped with ErrSinkClosed.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
