package sink

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ErnestHysa/parallel-notify/internal/domain"
	"github.com/ErnestHysa/parallel-notify/internal/metrics"
)

// TimerSink is an in-process Sink backed by time.AfterFunc. Its schedule lives in
// memory only: a restart loses it, and the scheduler's Restore re-issues it.
type TimerSink struct {
	notifier Notifier
	log      *zap.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*timerEntry
	closed  bool
	flight  sync.WaitGroup
}

type timerEntry struct {
	req   Request
	timer *time.Timer
	next  time.Time
}

// Pending describes a live timer.
type Pending struct {
	ID       string
	Category domain.Category
	NextFire time.Time
	Daily    bool
}

// NewTimerSink creates a sink delivering through n. Each delivery gets its own
// context bounded by timeout.
func NewTimerSink(n Notifier, log *zap.Logger, timeout time.Duration, m *metrics.Metrics) *TimerSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TimerSink{
		notifier: n,
		log:      log,
		metrics:  m,
		timeout:  timeout,
		now:      time.Now,
		entries:  make(map[string]*timerEntry),
	}
}

// Schedule arms a timer for req and returns its id.
func (s *TimerSink) Schedule(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := s.now()
	first, err := req.Trigger.FirstFire(now)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	id := uuid.NewString()
	e := &timerEntry{req: req, next: first}
	e.timer = time.AfterFunc(first.Sub(now), func() { s.fire(id) })
	s.entries[id] = e

	s.log.Debug("timer armed",
		zap.String("id", id),
		zap.String("category", string(req.Content.Category)),
		zap.String("trigger", req.Trigger.Kind.String()),
		zap.Time("fire_at", first),
	)
	return id, nil
}

// Cancel stops the timer for id.
func (s *TimerSink) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return ErrUnknownID
	}
	e.timer.Stop()
	delete(s.entries, id)
	return nil
}

// ListScheduled returns the ids of all live timers, sorted.
func (s *TimerSink) ListScheduled(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Pending lists live timers ordered by next fire time.
func (s *TimerSink) Pending() []Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Pending, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, Pending{
			ID:       id,
			Category: e.req.Content.Category,
			NextFire: e.next,
			Daily:    e.req.Trigger.Kind == TriggerDaily,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextFire.Before(out[j].NextFire) })
	return out
}

// Close stops every timer and waits for in-flight deliveries.
func (s *TimerSink) Close() error {
	s.mu.Lock()
	s.closed = true
	for id, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, id)
	}
	s.mu.Unlock()
	s.flight.Wait()
	return nil
}

func (s *TimerSink) fire(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || s.closed {
		s.mu.Unlock()
		return
	}
	req := e.req
	if req.Trigger.Kind == TriggerDaily {
		now := s.now()
		e.next = domain.NextDaily(now, req.Trigger.Hour, req.Trigger.Minute, req.Trigger.Location)
		e.timer = time.AfterFunc(e.next.Sub(now), func() { s.fire(id) })
	} else {
		delete(s.entries, id)
	}
	s.flight.Add(1)
	s.mu.Unlock()

	defer s.flight.Done()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.notifier.Notify(ctx, req.Content)
	s.metrics.RecordDelivery(string(req.Content.Category), err == nil)
	if err != nil {
		s.log.Error("delivery failed", zap.Error(err), zap.String("id", id), zap.String("category", string(req.Content.Category)))
		return
	}
	s.log.Info("notification delivered", zap.String("id", id), zap.String("category", string(req.Content.Category)))
}
