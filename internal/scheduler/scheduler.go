// Package scheduler decides whether and when notifications fire. Scheduler
// hands schedules to a trigger-capable sink; Poller checks stored hours against
// the wall clock and shows notifications itself.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ErnestHysa/parallel-notify/internal/domain"
	"github.com/ErnestHysa/parallel-notify/internal/metrics"
	"github.com/ErnestHysa/parallel-notify/internal/sink"
	"github.com/ErnestHysa/parallel-notify/internal/store"
)

var (
	ErrQuietHours       = errors.New("suppressed by quiet hours")
	ErrCategoryDisabled = errors.New("category disabled")
	ErrClosed           = errors.New("scheduler disposed")
)

// Settings is the read side of the settings store the schedulers need.
type Settings interface {
	Get() domain.Settings
	Location() *time.Location
}

// Options configure a single Schedule call.
type Options struct {
	Trigger sink.Trigger
	// IgnoreQuietHours schedules even inside quiet hours.
	IgnoreQuietHours bool
}

// Scheduler keeps the persisted index of sink schedules.
type Scheduler struct {
	sink     sink.Sink
	index    *store.ScheduleIndex
	settings Settings
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	closed   atomic.Bool
}

// New creates a Scheduler. Call Init before use and Dispose when done.
func New(s sink.Sink, index *store.ScheduleIndex, settings Settings, log *zap.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		sink:     s,
		index:    index,
		settings: settings,
		log:      log,
		metrics:  m,
		now:      time.Now,
	}
}

// Init restores schedules the sink lost (e.g. after a restart).
func (s *Scheduler) Init(ctx context.Context) error {
	n, err := s.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore schedules: %w", err)
	}
	s.log.Info("scheduler ready", zap.Int("restored", n))
	return nil
}

// Dispose stops accepting calls. Live sink timers are left to the sink's owner.
func (s *Scheduler) Dispose() {
	s.closed.Store(true)
}

// Schedule renders a template for c, checks settings and hands it to the sink.
// It returns the sink id, or an error such as ErrQuietHours or ErrCategoryDisabled.
func (s *Scheduler) Schedule(ctx context.Context, c domain.Category, opts Options, p domain.Params) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	cfg := s.settings.Get()
	if !cfg.Enabled(c) {
		s.metrics.RecordSuppressed(string(c), "category_disabled")
		s.log.Debug("category disabled, not scheduling", zap.String("category", string(c)))
		return "", fmt.Errorf("%w: %s", ErrCategoryDisabled, c)
	}

	tpl := domain.Render(c, p)
	now := s.now()
	loc := s.settings.Location()
	if !opts.IgnoreQuietHours && cfg.QuietHours.SuppressesAt(now, loc) {
		s.metrics.RecordSuppressed(string(c), "quiet_hours")
		s.log.Info("quiet hours, not scheduling",
			zap.String("category", string(c)),
			zap.Int("hour", now.In(loc).Hour()),
		)
		return "", ErrQuietHours
	}

	trig := opts.Trigger
	if trig.Kind == sink.TriggerDaily && trig.Location == nil {
		trig.Location = loc
	}
	id, err := s.sink.Schedule(ctx, sink.Request{Content: tpl, Trigger: trig})
	if err != nil {
		s.log.Error("sink schedule failed", zap.Error(err), zap.String("category", string(c)))
		return "", fmt.Errorf("schedule %s: %w", c, err)
	}

	rec := domain.ScheduledNotification{
		ID:        id,
		Category:  c,
		Params:    p,
		CreatedAt: now.UTC(),
	}
	switch trig.Kind {
	case sink.TriggerDaily:
		rec.Hour, rec.Minute = trig.Hour, trig.Minute
		rec.RepeatInterval = domain.RepeatDaily
	default:
		// Cannot fail: the sink already accepted the trigger.
		at, _ := trig.FirstFire(now)
		at = at.UTC()
		rec.ScheduledFor = &at
		rec.Hour, rec.Minute = at.In(loc).Hour(), at.In(loc).Minute()
	}

	superseded, err := s.index.Put(ctx, rec)
	if err != nil {
		s.log.Error("persist schedule failed", zap.Error(err), zap.String("id", id))
		if cerr := s.sink.Cancel(ctx, id); cerr != nil {
			s.log.Warn("rollback cancel failed", zap.Error(cerr), zap.String("id", id))
		}
		return "", fmt.Errorf("persist schedule: %w", err)
	}
	for _, old := range superseded {
		s.metrics.RecordCancelled(string(old.Category))
		if err := s.sink.Cancel(ctx, old.ID); err != nil && !errors.Is(err, sink.ErrUnknownID) {
			s.log.Warn("cancel superseded failed", zap.Error(err), zap.String("id", old.ID))
		}
	}

	s.metrics.RecordScheduled(string(c), rec.RepeatInterval)
	s.log.Info("notification scheduled",
		zap.String("id", id),
		zap.String("category", string(c)),
		zap.String("trigger", trig.Kind.String()),
	)
	return id, nil
}

// ScheduleDaily schedules c every day at hour:minute in the user's timezone.
func (s *Scheduler) ScheduleDaily(ctx context.Context, c domain.Category, hour, minute int, p domain.Params) (string, error) {
	if err := domain.ValidateHour(hour); err != nil {
		return "", err
	}
	if err := domain.ValidateMinute(minute); err != nil {
		return "", err
	}
	return s.Schedule(ctx, c, Options{Trigger: sink.Daily(hour, minute, nil)}, p)
}

// Cancel removes id from the sink and the index.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	var errs []error
	if err := s.sink.Cancel(ctx, id); err != nil && !errors.Is(err, sink.ErrUnknownID) {
		s.log.Warn("sink cancel failed", zap.Error(err), zap.String("id", id))
		errs = append(errs, err)
	}
	removed, err := s.index.Remove(ctx, id)
	if err != nil {
		s.log.Error("index remove failed", zap.Error(err), zap.String("id", id))
		errs = append(errs, err)
	}
	for _, r := range removed {
		s.metrics.RecordCancelled(string(r.Category))
	}
	return errors.Join(errs...)
}

// CancelCategory removes every schedule of category c.
func (s *Scheduler) CancelCategory(ctx context.Context, c domain.Category) error {
	if s.closed.Load() {
		return ErrClosed
	}
	removed, err := s.index.RemoveCategory(ctx, c)
	if err != nil {
		s.log.Error("index remove failed", zap.Error(err), zap.String("category", string(c)))
		return err
	}
	errs := s.cancelInSink(ctx, removed)
	s.log.Info("category cancelled", zap.String("category", string(c)), zap.Int("removed", len(removed)))
	return errors.Join(errs...)
}

// CancelAll removes every schedule, including sink entries the index does not know.
func (s *Scheduler) CancelAll(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	var errs []error
	removed, err := s.index.Clear(ctx)
	if err != nil {
		s.log.Error("index clear failed", zap.Error(err))
		errs = append(errs, err)
	}
	errs = append(errs, s.cancelInSink(ctx, removed)...)

	live, err := s.sink.ListScheduled(ctx)
	if err != nil {
		s.log.Warn("list live schedules failed", zap.Error(err))
		errs = append(errs, err)
	}
	for _, id := range live {
		if err := s.sink.Cancel(ctx, id); err != nil && !errors.Is(err, sink.ErrUnknownID) {
			errs = append(errs, err)
		}
	}
	s.log.Info("all notifications cancelled", zap.Int("indexed", len(removed)), zap.Int("live", len(live)))
	return errors.Join(errs...)
}

func (s *Scheduler) cancelInSink(ctx context.Context, recs []domain.ScheduledNotification) []error {
	var errs []error
	for _, r := range recs {
		s.metrics.RecordCancelled(string(r.Category))
		if err := s.sink.Cancel(ctx, r.ID); err != nil && !errors.Is(err, sink.ErrUnknownID) {
			s.log.Warn("sink cancel failed", zap.Error(err), zap.String("id", r.ID))
			errs = append(errs, err)
		}
	}
	return errs
}

// GetAllScheduled returns the persisted index.
func (s *Scheduler) GetAllScheduled(ctx context.Context) ([]domain.ScheduledNotification, error) {
	return s.index.List(ctx)
}

// Restore re-issues indexed schedules missing from the sink. Daily entries and
// future one-offs are re-armed under a new id; one-offs already in the past are
// pruned, never fired late. It returns the number re-issued.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	recs, err := s.index.List(ctx)
	if err != nil {
		return 0, err
	}
	liveIDs, err := s.sink.ListScheduled(ctx)
	if err != nil {
		return 0, err
	}
	live := make(map[string]struct{}, len(liveIDs))
	for _, id := range liveIDs {
		live[id] = struct{}{}
	}

	now := s.now()
	loc := s.settings.Location()
	var (
		restored int
		stale    []string
	)
	for _, rec := range recs {
		if _, ok := live[rec.ID]; ok {
			continue
		}

		var trig sink.Trigger
		switch {
		case rec.Daily():
			trig = sink.Daily(rec.Hour, rec.Minute, loc)
		case rec.ScheduledFor != nil && rec.ScheduledFor.After(now):
			trig = sink.At(*rec.ScheduledFor)
		default:
			stale = append(stale, rec.ID)
			continue
		}

		id, err := s.sink.Schedule(ctx, sink.Request{Content: domain.Render(rec.Category, rec.Params), Trigger: trig})
		if err != nil {
			s.log.Error("restore schedule failed", zap.Error(err), zap.String("id", rec.ID))
			continue
		}
		old := rec.ID
		rec.ID = id
		if _, err := s.index.Replace(ctx, old, rec); err != nil {
			s.log.Error("restore persist failed", zap.Error(err), zap.String("id", old))
			_ = s.sink.Cancel(ctx, id)
			continue
		}
		restored++
	}

	if len(stale) > 0 {
		removed, err := s.index.Remove(ctx, stale...)
		if err != nil {
			s.log.Error("prune stale schedules failed", zap.Error(err))
		}
		for _, r := range removed {
			s.metrics.RecordDropped(string(r.Category))
		}
		s.log.Info("pruned past one-off schedules", zap.Int("count", len(removed)))
	}
	s.metrics.RecordRestored(restored)
	return restored, nil
}
