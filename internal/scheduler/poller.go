package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ErnestHysa/parallel-notify/internal/domain"
	"github.com/ErnestHysa/parallel-notify/internal/metrics"
	"github.com/ErnestHysa/parallel-notify/internal/sink"
	"github.com/ErnestHysa/parallel-notify/internal/store"
)

// DefaultPollInterval is how often Run checks for due notifications.
const DefaultPollInterval = 30 * time.Second

// Poller periodically compares stored daily hours against the wall clock and
// shows due notifications through a Notifier. A window missed entirely (process
// down, host asleep) is dropped, not retried: each record carries its next fire
// time, and an occurrence found after its hour has passed is skipped.
type Poller struct {
	index    *store.ScheduleIndex
	settings Settings
	notifier sink.Notifier
	journal  store.Journal
	log      *zap.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	now      func() time.Time

	mu              sync.Mutex // serializes checks
	lastCheckMinute int64
}

// NewPoller creates a Poller. interval <= 0 uses DefaultPollInterval.
func NewPoller(index *store.ScheduleIndex, settings Settings, n sink.Notifier, journal store.Journal, log *zap.Logger, interval time.Duration, m *metrics.Metrics) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		index:    index,
		settings: settings,
		notifier: n,
		journal:  journal,
		log:      log,
		metrics:  m,
		interval: interval,
		now:      time.Now,
	}
}

// ScheduleDaily stores a daily notification for c at hour. The id is "category-hour".
func (p *Poller) ScheduleDaily(ctx context.Context, c domain.Category, hour int, params domain.Params) (string, error) {
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownCategory, c)
	}
	if err := domain.ValidateHour(hour); err != nil {
		return "", err
	}
	now := p.now()
	next := domain.NextDaily(now, hour, 0, p.settings.Location())
	rec := domain.ScheduledNotification{
		ID:             fmt.Sprintf("%s-%d", c, hour),
		Category:       c,
		Hour:           hour,
		RepeatInterval: domain.RepeatDaily,
		Params:         params,
		NextFireAt:     &next,
		CreatedAt:      now.UTC(),
	}
	superseded, err := p.index.Put(ctx, rec)
	if err != nil {
		p.log.Error("persist poller schedule failed", zap.Error(err), zap.String("id", rec.ID))
		return "", err
	}
	for _, old := range superseded {
		if old.ID != rec.ID {
			p.metrics.RecordCancelled(string(old.Category))
		}
	}
	p.metrics.RecordScheduled(string(c), domain.RepeatDaily)
	p.log.Info("daily notification stored", zap.String("id", rec.ID), zap.Time("next", next))
	return rec.ID, nil
}

// Cancel removes a stored schedule.
func (p *Poller) Cancel(ctx context.Context, id string) error {
	removed, err := p.index.Remove(ctx, id)
	p.countCancelled(removed)
	return err
}

// CancelCategory removes every stored schedule of category c.
func (p *Poller) CancelCategory(ctx context.Context, c domain.Category) error {
	removed, err := p.index.RemoveCategory(ctx, c)
	p.countCancelled(removed)
	return err
}

// CancelAll removes every stored schedule.
func (p *Poller) CancelAll(ctx context.Context) error {
	removed, err := p.index.Clear(ctx)
	p.countCancelled(removed)
	return err
}

func (p *Poller) countCancelled(recs []domain.ScheduledNotification) {
	for _, r := range recs {
		p.metrics.RecordCancelled(string(r.Category))
	}
}

// Rearm recomputes the next fire time of every daily record in the current
// location. Call it after the timezone changes. It returns the records re-armed.
func (p *Poller) Rearm(ctx context.Context) (int, error) {
	now := p.now()
	loc := p.settings.Location()
	n := 0
	_, err := p.index.Rewrite(ctx, func(rec domain.ScheduledNotification) domain.ScheduledNotification {
		if !rec.Daily() {
			return rec
		}
		next := domain.NextDaily(now, rec.Hour, rec.Minute, loc)
		rec.NextFireAt = &next
		n++
		return rec
	})
	if err != nil {
		p.log.Error("rearm schedules failed", zap.Error(err))
		return 0, err
	}
	p.log.Info("poller schedules re-armed", zap.Int("count", n), zap.String("tz", loc.String()))
	return n, nil
}

// List returns the stored schedules.
func (p *Poller) List(ctx context.Context) ([]domain.ScheduledNotification, error) {
	return p.index.List(ctx)
}

// Run checks immediately and then on every tick until ctx is canceled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("poller stopping")
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Foreground runs a check right away. Call it when the user comes back to the app.
func (p *Poller) Foreground(ctx context.Context) int {
	return p.Check(ctx)
}

// Check performs one cycle: fire due notifications, drop missed ones, advance
// next fire times. It runs at most once per wall-clock minute and returns the
// number of notifications shown.
func (p *Poller) Check(ctx context.Context) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	minute := now.Unix() / 60
	if minute == p.lastCheckMinute {
		return 0
	}
	p.lastCheckMinute = minute

	recs, err := p.index.List(ctx)
	if err != nil {
		p.log.Error("list schedules failed", zap.Error(err))
		return 0
	}

	cfg := p.settings.Get()
	loc := p.settings.Location()
	fired := 0
	for _, rec := range recs {
		if !rec.Daily() {
			continue
		}
		if rec.NextFireAt == nil {
			p.advance(ctx, rec, now, loc)
			continue
		}
		if now.Before(*rec.NextFireAt) {
			continue
		}

		switch {
		case !domain.SameHour(*rec.NextFireAt, now, loc):
			// Missed the whole hour: drop it.
			p.metrics.RecordDropped(string(rec.Category))
			p.record(ctx, rec, store.OutcomeDropped, "missed window "+rec.NextFireAt.Format(time.RFC3339))
			p.log.Info("missed window dropped", zap.String("id", rec.ID), zap.Time("due", *rec.NextFireAt))
		case !cfg.Enabled(rec.Category):
			p.metrics.RecordSuppressed(string(rec.Category), "category_disabled")
			p.record(ctx, rec, store.OutcomeSuppressed, "category disabled")
		case cfg.QuietHours.SuppressesAt(now, loc):
			p.metrics.RecordSuppressed(string(rec.Category), "quiet_hours")
			p.record(ctx, rec, store.OutcomeSuppressed, "quiet hours")
		default:
			if p.show(ctx, rec) {
				fired++
			}
		}
		p.advance(ctx, rec, now, loc)
	}
	return fired
}

func (p *Poller) show(ctx context.Context, rec domain.ScheduledNotification) bool {
	tpl := domain.Render(rec.Category, rec.Params)
	err := p.notifier.Notify(ctx, tpl)
	p.metrics.RecordDelivery(string(rec.Category), err == nil)
	if err != nil {
		p.log.Error("notify failed", zap.Error(err), zap.String("id", rec.ID))
		p.record(ctx, rec, store.OutcomeFailed, err.Error())
		return false
	}
	p.record(ctx, rec, store.OutcomeDelivered, "")
	p.log.Info("notification shown", zap.String("id", rec.ID), zap.String("category", string(rec.Category)))
	return true
}

// advance stores the next occurrence after now. A record removed meanwhile stays removed.
func (p *Poller) advance(ctx context.Context, rec domain.ScheduledNotification, now time.Time, loc *time.Location) {
	next := domain.NextDaily(now, rec.Hour, rec.Minute, loc)
	rec.NextFireAt = &next
	if _, err := p.index.Replace(ctx, rec.ID, rec); err != nil {
		p.log.Error("advance schedule failed", zap.Error(err), zap.String("id", rec.ID))
	}
}

func (p *Poller) record(ctx context.Context, rec domain.ScheduledNotification, outcome, detail string) {
	if p.journal == nil {
		return
	}
	err := p.journal.LogDelivery(ctx, store.Delivery{
		Category:   string(rec.Category),
		TemplateID: rec.ID,
		Outcome:    outcome,
		Detail:     detail,
		At:         p.now().UTC(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		p.log.Warn("journal write failed", zap.Error(err))
	}
}
