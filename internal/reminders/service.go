// Package reminders is the small API screens and bot commands call.
package reminders

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ErnestHysa/parallel-notify/internal/domain"
	"github.com/ErnestHysa/parallel-notify/internal/scheduler"
	"github.com/ErnestHysa/parallel-notify/internal/settings"
	"github.com/ErnestHysa/parallel-notify/internal/sink"
	"github.com/ErnestHysa/parallel-notify/internal/store"
)

// Service ties settings and both schedulers together.
type Service struct {
	settings *settings.Store
	sched    *scheduler.Scheduler
	poller   *scheduler.Poller
	journal  store.Journal
	log      *zap.Logger
}

// New builds the façade. poller and journal may be nil.
func New(st *settings.Store, sched *scheduler.Scheduler, poller *scheduler.Poller, journal store.Journal, log *zap.Logger) *Service {
	return &Service{settings: st, sched: sched, poller: poller, journal: journal, log: log}
}

// Status is a snapshot for display.
type Status struct {
	Settings   domain.Settings
	Scheduled  []domain.ScheduledNotification
	Polled     []domain.ScheduledNotification
	Deliveries []store.Delivery
}

// ScheduleDailyIntention schedules the daily intention reminder. A nil hour uses
// the saved preference; a given hour is saved as the new preference.
func (s *Service) ScheduleDailyIntention(ctx context.Context, hour *int) (string, error) {
	h := s.settings.Get().DailyIntentionHour
	if hour != nil {
		if err := s.settings.SetDailyIntentionHour(ctx, *hour); err != nil {
			return "", err
		}
		h = *hour
	}
	id, err := s.sched.ScheduleDaily(ctx, domain.CategoryDailyIntention, h, 0, domain.Params{})
	if err != nil {
		s.log.Warn("daily intention not scheduled", zap.Int("hour", h), zap.Error(err))
		return "", err
	}
	return id, nil
}

// CancelAllNotifications clears both schedulers.
func (s *Service) CancelAllNotifications(ctx context.Context) error {
	errs := []error{s.sched.CancelAll(ctx)}
	if s.poller != nil {
		errs = append(errs, s.poller.CancelAll(ctx))
	}
	return errors.Join(errs...)
}

// SetNotificationQuietHours stores the quiet-hours window.
func (s *Service) SetNotificationQuietHours(ctx context.Context, q domain.QuietHours) error {
	return s.settings.SetQuietHours(ctx, q)
}

// GetNotificationQuietHours returns the quiet-hours window.
func (s *Service) GetNotificationQuietHours() domain.QuietHours {
	return s.settings.QuietHours()
}

// Settings returns the current settings.
func (s *Service) Settings() domain.Settings {
	return s.settings.Get()
}

// SetCategoryEnabled toggles a category. Disabling also cancels its schedules.
func (s *Service) SetCategoryEnabled(ctx context.Context, c domain.Category, on bool) error {
	if err := s.settings.SetCategoryEnabled(ctx, c, on); err != nil {
		return err
	}
	if on {
		return nil
	}
	errs := []error{s.sched.CancelCategory(ctx, c)}
	if s.poller != nil {
		errs = append(errs, s.poller.CancelCategory(ctx, c))
	}
	return errors.Join(errs...)
}

// SetTimezone stores the user's timezone and re-arms daily schedules of both
// schedulers in it.
func (s *Service) SetTimezone(ctx context.Context, tz string) error {
	if err := s.settings.SetTimezone(ctx, tz); err != nil {
		return err
	}
	var errs []error
	recs, err := s.sched.GetAllScheduled(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	for _, r := range recs {
		if !r.Daily() {
			continue
		}
		opts := scheduler.Options{Trigger: sink.Daily(r.Hour, r.Minute, nil), IgnoreQuietHours: true}
		if _, err := s.sched.Schedule(ctx, r.Category, opts, r.Params); err != nil {
			errs = append(errs, err)
		}
	}
	if s.poller != nil {
		if _, err := s.poller.Rearm(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Status collects settings, schedules and recent deliveries.
func (s *Service) Status(ctx context.Context) (Status, error) {
	st := Status{Settings: s.settings.Get()}
	var err error
	if st.Scheduled, err = s.sched.GetAllScheduled(ctx); err != nil {
		return st, err
	}
	if s.poller != nil {
		if st.Polled, err = s.poller.List(ctx); err != nil {
			return st, err
		}
	}
	if s.journal != nil {
		if st.Deliveries, err = s.journal.RecentDeliveries(ctx, 5); err != nil {
			return st, err
		}
	}
	return st, nil
}
