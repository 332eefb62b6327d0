// Package sink holds the platform notification collaborators: an immediate
// Notifier and a Sink that owns its own triggers.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErnestHysa/parallel-notify/internal/domain"
)

var (
	ErrTriggerInPast = errors.New("trigger date is in the past")
	ErrUnknownID     = errors.New("unknown notification id")
	ErrClosed        = errors.New("sink closed")
)

// Notifier shows a notification right away.
type Notifier interface {
	Notify(ctx context.Context, t domain.Template) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, t domain.Template) error

func (f NotifierFunc) Notify(ctx context.Context, t domain.Template) error { return f(ctx, t) }

// Sink schedules notifications and fires them itself.
type Sink interface {
	Schedule(ctx context.Context, req Request) (string, error)
	Cancel(ctx context.Context, id string) error
	ListScheduled(ctx context.Context) ([]string, error)
}

// Request pairs content with when it should fire.
type Request struct {
	Content domain.Template
	Trigger Trigger
}

// TriggerKind selects how a Trigger is interpreted.
type TriggerKind int

const (
	TriggerImmediate TriggerKind = iota
	TriggerDelay
	TriggerDate
	TriggerDaily
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerImmediate:
		return "immediate"
	case TriggerDelay:
		return "delay"
	case TriggerDate:
		return "date"
	case TriggerDaily:
		return "daily"
	default:
		return fmt.Sprintf("TriggerKind(%d)", int(k))
	}
}

// Trigger describes when a notification should fire.
type Trigger struct {
	Kind     TriggerKind
	Delay    time.Duration  // TriggerDelay
	At       time.Time      // TriggerDate
	Hour     int            // TriggerDaily
	Minute   int            // TriggerDaily
	Location *time.Location // TriggerDaily; UTC when nil
}

// Immediate fires as soon as possible.
func Immediate() Trigger { return Trigger{Kind: TriggerImmediate} }

// After fires once after d.
func After(d time.Duration) Trigger { return Trigger{Kind: TriggerDelay, Delay: d} }

// At fires once at t.
func At(t time.Time) Trigger { return Trigger{Kind: TriggerDate, At: t} }

// Daily fires every day at hour:minute in loc.
func Daily(hour, minute int, loc *time.Location) Trigger {
	return Trigger{Kind: TriggerDaily, Hour: hour, Minute: minute, Location: loc}
}

// FirstFire returns when the trigger fires first, relative to now.
func (t Trigger) FirstFire(now time.Time) (time.Time, error) {
	switch t.Kind {
	case TriggerImmediate:
		return now, nil
	case TriggerDelay:
		if t.Delay < 0 {
			return time.Time{}, fmt.Errorf("negative delay %s", t.Delay)
		}
		return now.Add(t.Delay), nil
	case TriggerDate:
		if t.At.Before(now) {
			return time.Time{}, fmt.Errorf("%w: %s", ErrTriggerInPast, t.At.UTC().Format(time.RFC3339))
		}
		return t.At, nil
	case TriggerDaily:
		if err := domain.ValidateHour(t.Hour); err != nil {
			return time.Time{}, err
		}
		if err := domain.ValidateMinute(t.Minute); err != nil {
			return time.Time{}, err
		}
		return domain.NextDaily(now, t.Hour, t.Minute, t.Location), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported trigger %s", t.Kind)
	}
}
