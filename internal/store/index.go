package store

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/ErnestHysa/parallel-notify/internal/domain"
)

// Storage keys.
const (
	KeyScheduled       = "scheduled_notifications"          // trigger scheduler index
	KeyPollerScheduled = "parallel_scheduled_notifications" // poller index
	KeySettings        = "parallel_notification_settings"
	KeyQuietHours      = "notification_quiet_hours" // mirror of Settings.QuietHours
	KeyTimezone        = "user_timezone_preference"
	KeyTelegramChat    = "telegram_chat_id"
)

// ScheduleIndex persists a flat list of schedule records under a single key.
// Mutations are serialized in-process and run as one read-modify-write transaction,
// so interleaved callers cannot lose each other's updates.
type ScheduleIndex struct {
	kv  KV
	key string
	log *zap.Logger
	mu  sync.Mutex
}

// NewScheduleIndex creates an index stored under key.
func NewScheduleIndex(kv KV, key string, log *zap.Logger) *ScheduleIndex {
	return &ScheduleIndex{kv: kv, key: key, log: log}
}

// List returns all records. Corrupt stored JSON is logged and read as empty.
func (x *ScheduleIndex) List(ctx context.Context) ([]domain.ScheduledNotification, error) {
	e, found, err := x.kv.Get(ctx, x.key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return x.decode(e.Value), nil
}

// Put stores rec after removing every record with the same (category, repeatInterval).
// The removed records are returned.
func (x *ScheduleIndex) Put(ctx context.Context, rec domain.ScheduledNotification) ([]domain.ScheduledNotification, error) {
	var superseded []domain.ScheduledNotification
	err := x.mutate(ctx, func(list []domain.ScheduledNotification) []domain.ScheduledNotification {
		superseded = superseded[:0]
		kept := list[:0]
		for _, n := range list {
			if n.SameSlot(rec) {
				superseded = append(superseded, n)
				continue
			}
			kept = append(kept, n)
		}
		return append(kept, rec)
	})
	if err != nil {
		return nil, err
	}
	return superseded, nil
}

// Remove deletes records by id and returns the ones that existed.
func (x *ScheduleIndex) Remove(ctx context.Context, ids ...string) ([]domain.ScheduledNotification, error) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	return x.RemoveWhere(ctx, func(n domain.ScheduledNotification) bool {
		_, ok := drop[n.ID]
		return ok
	})
}

// RemoveCategory deletes every record of category c.
func (x *ScheduleIndex) RemoveCategory(ctx context.Context, c domain.Category) ([]domain.ScheduledNotification, error) {
	return x.RemoveWhere(ctx, func(n domain.ScheduledNotification) bool { return n.Category == c })
}

// RemoveWhere deletes every record matching pred.
func (x *ScheduleIndex) RemoveWhere(ctx context.Context, pred func(domain.ScheduledNotification) bool) ([]domain.ScheduledNotification, error) {
	var removed []domain.ScheduledNotification
	err := x.mutate(ctx, func(list []domain.ScheduledNotification) []domain.ScheduledNotification {
		removed = removed[:0]
		kept := list[:0]
		for _, n := range list {
			if pred(n) {
				removed = append(removed, n)
				continue
			}
			kept = append(kept, n)
		}
		return kept
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// Replace swaps the record with id oldID for rec. If oldID is gone, rec is not added.
func (x *ScheduleIndex) Replace(ctx context.Context, oldID string, rec domain.ScheduledNotification) (bool, error) {
	var replaced bool
	err := x.mutate(ctx, func(list []domain.ScheduledNotification) []domain.ScheduledNotification {
		replaced = false
		for i := range list {
			if list[i].ID == oldID {
				list[i] = rec
				replaced = true
			}
		}
		return list
	})
	return replaced, err
}

// Rewrite applies fn to every record in one transaction and returns the new list.
func (x *ScheduleIndex) Rewrite(ctx context.Context, fn func(domain.ScheduledNotification) domain.ScheduledNotification) ([]domain.ScheduledNotification, error) {
	var out []domain.ScheduledNotification
	err := x.mutate(ctx, func(list []domain.ScheduledNotification) []domain.ScheduledNotification {
		for i := range list {
			list[i] = fn(list[i])
		}
		out = append(out[:0], list...)
		return list
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Clear removes every record and returns them.
func (x *ScheduleIndex) Clear(ctx context.Context) ([]domain.ScheduledNotification, error) {
	return x.RemoveWhere(ctx, func(domain.ScheduledNotification) bool { return true })
}

func (x *ScheduleIndex) mutate(ctx context.Context, fn func([]domain.ScheduledNotification) []domain.ScheduledNotification) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	return x.kv.Update(ctx, x.key, func(cur []byte, found bool) ([]byte, error) {
		var list []domain.ScheduledNotification
		if found {
			list = x.decode(cur)
		}
		list = fn(list)
		if list == nil {
			list = []domain.ScheduledNotification{}
		}
		return json.Marshal(list)
	})
}

func (x *ScheduleIndex) decode(b []byte) []domain.ScheduledNotification {
	if len(b) == 0 {
		return nil
	}
	var list []domain.ScheduledNotification
	if err := json.Unmarshal(b, &list); err != nil {
		x.log.Warn("corrupt schedule index, treating as empty", zap.String("key", x.key), zap.Error(err))
		return nil
	}
	return list
}
