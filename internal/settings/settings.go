// Package settings keeps the user's notification preferences in memory and
// persists every change immediately.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ErnestHysa/parallel-notify/internal/domain"
	"github.com/ErnestHysa/parallel-notify/internal/store"
)

// Patch holds the fields to change; nil fields are left alone.
type Patch struct {
	Categories         map[domain.Category]bool
	QuietHours         *domain.QuietHours
	DailyIntentionHour *int
	Timezone           *string
}

// Store is the process-wide settings record.
type Store struct {
	kv        store.KV
	log       *zap.Logger
	defaultTZ string

	mu  sync.RWMutex
	cur domain.Settings
}

// New returns a store holding defaults until Load is called.
func New(kv store.KV, log *zap.Logger, defaultTZ string) *Store {
	return &Store{
		kv:        kv,
		log:       log,
		defaultTZ: defaultTZ,
		cur:       domain.DefaultSettings(defaultTZ),
	}
}

// persistedKeys are read and written together.
var persistedKeys = []string{store.KeySettings, store.KeyQuietHours, store.KeyTimezone}

// Load reads the persisted record. Missing, unreadable or corrupt data falls back
// to defaults; Load never fails.
func (s *Store) Load(ctx context.Context) domain.Settings {
	vals := make(map[string][]byte, len(persistedKeys))
	for _, key := range persistedKeys {
		e, found, err := s.kv.Get(ctx, key)
		if err != nil {
			s.log.Error("load settings failed, using defaults", zap.String("key", key), zap.Error(err))
			continue
		}
		if found {
			vals[key] = e.Value
		}
	}
	loaded := s.compose(vals)

	s.mu.Lock()
	s.cur = loaded
	s.mu.Unlock()
	return loaded.Clone()
}

// compose builds settings from stored values over the defaults. The standalone
// quiet-hours key wins over the copy inside the settings record.
func (s *Store) compose(vals map[string][]byte) domain.Settings {
	out := domain.DefaultSettings(s.defaultTZ)

	if raw, ok := vals[store.KeySettings]; ok {
		var rec domain.Settings
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.log.Warn("corrupt settings, using defaults", zap.Error(err))
		} else {
			merge(&out, rec)
		}
	}

	if raw, ok := vals[store.KeyQuietHours]; ok {
		var q domain.QuietHours
		if err := json.Unmarshal(raw, &q); err != nil {
			s.log.Warn("corrupt quiet hours", zap.Error(err))
		} else if err := q.Validate(); err != nil {
			s.log.Warn("stored quiet hours are invalid", zap.Error(err))
		} else {
			out.QuietHours = q
		}
	}

	if raw, ok := vals[store.KeyTimezone]; ok {
		var tz string
		if err := json.Unmarshal(raw, &tz); err != nil {
			s.log.Warn("corrupt timezone preference", zap.Error(err))
		} else if _, err := domain.ValidateTZ(tz); err != nil {
			s.log.Warn("stored timezone is invalid", zap.String("tz", tz))
		} else {
			out.Timezone = tz
		}
	}
	return out
}

// merge copies the persisted fields over the defaults. Invalid hours keep the default.
func merge(dst *domain.Settings, rec domain.Settings) {
	for c, on := range rec.Categories {
		if c.Valid() {
			dst.Categories[c] = on
		}
	}
	if rec.QuietHours.Validate() == nil {
		dst.QuietHours = rec.QuietHours
	}
	if domain.ValidateHour(rec.DailyIntentionHour) == nil {
		dst.DailyIntentionHour = rec.DailyIntentionHour
	}
}

// Get returns a copy of the current settings.
func (s *Store) Get() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Clone()
}

// Update validates p and applies it to the stored record inside one transaction,
// so changes made by another process since Load are kept. The in-memory record is
// refreshed from the result; on any error it is unchanged.
func (s *Store) Update(ctx context.Context, p Patch) error {
	if err := validate(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var next domain.Settings
	err := s.kv.UpdateMany(ctx, persistedKeys, func(cur map[string][]byte) (map[string][]byte, error) {
		next = s.compose(cur)
		for c, on := range p.Categories {
			next.Categories[c] = on
		}
		if p.QuietHours != nil {
			next.QuietHours = *p.QuietHours
		}
		if p.DailyIntentionHour != nil {
			next.DailyIntentionHour = *p.DailyIntentionHour
		}

		rec, err := json.Marshal(next)
		if err != nil {
			return nil, err
		}
		quiet, err := json.Marshal(next.QuietHours)
		if err != nil {
			return nil, err
		}
		out := map[string][]byte{store.KeySettings: rec, store.KeyQuietHours: quiet}

		if p.Timezone != nil {
			tz, _ := domain.ValidateTZ(*p.Timezone)
			raw, err := json.Marshal(tz)
			if err != nil {
				return nil, err
			}
			out[store.KeyTimezone] = raw
			next.Timezone = tz
		}
		return out, nil
	})
	if err != nil {
		s.log.Error("persist settings failed", zap.Error(err))
		return fmt.Errorf("persist settings: %w", err)
	}

	s.cur = next
	return nil
}

func validate(p Patch) error {
	for c := range p.Categories {
		if !c.Valid() {
			return fmt.Errorf("%w: %q", domain.ErrUnknownCategory, c)
		}
	}
	if p.QuietHours != nil {
		if err := p.QuietHours.Validate(); err != nil {
			return err
		}
	}
	if p.DailyIntentionHour != nil {
		if err := domain.ValidateHour(*p.DailyIntentionHour); err != nil {
			return err
		}
	}
	if p.Timezone != nil {
		if _, err := domain.ValidateTZ(*p.Timezone); err != nil {
			return err
		}
	}
	return nil
}

// QuietHours returns the current quiet-hours window.
func (s *Store) QuietHours() domain.QuietHours {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.QuietHours
}

// SetQuietHours replaces the quiet-hours window.
func (s *Store) SetQuietHours(ctx context.Context, q domain.QuietHours) error {
	return s.Update(ctx, Patch{QuietHours: &q})
}

// SetCategoryEnabled toggles a single category.
func (s *Store) SetCategoryEnabled(ctx context.Context, c domain.Category, on bool) error {
	return s.Update(ctx, Patch{Categories: map[domain.Category]bool{c: on}})
}

// SetDailyIntentionHour sets the preferred daily intention hour.
func (s *Store) SetDailyIntentionHour(ctx context.Context, h int) error {
	return s.Update(ctx, Patch{DailyIntentionHour: &h})
}

// SetTimezone sets the user's IANA timezone.
func (s *Store) SetTimezone(ctx context.Context, tz string) error {
	return s.Update(ctx, Patch{Timezone: &tz})
}

// Location returns the user's timezone, UTC if it cannot be loaded.
func (s *Store) Location() *time.Location {
	s.mu.RLock()
	tz := s.cur.Timezone
	s.mu.RUnlock()
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
