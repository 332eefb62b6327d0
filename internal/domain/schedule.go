package domain

import "time"

// QuietHours is a daily window during which notifications are suppressed.
// Hours are 0..23; StartHour > EndHour wraps past midnight (e.g. 22–08).
type QuietHours struct {
	Enabled   bool `json:"enabled"`
	StartHour int  `json:"startHour"`
	EndHour   int  `json:"endHour"`
}

// InWindow reports whether hour is inside [from, to).
// Supports wrap-around windows like 22–08 (from > to).
func InWindow(hour, from, to int) bool {
	if from == to {
		return false // zero-length window
	}
	if from < to {
		return hour >= from && hour < to
	}
	// wrap: [from..24) U [0..to)
	return hour >= from || hour < to
}

// Suppresses reports whether a notification at the given local hour falls in quiet hours.
func (q QuietHours) Suppresses(hour int) bool {
	if !q.Enabled {
		return false
	}
	return InWindow(hour, q.StartHour, q.EndHour)
}

// SuppressesAt is Suppresses for t expressed in loc.
func (q QuietHours) SuppressesAt(t time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	return q.Suppresses(t.In(loc).Hour())
}

// Validate checks that both bounds are valid hours.
func (q QuietHours) Validate() error {
	if err := ValidateHour(q.StartHour); err != nil {
		return err
	}
	return ValidateHour(q.EndHour)
}

// NextDaily returns the next occurrence of hour:minute in loc strictly after now.
// The result is in UTC.
func NextDaily(now time.Time, hour, minute int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	localNow := now.In(loc)
	next := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), hour, minute, 0, 0, loc)
	if !next.After(localNow) {
		// Rebuilding via time.Date keeps the wall-clock time across DST changes.
		next = time.Date(localNow.Year(), localNow.Month(), localNow.Day()+1, hour, minute, 0, 0, loc)
	}
	return next.UTC()
}

// SameHour reports whether a and b fall in the same wall-clock hour of the same day in loc.
func SameHour(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	a, b = a.In(loc), b.In(loc)
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd && a.Hour() == b.Hour()
}
