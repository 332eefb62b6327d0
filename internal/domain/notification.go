package domain

import "time"

// RepeatDaily marks a schedule record that recurs every day at Hour:Minute.
const RepeatDaily = "daily"

// ScheduledNotification is the persisted description of when and what to fire.
type ScheduledNotification struct {
	ID             string     `json:"id"`
	Category       Category   `json:"category"`
	ScheduledFor   *time.Time `json:"scheduledFor,omitempty"` // one-off, UTC
	Hour           int        `json:"hour"`
	Minute         int        `json:"minute"`
	RepeatInterval string     `json:"repeatInterval,omitempty"` // "" or "daily"
	Params         Params     `json:"data"`
	NextFireAt     *time.Time `json:"nextFireAt,omitempty"` // UTC, poller only
	CreatedAt      time.Time  `json:"createdAt"`
}

// Daily reports whether the record repeats every day.
func (n ScheduledNotification) Daily() bool {
	return n.RepeatInterval == RepeatDaily
}

// SameSlot reports whether n and o share the (category, repeatInterval) key.
// At most one record per slot is kept.
func (n ScheduledNotification) SameSlot(o ScheduledNotification) bool {
	return n.Category == o.Category && n.RepeatInterval == o.RepeatInterval
}
