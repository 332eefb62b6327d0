package domain

// Settings is the user's notification preference record.
type Settings struct {
	Categories         map[Category]bool `json:"categories"`
	QuietHours         QuietHours        `json:"quietHours"`
	DailyIntentionHour int               `json:"dailyIntentionHour"`
	// Timezone is persisted under its own key.
	Timezone string `json:"-"`
}

const (
	DefaultDailyIntentionHour = 9
	DefaultQuietStart         = 22
	DefaultQuietEnd           = 8
)

// DefaultSettings returns every category enabled, quiet hours 22–08 (off)
// and a 09:00 daily intention.
func DefaultSettings(tz string) Settings {
	cats := make(map[Category]bool, len(allCategories))
	for _, c := range allCategories {
		cats[c] = true
	}
	return Settings{
		Categories: cats,
		QuietHours: QuietHours{
			Enabled:   false,
			StartHour: DefaultQuietStart,
			EndHour:   DefaultQuietEnd,
		},
		DailyIntentionHour: DefaultDailyIntentionHour,
		Timezone:           tz,
	}
}

// Enabled reports whether notifications of category c are on.
// Categories missing from the record count as enabled.
func (s Settings) Enabled(c Category) bool {
	on, ok := s.Categories[c]
	return !ok || on
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	out.Categories = make(map[Category]bool, len(s.Categories))
	for k, v := range s.Categories {
		out.Categories[k] = v
	}
	return out
}
