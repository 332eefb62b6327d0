package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Category identifies a kind of notification. The set is closed.
type Category string

const (
	CategoryDailyIntention      Category = "daily_intention"
	CategoryYourTurn            Category = "your_turn"
	CategoryPartnerJoined       Category = "partner_joined"
	CategoryNewChapter          Category = "new_chapter"
	CategoryStoryCompleted      Category = "story_completed"
	CategoryStreakReminder      Category = "streak_reminder"
	CategoryAchievementUnlocked Category = "achievement_unlocked"
	CategoryPartnerMessage      Category = "partner_message"
	CategoryWeeklyRecap         Category = "weekly_recap"
)

var ErrUnknownCategory = errors.New("unknown notification category")

var allCategories = []Category{
	CategoryDailyIntention,
	CategoryYourTurn,
	CategoryPartnerJoined,
	CategoryNewChapter,
	CategoryStoryCompleted,
	CategoryStreakReminder,
	CategoryAchievementUnlocked,
	CategoryPartnerMessage,
	CategoryWeeklyRecap,
}

// Categories returns every known category in display order.
func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range allCategories {
		if c == k {
			return true
		}
	}
	return false
}

// ParseCategory turns user input such as "your_turn" or "Your-Turn" into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}
