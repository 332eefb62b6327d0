package domain

import (
	"fmt"
	"strconv"
)

// Params are the optional values a template can interpolate.
type Params struct {
	StoryID         string `json:"storyId,omitempty"`
	StoryTitle      string `json:"storyTitle,omitempty"`
	PartnerName     string `json:"partnerName,omitempty"`
	ChapterNumber   int    `json:"chapterNumber,omitempty"`
	StreakDays      int    `json:"streakDays,omitempty"`
	AchievementName string `json:"achievementName,omitempty"`
	Message         string `json:"message,omitempty"`
}

// Template is a rendered notification payload. Never persisted.
type Template struct {
	ID                 string
	Category           Category
	Title              string
	Body               string
	Icon               string
	Tag                string
	RequireInteraction bool
	Data               map[string]string
}

const (
	fallbackPartner = "Your partner"
	fallbackStory   = "your story"
	defaultIcon     = "/icons/icon-192.png"
)

// Render builds the template for category c. It is pure and total over the known categories;
// an unknown category renders a generic reminder.
func Render(c Category, p Params) Template {
	partner := orDefault(p.PartnerName, fallbackPartner)
	story := fallbackStory
	if p.StoryTitle != "" {
		story = "“" + p.StoryTitle + "”"
	}

	t := Template{
		ID:       string(c),
		Category: c,
		Icon:     defaultIcon,
		Tag:      string(c),
	}
	if p.StoryID != "" {
		t.ID = string(c) + "-" + p.StoryID
		t.Tag = string(c) + "-" + p.StoryID
	}

	switch c {
	case CategoryDailyIntention:
		t.Title = "🌅 Daily intention"
		t.Body = "Take a moment to set today's intention and share it with your partner."
	case CategoryYourTurn:
		t.Title = "✍️ Your turn!"
		t.Body = fmt.Sprintf("%s is waiting for the next part of %s.", partner, story)
		t.RequireInteraction = true
	case CategoryPartnerJoined:
		t.Title = "💞 Your partner joined"
		t.Body = fmt.Sprintf("%s joined %s. Time to write together!", partner, story)
	case CategoryNewChapter:
		t.Title = "📖 New chapter"
		if p.ChapterNumber > 0 {
			t.Body = fmt.Sprintf("%s added chapter %d to %s.", partner, p.ChapterNumber, story)
		} else {
			t.Body = fmt.Sprintf("%s added a new chapter to %s.", partner, story)
		}
	case CategoryStoryCompleted:
		t.Title = "🎉 Story completed"
		t.Body = fmt.Sprintf("You and %s finished %s. Read it together!", inSentence(partner), story)
	case CategoryStreakReminder:
		t.Title = "🔥 Keep your streak"
		if p.StreakDays > 0 {
			t.Body = fmt.Sprintf("You're on a %d-day streak. Write something today to keep it going.", p.StreakDays)
		} else {
			t.Body = "Write something today to start a new streak."
		}
	case CategoryAchievementUnlocked:
		t.Title = "🏆 Achievement unlocked"
		t.Body = "You unlocked " + orDefault(p.AchievementName, "a new achievement") + "!"
	case CategoryPartnerMessage:
		t.Title = "💌 " + partner + " sent you a note"
		t.Body = orDefault(p.Message, "Open the app to read it.")
		t.RequireInteraction = true
	case CategoryWeeklyRecap:
		t.Title = "🗓 Your week together"
		t.Body = "See what you and your partner created this week."
	default:
		t.Title = "🔔 Parallel"
		t.Body = "You have a new update."
	}

	t.Data = p.data(c)
	return t
}

// data flattens the non-empty params into the template's data map.
func (p Params) data(c Category) map[string]string {
	d := map[string]string{"category": string(c)}
	set := func(k, v string) {
		if v != "" {
			d[k] = v
		}
	}
	set("storyId", p.StoryID)
	set("storyTitle", p.StoryTitle)
	set("partnerName", p.PartnerName)
	set("achievementName", p.AchievementName)
	set("message", p.Message)
	if p.ChapterNumber > 0 {
		d["chapterNumber"] = strconv.Itoa(p.ChapterNumber)
	}
	if p.StreakDays > 0 {
		d["streakDays"] = strconv.Itoa(p.StreakDays)
	}
	return d
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// inSentence lowercases the fallback partner name for mid-sentence use.
func inSentence(s string) string {
	if s == fallbackPartner {
		return "your partner"
	}
	return s
}
