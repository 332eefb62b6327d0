package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ErnestHysa/parallel-notify/internal/domain"
	"github.com/ErnestHysa/parallel-notify/internal/reminders"
)

// UI texts in English
const (
	startText = "👋 I deliver your Parallel notifications here.\n\n" +
		"Use /intention to get a daily writing nudge, /quiet to set quiet hours, " +
		"and /mute or /unmute to pick what you hear about."
	statusTitle = "🧾 Your notification settings:"
	statusFmt   = "• Daily intention: %s\n• Quiet hours: %s\n• Timezone: %s\n• Muted: %s\n"
)

// formatNotification renders a template as a chat message.
func formatNotification(t domain.Template) string {
	var b strings.Builder
	b.WriteString(t.Title)
	b.WriteString("\n\n")
	b.WriteString(t.Body)
	if t.RequireInteraction {
		b.WriteString("\n\n👉 Open Parallel to respond.")
	}
	return b.String()
}

func formatQuiet(q domain.QuietHours) string {
	if !q.Enabled {
		return "off"
	}
	return domain.FormatClock(q.StartHour, 0) + "–" + domain.FormatClock(q.EndHour, 0)
}

func formatStatus(st reminders.Status) string {
	var muted []string
	for _, c := range domain.Categories() {
		if !st.Settings.Enabled(c) {
			muted = append(muted, string(c))
		}
	}
	mutedText := "none"
	if len(muted) > 0 {
		mutedText = strings.Join(muted, ", ")
	}

	intention := "not scheduled"
	for _, n := range st.Scheduled {
		if n.Category == domain.CategoryDailyIntention && n.Daily() {
			intention = domain.FormatClock(n.Hour, n.Minute)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n"+statusFmt, statusTitle, intention, formatQuiet(st.Settings.QuietHours), st.Settings.Timezone, mutedText)

	if len(st.Scheduled)+len(st.Polled) > 0 {
		b.WriteString("\n⏰ Scheduled:\n")
		for _, n := range append(append([]domain.ScheduledNotification{}, st.Scheduled...), st.Polled...) {
			when := domain.FormatClock(n.Hour, n.Minute)
			if n.Daily() {
				when = "daily " + when
			}
			fmt.Fprintf(&b, "• %s at %s\n", n.Category, when)
		}
	}

	if len(st.Deliveries) > 0 {
		b.WriteString("\n📬 Recent:\n")
		for _, d := range st.Deliveries {
			at, err := domain.LocalizeTime(d.At, st.Settings.Timezone)
			if err != nil {
				at = d.At.UTC().Format("15:04")
			}
			fmt.Fprintf(&b, "• %s %s %s\n", at, d.Category, d.Outcome)
		}
	}
	return b.String()
}

// mainMenuKeyboard builds the reply keyboard shown under every command answer.
func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/status"),
			tgbotapi.NewKeyboardButton("/settings"),
		),
	)
}

// Inline keyboards
func settingsInlineKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🌅 Daily intention", "set_intention"),
			tgbotapi.NewInlineKeyboardButtonData("🌙 Quiet hours", "set_quiet"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔔 Categories", "set_categories"),
		),
	)
}

func intentionPresetsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("07:00", "intention:7"),
			tgbotapi.NewInlineKeyboardButtonData("08:00", "intention:8"),
			tgbotapi.NewInlineKeyboardButtonData("09:00", "intention:9"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("12:00", "intention:12"),
			tgbotapi.NewInlineKeyboardButtonData("20:00", "intention:20"),
			tgbotapi.NewInlineKeyboardButtonData("✍️ Custom…", "intention:custom"),
		),
	)
}

func quietPresetsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("22:00–08:00", "quiet:22-08"),
			tgbotapi.NewInlineKeyboardButtonData("23:00–07:00", "quiet:23-07"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Off", "quiet:off"),
			tgbotapi.NewInlineKeyboardButtonData("✍️ Custom…", "quiet:custom"),
		),
	)
}

func categoriesKeyboard(s domain.Settings) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, c := range domain.Categories() {
		mark := "🔔"
		if !s.Enabled(c) {
			mark = "🔕"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(mark+" "+string(c), "toggle:"+string(c)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
