package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ErnestHysa/parallel-notify/internal/domain"
	"github.com/ErnestHysa/parallel-notify/internal/scheduler"
)

// --- Generic helpers ---

func (r *Router) sendText(chatID int64, text string) {
	_, _ = r.bot.Send(tgbotapi.NewMessage(chatID, text))
}

func (r *Router) answerCallback(id, text string) error {
	_, err := r.bot.Request(tgbotapi.NewCallback(id, text))
	return err
}

// explain turns scheduling errors into something a user can act on.
func explain(err error) string {
	switch {
	case errors.Is(err, scheduler.ErrQuietHours):
		return "It's quiet hours right now, so nothing was scheduled. Try again later or change /quiet."
	case errors.Is(err, scheduler.ErrCategoryDisabled):
		return "That category is muted. Use /unmute first."
	case errors.Is(err, domain.ErrInvalidHour), errors.Is(err, domain.ErrInvalidMinute):
		return "Invalid time. Use an hour from 0 to 23, e.g. 9 or 09:00."
	default:
		return "Something went wrong. Please try again later."
	}
}

// --- Core commands ---

func (r *Router) handleStart(ctx context.Context, chatID int64) {
	ok, err := r.bindChat(ctx, chatID)
	if err != nil {
		r.log.Error("bind chat failed", zap.Error(err))
		r.sendText(chatID, "Initialization error. Please try again later.")
		return
	}
	if !ok {
		r.log.Warn("start from foreign chat ignored", zap.Int64("chat_id", chatID))
		return
	}
	msg := tgbotapi.NewMessage(chatID, startText)
	msg.ReplyMarkup = mainMenuKeyboard()
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleStatus(ctx context.Context, chatID int64) {
	st, err := r.svc.Status(ctx)
	if err != nil {
		r.log.Error("status failed", zap.Error(err))
		r.sendText(chatID, "Error reading your settings.")
		return
	}
	msg := tgbotapi.NewMessage(chatID, formatStatus(st))
	msg.ReplyMarkup = mainMenuKeyboard()
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleSettings(_ context.Context, chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "What do you want to configure?")
	msg.ReplyMarkup = settingsInlineKeyboard()
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleCancelAll(ctx context.Context, chatID int64) {
	if err := r.svc.CancelAllNotifications(ctx); err != nil {
		r.log.Error("cancel all failed", zap.Error(err))
		r.sendText(chatID, "Some notifications could not be cancelled.")
		return
	}
	r.sendText(chatID, "All scheduled notifications cancelled.")
}

// --- Daily intention flow ---

func (r *Router) handleIntention(ctx context.Context, chatID int64, arg string) {
	if arg == "" {
		r.scheduleIntention(ctx, chatID, nil)
		return
	}
	h, m, err := domain.ParseClock(arg)
	if err != nil {
		r.sendText(chatID, explain(err))
		return
	}
	if m != 0 {
		r.sendText(chatID, "The intention reminder runs on the hour. Send an hour like 9 or 09:00.")
		return
	}
	r.scheduleIntention(ctx, chatID, &h)
}

func (r *Router) scheduleIntention(ctx context.Context, chatID int64, hour *int) {
	if _, err := r.svc.ScheduleDailyIntention(ctx, hour); err != nil {
		r.log.Warn("schedule intention failed", zap.Error(err))
		r.sendText(chatID, explain(err))
		return
	}
	h := r.svc.Settings().DailyIntentionHour
	r.sendText(chatID, "Daily intention set for "+domain.FormatClock(h, 0)+" 🌅")
}

func (r *Router) askIntentionPresets(_ context.Context, chatID int64, cbID string) {
	_ = r.answerCallback(cbID, "")
	msg := tgbotapi.NewMessage(chatID, "When should I remind you to set your intention?")
	msg.ReplyMarkup = intentionPresetsKeyboard()
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleIntentionCallback(ctx context.Context, chatID int64, data string, cbID string) {
	_ = r.answerCallback(cbID, "")
	val := strings.TrimPrefix(data, "intention:")
	if val == "custom" {
		r.sendText(chatID, "Enter an hour, e.g. 9 or 21:00")
		r.setPending(chatID, pendingIntention)
		return
	}
	r.handleIntention(ctx, chatID, val)
}

// --- Quiet hours flow ---

func (r *Router) handleQuiet(ctx context.Context, chatID int64, arg string) {
	if arg == "" {
		r.sendText(chatID, "Quiet hours: "+formatQuiet(r.svc.GetNotificationQuietHours()))
		return
	}
	if strings.EqualFold(arg, "off") {
		q := r.svc.GetNotificationQuietHours()
		q.Enabled = false
		r.saveQuiet(ctx, chatID, q)
		return
	}
	start, end, err := domain.ParseQuietWindow(arg)
	if err != nil {
		r.sendText(chatID, "Invalid format. Example: 22–08")
		return
	}
	r.saveQuiet(ctx, chatID, domain.QuietHours{Enabled: true, StartHour: start, EndHour: end})
}

func (r *Router) saveQuiet(ctx context.Context, chatID int64, q domain.QuietHours) {
	if err := r.svc.SetNotificationQuietHours(ctx, q); err != nil {
		r.log.Error("set quiet hours failed", zap.Error(err))
		r.sendText(chatID, "Could not save quiet hours.")
		return
	}
	r.sendText(chatID, "Quiet hours: "+formatQuiet(q))
}

func (r *Router) askQuietPresets(_ context.Context, chatID int64, cbID string) {
	_ = r.answerCallback(cbID, "")
	msg := tgbotapi.NewMessage(chatID, "Choose quiet hours (or Custom):")
	msg.ReplyMarkup = quietPresetsKeyboard()
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleQuietCallback(ctx context.Context, chatID int64, data string, cbID string) {
	_ = r.answerCallback(cbID, "")
	val := strings.TrimPrefix(data, "quiet:")
	if val == "custom" {
		r.sendText(chatID, "Enter quiet hours as HH–HH (e.g., 22–08)")
		r.setPending(chatID, pendingQuiet)
		return
	}
	r.handleQuiet(ctx, chatID, val)
}

// --- Categories ---

func (r *Router) handleMute(ctx context.Context, chatID int64, arg string, on bool) {
	c, err := domain.ParseCategory(arg)
	if err != nil {
		names := make([]string, 0, len(domain.Categories()))
		for _, k := range domain.Categories() {
			names = append(names, string(k))
		}
		r.sendText(chatID, "Unknown category. Choose one of: "+strings.Join(names, ", "))
		return
	}
	r.setCategory(ctx, chatID, c, on)
}

func (r *Router) setCategory(ctx context.Context, chatID int64, c domain.Category, on bool) {
	if err := r.svc.SetCategoryEnabled(ctx, c, on); err != nil {
		r.log.Error("set category failed", zap.Error(err), zap.String("category", string(c)))
		r.sendText(chatID, "Could not update "+string(c)+".")
		return
	}
	state := "muted 🔕"
	if on {
		state = "on 🔔"
	}
	r.sendText(chatID, string(c)+" is "+state)
}

func (r *Router) askCategories(_ context.Context, chatID int64, cbID string) {
	_ = r.answerCallback(cbID, "")
	msg := tgbotapi.NewMessage(chatID, "Tap a category to mute or unmute it:")
	msg.ReplyMarkup = categoriesKeyboard(r.svc.Settings())
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleToggleCallback(ctx context.Context, chatID int64, data string, cbID string) {
	_ = r.answerCallback(cbID, "")
	c, err := domain.ParseCategory(strings.TrimPrefix(data, "toggle:"))
	if err != nil {
		return
	}
	r.setCategory(ctx, chatID, c, !r.svc.Settings().Enabled(c))
}

// --- Free-form dispatcher (for all "Custom" inputs) ---

func (r *Router) handleFreeForm(ctx context.Context, chatID int64, text string) {
	switch r.getPending(chatID) {
	case pendingIntention:
		r.clearPending(chatID)
		r.handleIntention(ctx, chatID, text)

	case pendingQuiet:
		r.clearPending(chatID)
		if _, err := strconv.Atoi(text); err == nil {
			r.sendText(chatID, "Please send a range, e.g. 22–08")
			return
		}
		r.handleQuiet(ctx, chatID, text)

	default:
		// No pending flow: ignore free-form message
	}
}
