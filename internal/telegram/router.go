package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ErnestHysa/parallel-notify/internal/domain"
	"github.com/ErnestHysa/parallel-notify/internal/reminders"
	"github.com/ErnestHysa/parallel-notify/internal/store"
)

// ErrNoChat is returned by Notify before any chat has been bound with /start.
var ErrNoChat = errors.New("no telegram chat bound")

// Pending state keys used in conversational flows.
const (
	pendingQuiet     = "await_quiet_text"
	pendingIntention = "await_intention_text"
)

// Sender is the part of tgbotapi.BotAPI the router uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Router wires Telegram updates to the reminders service and delivers
// notifications to the bound chat.
type Router struct {
	bot    Sender
	log    *zap.Logger
	svc    *reminders.Service
	kv     store.KV
	chatID atomic.Int64

	state map[int64]string // chatID -> pending state
	mu    sync.RWMutex
}

// NewRouter creates a new Telegram router. A non-zero chatID binds delivery
// up front; otherwise the chat saved by the first /start is used. Once a chat
// is bound, updates from every other chat are ignored.
func NewRouter(ctx context.Context, bot Sender, log *zap.Logger, svc *reminders.Service, kv store.KV, chatID int64) *Router {
	r := &Router{
		bot:   bot,
		log:   log,
		svc:   svc,
		kv:    kv,
		state: make(map[int64]string),
	}
	if chatID == 0 {
		chatID = r.loadChat(ctx)
	}
	r.chatID.Store(chatID)
	return r
}

func (r *Router) loadChat(ctx context.Context) int64 {
	e, found, err := r.kv.Get(ctx, store.KeyTelegramChat)
	if err != nil {
		r.log.Warn("load bound chat failed", zap.Error(err))
		return 0
	}
	if !found {
		return 0
	}
	id, err := strconv.ParseInt(string(e.Value), 10, 64)
	if err != nil {
		r.log.Warn("corrupt bound chat id", zap.Error(err))
		return 0
	}
	return id
}

// bindChat claims delivery for chatID if no chat is bound yet. It reports
// whether chatID is the bound chat afterwards.
func (r *Router) bindChat(ctx context.Context, chatID int64) (bool, error) {
	if !r.chatID.CompareAndSwap(0, chatID) {
		return r.chatID.Load() == chatID, nil
	}
	if err := r.kv.Set(ctx, store.KeyTelegramChat, []byte(strconv.FormatInt(chatID, 10))); err != nil {
		r.chatID.Store(0)
		return false, err
	}
	r.log.Info("telegram chat bound", zap.Int64("chat_id", chatID))
	return true, nil
}

// allowed reports whether an update from chatID may be handled. Before any
// chat is bound only /start is accepted.
func (r *Router) allowed(chatID int64, start bool) bool {
	bound := r.chatID.Load()
	if bound == 0 {
		return start
	}
	if bound != chatID {
		r.log.Warn("update from foreign chat ignored", zap.Int64("chat_id", chatID))
		return false
	}
	return true
}

// setPending sets a pending state for a chat (non-persistent, in-memory).
func (r *Router) setPending(chatID int64, s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[chatID] = s
}

// getPending returns current pending state for a chat.
func (r *Router) getPending(chatID int64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state[chatID]
}

// clearPending clears a pending state for a chat.
func (r *Router) clearPending(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state, chatID)
}

// HandleUpdate routes a single update to appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	// Text messages
	if upd.Message != nil {
		msg := upd.Message
		if msg.Chat == nil {
			return
		}
		chatID := msg.Chat.ID
		text := strings.TrimSpace(msg.Text)
		cmd, arg, _ := strings.Cut(text, " ")
		arg = strings.TrimSpace(arg)
		if !r.allowed(chatID, strings.HasPrefix(cmd, "/start")) {
			return
		}

		switch {
		case strings.HasPrefix(cmd, "/start"):
			r.handleStart(ctx, chatID)
		case strings.HasPrefix(cmd, "/status"):
			r.handleStatus(ctx, chatID)
		case strings.HasPrefix(cmd, "/settings"):
			r.handleSettings(ctx, chatID)
		case strings.HasPrefix(cmd, "/intention"):
			r.handleIntention(ctx, chatID, arg)
		case strings.HasPrefix(cmd, "/quiet"):
			r.handleQuiet(ctx, chatID, arg)
		case strings.HasPrefix(cmd, "/mute"):
			r.handleMute(ctx, chatID, arg, false)
		case strings.HasPrefix(cmd, "/unmute"):
			r.handleMute(ctx, chatID, arg, true)
		case strings.HasPrefix(cmd, "/cancel_all"):
			r.handleCancelAll(ctx, chatID)
		default:
			// Free-form text used in the custom input flows
			r.handleFreeForm(ctx, chatID, text)
		}
		return
	}

	// Callback queries (inline buttons)
	if upd.CallbackQuery != nil {
		cb := upd.CallbackQuery
		if cb.Message == nil || cb.Message.Chat == nil {
			return
		}
		data := cb.Data
		chatID := cb.Message.Chat.ID
		if !r.allowed(chatID, false) {
			return
		}

		switch {
		case data == "set_quiet":
			r.askQuietPresets(ctx, chatID, cb.ID)
		case strings.HasPrefix(data, "quiet:"):
			r.handleQuietCallback(ctx, chatID, data, cb.ID)
		case data == "set_intention":
			r.askIntentionPresets(ctx, chatID, cb.ID)
		case strings.HasPrefix(data, "intention:"):
			r.handleIntentionCallback(ctx, chatID, data, cb.ID)
		case data == "set_categories":
			r.askCategories(ctx, chatID, cb.ID)
		case strings.HasPrefix(data, "toggle:"):
			r.handleToggleCallback(ctx, chatID, data, cb.ID)
		default:
			// Unknown callback: ignore
		}
		return
	}
}

// Notify sends a rendered notification to the bound chat.
// This makes Router satisfy sink.Notifier.
func (r *Router) Notify(_ context.Context, t domain.Template) error {
	chatID := r.chatID.Load()
	if chatID == 0 {
		return ErrNoChat
	}
	msg := tgbotapi.NewMessage(chatID, formatNotification(t))
	// Passive notifications arrive silently, like a badge.
	msg.DisableNotification = t.Category == domain.CategoryWeeklyRecap
	_, err := r.bot.Send(msg)
	return err
}
