package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/punithbm/attendance-bot/internal/attendance"
	"github.com/punithbm/attendance-bot/internal/billing"
)

// flow identifies a multi-step conversational input sequence.
type flow int

const (
	flowNone flow = iota
	flowUpdatePayment
	flowPack
	flowAddUser
)

// pending is the in-memory state of one chat's active conversation.
type pending struct {
	flow flow
	step int

	userID      int64
	amountPaise int64
	months      int
	packLen     int
	monthHint   int // 1..12

	name   string
	mobile string
}

// Router wires Telegram updates to the billing engine and attendance
// reporter, and holds the per-chat conversation state.
type Router struct {
	bot      *tgbotapi.BotAPI
	log      *zap.Logger
	billing  *billing.Engine
	reporter *attendance.Reporter

	authorized map[int64]struct{}

	mu    sync.Mutex
	state map[int64]*pending
}

// NewRouter creates a router. Only the given Telegram user IDs may issue
// commands; everyone else is refused.
func NewRouter(bot *tgbotapi.BotAPI, log *zap.Logger, eng *billing.Engine, rep *attendance.Reporter, authorizedIDs []int64) *Router {
	auth := make(map[int64]struct{}, len(authorizedIDs))
	for _, id := range authorizedIDs {
		auth[id] = struct{}{}
	}
	return &Router{
		bot:        bot,
		log:        log,
		billing:    eng,
		reporter:   rep,
		authorized: auth,
		state:      make(map[int64]*pending),
	}
}

func (r *Router) setPending(chatID int64, p *pending) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[chatID] = p
}

func (r *Router) getPending(chatID int64) *pending {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state[chatID]
}

func (r *Router) clearPending(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state, chatID)
}

func (r *Router) isAuthorized(userID int64) bool {
	_, ok := r.authorized[userID]
	return ok
}

// HandleUpdate routes a single update to the appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		msg := upd.Message
		chatID := msg.Chat.ID

		if msg.From == nil || !r.isAuthorized(msg.From.ID) {
			r.sendText(chatID, unauthorizedText)
			return
		}

		text := strings.TrimSpace(msg.Text)
		switch {
		case strings.HasPrefix(text, "/start"):
			r.sendText(chatID, startText)
		case strings.HasPrefix(text, "/unpaid"):
			r.handleUnpaid(ctx, chatID)
		case strings.HasPrefix(text, "/paid"):
			r.handlePaid(ctx, chatID)
		case strings.HasPrefix(text, "/update_payment"):
			r.setPending(chatID, &pending{flow: flowUpdatePayment})
			r.sendText(chatID, "Please enter the user ID:")
		case strings.HasPrefix(text, "/pack"):
			r.setPending(chatID, &pending{flow: flowPack})
			r.sendText(chatID, "Please enter the user ID:")
		case strings.HasPrefix(text, "/add_user"):
			r.setPending(chatID, &pending{flow: flowAddUser})
			r.sendText(chatID, "Please enter the member's name:")
		case strings.HasPrefix(text, "/attendance"):
			r.handleAttendance(ctx, chatID, strings.TrimSpace(strings.TrimPrefix(text, "/attendance")))
		case strings.HasPrefix(text, "/cancel"):
			r.clearPending(chatID)
			r.sendText(chatID, "Cancelled.")
		default:
			r.handleFreeForm(ctx, chatID, text)
		}
		return
	}

	if upd.CallbackQuery != nil {
		cb := upd.CallbackQuery
		if !r.isAuthorized(cb.From.ID) {
			_, _ = r.bot.Request(tgbotapi.NewCallback(cb.ID, "Not authorized"))
			return
		}
		r.handleCallback(ctx, cb)
	}
}

// sendText sends text, splitting it into transport-sized chunks.
func (r *Router) sendText(chatID int64, text string) {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if _, err := r.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			r.log.Warn("send failed", zap.Int64("chatID", chatID), zap.Error(err))
		}
	}
}

// sendMarkdown is sendText with Markdown parse mode.
func (r *Router) sendMarkdown(chatID int64, text string) {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := r.bot.Send(msg); err != nil {
			r.log.Warn("send failed", zap.Int64("chatID", chatID), zap.Error(err))
		}
	}
}

// SendReport satisfies the scheduled report job: it renders today's
// attendance report and delivers it to the given chat.
func (r *Router) SendReport(ctx context.Context, chatID int64) {
	out, err := r.reporter.Report(ctx, time.Time{})
	if err != nil {
		r.log.Error("scheduled report failed", zap.Error(err))
		return
	}
	r.sendMarkdown(chatID, out)
}
