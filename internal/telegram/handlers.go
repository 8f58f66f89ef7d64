package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/punithbm/attendance-bot/internal/attendance"
	"github.com/punithbm/attendance-bot/internal/domain"
)

func (r *Router) handleUnpaid(ctx context.Context, chatID int64) {
	rows, err := r.billing.DueUsers(ctx)
	if err != nil {
		r.log.Error("due list failed", zap.Error(err))
		r.sendText(chatID, "Could not read the due list.")
		return
	}
	if len(rows) == 0 {
		r.sendText(chatID, "No unpaid users found for the current month.")
		return
	}

	r.sendText(chatID, "Unpaid Users for this Month:")
	for _, row := range rows {
		body := fmt.Sprintf("Name: %s\nMobile: %s\nDue Month: %s %d",
			row.Name, row.Mobile, row.Month, row.Year)

		msg := tgbotapi.NewMessage(chatID, body)
		msg.ReplyMarkup = dueActionsKeyboard(row.UserID, row.Month)
		if _, err := r.bot.Send(msg); err != nil {
			r.log.Warn("send failed", zap.Int64("chatID", chatID), zap.Error(err))
		}
	}
}

func (r *Router) handlePaid(ctx context.Context, chatID int64) {
	rows, err := r.billing.PaidUsers(ctx)
	if err != nil {
		r.log.Error("paid list failed", zap.Error(err))
		r.sendText(chatID, "Could not read the paid list.")
		return
	}
	if len(rows) == 0 {
		r.sendText(chatID, "No paid users found for the current month.")
		return
	}

	var b strings.Builder
	b.WriteString("Paid Users for this Month:\n\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "Name: %s\nMobile: %s\nAmount: %s\n\n",
			row.Name, row.Mobile, domain.FormatPaise(row.AmountPaise))
	}
	r.sendText(chatID, b.String())
}

func (r *Router) handleAttendance(ctx context.Context, chatID int64, arg string) {
	var target time.Time
	if arg != "" {
		t, err := time.Parse("2006-01-02", arg)
		if err != nil {
			r.sendText(chatID, "Invalid date. Use /attendance YYYY-MM-DD, e.g. /attendance 2025-11-24")
			return
		}
		target = t
	}

	out, err := r.reporter.Report(ctx, target)
	if errors.Is(err, attendance.ErrFutureDate) {
		r.sendText(chatID, "That date is in the future — there is nothing to report yet.")
		return
	}
	if err != nil {
		r.log.Error("attendance report failed", zap.Error(err))
		r.sendText(chatID, "Could not build the attendance report.")
		return
	}
	r.sendMarkdown(chatID, out)
}

// handleFreeForm advances whichever conversation is pending for this chat.
func (r *Router) handleFreeForm(ctx context.Context, chatID int64, text string) {
	p := r.getPending(chatID)
	if p == nil {
		return
	}

	var reply string
	var done bool
	var err error

	switch p.flow {
	case flowUpdatePayment:
		reply, done, err = r.advanceUpdatePayment(ctx, p, text)
	case flowPack:
		reply, done, err = r.advancePack(ctx, p, text)
	case flowAddUser:
		reply, done, err = r.advanceAddUser(ctx, p, text)
	default:
		r.clearPending(chatID)
		return
	}

	if err != nil {
		// Invalid step input: re-prompt, keep the conversation alive.
		r.sendText(chatID, err.Error())
		return
	}
	if done {
		r.clearPending(chatID)
	}
	r.sendText(chatID, reply)
}

// advanceUpdatePayment collects user id -> amount -> months -> batch id,
// then generates the schedule.
func (r *Router) advanceUpdatePayment(ctx context.Context, p *pending, text string) (string, bool, error) {
	switch p.step {
	case 0:
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil || id <= 0 {
			return "", false, errors.New("Please enter a valid user ID.")
		}
		p.userID = id
		p.step++
		return "Please enter the amount:", false, nil
	case 1:
		paise, err := parseAmountPaise(text)
		if err != nil {
			return "", false, errors.New("Please enter a valid amount.")
		}
		p.amountPaise = paise
		p.step++
		return "Please enter the number of months:", false, nil
	case 2:
		months, err := strconv.Atoi(text)
		if err != nil || months < 1 {
			return "", false, errors.New("Please enter a valid number of months.")
		}
		p.months = months
		p.step++
		return "Please enter the batch ID:", false, nil
	default:
		if err := r.billing.GenerateSchedule(ctx, p.userID, p.amountPaise, p.months, text); err != nil {
			r.log.Error("update payment failed", zap.Int64("userID", p.userID), zap.Error(err))
			return "Failed to update payment information.", true, nil
		}
		return "Payment information updated successfully.", true, nil
	}
}

// advancePack collects user id -> month -> pack length -> per-month amount ->
// batch id, then applies the pack payment.
func (r *Router) advancePack(ctx context.Context, p *pending, text string) (string, bool, error) {
	switch p.step {
	case 0:
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil || id <= 0 {
			return "", false, errors.New("Please enter a valid user ID.")
		}
		p.userID = id
		p.step++
		return "Please enter the starting month (number or name):", false, nil
	case 1:
		month, err := domain.ParseMonth(text)
		if err != nil {
			return "", false, errors.New("Please enter a valid month, e.g. 11 or November.")
		}
		p.monthHint = int(month)
		p.step++
		return "Pack length — 3 or 6 months?", false, nil
	case 2:
		n, err := strconv.Atoi(text)
		if err != nil || (n != 3 && n != 6) {
			return "", false, errors.New("Pack length must be 3 or 6.")
		}
		p.packLen = n
		p.step++
		return "Please enter the amount per month:", false, nil
	case 3:
		paise, err := parseAmountPaise(text)
		if err != nil {
			return "", false, errors.New("Please enter a valid amount.")
		}
		p.amountPaise = paise
		p.step++
		return "Please enter the batch ID:", false, nil
	default:
		err := r.billing.ApplyPack(ctx, p.userID, time.Month(p.monthHint), p.packLen, p.amountPaise, text)
		if err != nil {
			r.log.Error("pack payment failed", zap.Int64("userID", p.userID), zap.Error(err))
			return "Failed to apply the pack payment.", true, nil
		}
		return fmt.Sprintf("Pack payment applied: %d months at %s each.",
			p.packLen, domain.FormatPaise(p.amountPaise)), true, nil
	}
}

// advanceAddUser collects name -> mobile -> batch id, then registers the member.
func (r *Router) advanceAddUser(ctx context.Context, p *pending, text string) (string, bool, error) {
	switch p.step {
	case 0:
		if text == "" {
			return "", false, errors.New("Please enter a valid name.")
		}
		p.name = text
		p.step++
		return "Please enter the mobile number:", false, nil
	case 1:
		if text == "" {
			return "", false, errors.New("Please enter a valid mobile number.")
		}
		p.mobile = text
		p.step++
		return "Please enter the batch ID:", false, nil
	default:
		id, err := r.billing.AddUser(ctx, p.name, p.mobile, text)
		if err != nil {
			r.log.Error("add user failed", zap.String("name", p.name), zap.Error(err))
			return "Failed to add the member.", true, nil
		}
		return fmt.Sprintf("Member added with ID %d. Use /update_payment to set up their schedule.", id), true, nil
	}
}

// handleCallback executes a due-list action button.
func (r *Router) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// Telegram omits the message when it is stale (>48h) or inaccessible.
	if cb.Message == nil {
		_, _ = r.bot.Request(tgbotapi.NewCallback(cb.ID, "This message is too old, run the command again."))
		return
	}
	defer func() { _, _ = r.bot.Request(tgbotapi.NewCallback(cb.ID, "")) }()

	parts := strings.Split(cb.Data, ":")
	if len(parts) != 3 {
		return
	}
	action := parts[0]
	userID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return
	}
	monthNum, err := strconv.Atoi(parts[2])
	if err != nil || monthNum < 1 || monthNum > 12 {
		return
	}
	month := time.Month(monthNum)
	chatID := cb.Message.Chat.ID

	var confirmation string
	switch action {
	case cbPaid:
		err = r.billing.MarkPaid(ctx, userID, month)
		confirmation = fmt.Sprintf("Marked %s as paid for user %d.", month, userID)
	case cbIgnore:
		err = r.billing.MarkIgnored(ctx, userID, month)
		confirmation = fmt.Sprintf("Wrote off %s for user %d.", month, userID)
	case cbFollowUp:
		err = r.billing.MarkFollowUp(ctx, userID, month)
		confirmation = fmt.Sprintf("Follow-up noted for user %d.", userID)
	case cbDeactivate:
		err = r.billing.Deactivate(ctx, userID, month)
		confirmation = fmt.Sprintf("User %d deactivated.", userID)
	default:
		return
	}

	if err != nil {
		r.log.Error("due action failed",
			zap.String("action", action), zap.Int64("userID", userID), zap.Error(err))
		if errors.Is(err, domain.ErrBadTransition) {
			r.sendText(chatID, "That month is already settled.")
			return
		}
		r.sendText(chatID, "Action failed, nothing was changed.")
		return
	}
	r.sendText(chatID, confirmation)
}
