package telegram

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessageLen is the transport's practical message size; longer output is
// split at line boundaries.
const maxMessageLen = 4000

const (
	startText = "Hello! Commands:\n" +
		"/unpaid — list members with due payments\n" +
		"/paid — list members paid up for this month\n" +
		"/update_payment — set up a payment schedule\n" +
		"/pack — apply a 3 or 6 month pack payment\n" +
		"/add_user — register a new member\n" +
		"/attendance [YYYY-MM-DD] — Zoom attendance report\n" +
		"/cancel — abort the current input flow"
	unauthorizedText = "You are not authorized to use this bot."
)

// Callback actions on due-list entries.
const (
	cbPaid       = "paid"
	cbIgnore     = "ignore"
	cbFollowUp   = "followup"
	cbDeactivate = "deactivate"
)

func dueActionsKeyboard(userID int64, month time.Month) tgbotapi.InlineKeyboardMarkup {
	data := func(action string) string {
		return fmt.Sprintf("%s:%d:%d", action, userID, int(month))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Paid", data(cbPaid)),
			tgbotapi.NewInlineKeyboardButtonData("🚫 Ignore", data(cbIgnore)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📞 Followed up", data(cbFollowUp)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Deactivate", data(cbDeactivate)),
		),
	)
}

// splitMessage breaks text into chunks of at most limit bytes, cutting at
// newlines where possible so entries stay intact.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n')
		if cut <= 0 {
			// Hard cut: back up so a multi-byte rune is never torn in two.
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}
		chunks = append(chunks, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
