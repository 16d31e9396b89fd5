// Package notify holds the notification surface implementations behind
// engine.Notifier. Delivery is fire-and-forget from the engine's point of
// view; failures are reported but never undo a ledger write.
package notify

import (
	"fmt"
	"log"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/chimeapp/chime/internal/engine"
)

// ChatResolver maps a reminder id to its delivery chat. Kept as a narrow
// function type so the notifier does not depend on the repository package.
type ChatResolver func(reminderID string) (int64, bool)

// Telegram delivers reminder notifications as Telegram messages.
type Telegram struct {
	api     *tgbotapi.BotAPI
	resolve ChatResolver

	mu   sync.Mutex
	last map[int32]int // previous message per callback id, deleted before resend
}

func NewTelegram(api *tgbotapi.BotAPI, resolve ChatResolver) *Telegram {
	return &Telegram{
		api:     api,
		resolve: resolve,
		last:    make(map[int32]int),
	}
}

func (t *Telegram) Deliver(id int32, title, message string, p engine.Payload) error {
	chatID, ok := t.resolve(p.ReminderID)
	if !ok {
		return fmt.Errorf("no chat for reminder %s", p.ReminderID)
	}

	// Delete the previous message for this pair to avoid flooding the chat
	// with stale copies of a recurring reminder.
	t.mu.Lock()
	prev, hasPrev := t.last[id]
	t.mu.Unlock()
	if hasPrev {
		if _, err := t.api.Request(tgbotapi.NewDeleteMessage(chatID, prev)); err != nil {
			// The old message might have been deleted by the user.
			log.Printf("Failed to delete old reminder message %d: %v", prev, err)
		}
	}

	text := "⏰ " + title
	if message != "" && message != title {
		text += "\n\n" + message
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Done", "remind_ack:"+p.ReminderID+":"+strconv.FormatInt(p.OffsetMs, 10)),
		),
	)

	sent, err := t.api.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send reminder notification: %w", err)
	}

	t.mu.Lock()
	t.last[id] = sent.MessageID
	t.mu.Unlock()
	return nil
}
