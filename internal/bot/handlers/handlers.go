package handlers

import (
	"context"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/chimeapp/chime/internal/ai"
	"github.com/chimeapp/chime/internal/engine"
	"github.com/chimeapp/chime/internal/repository"
)

type Handlers struct {
	api       *tgbotapi.BotAPI
	reminders *repository.ReminderRepository
	fireState *repository.FireStateRepository
	engine    *engine.Engine
	ai        *ai.Client
	timezone  string
}

func New(api *tgbotapi.BotAPI, reminders *repository.ReminderRepository, fireState *repository.FireStateRepository, eng *engine.Engine, aiClient *ai.Client, timezone string) *Handlers {
	return &Handlers{
		api:       api,
		reminders: reminders,
		fireState: fireState,
		engine:    eng,
		ai:        aiClient,
		timezone:  timezone,
	}
}

func (h *Handlers) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		h.handleHelp(ctx, msg)
	case "remind":
		h.handleRemind(ctx, msg)
	case "reminders", "list":
		h.handleReminderList(ctx, msg)
	case "pause":
		h.handlePause(ctx, msg)
	case "resume":
		h.handleResume(ctx, msg)
	case "delete":
		h.handleDelete(ctx, msg)
	default:
		h.sendMessage(msg.Chat.ID, "Unknown command, see /help")
	}
}

func (h *Handlers) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if h.ai == nil {
		h.sendMessage(msg.Chat.ID, "Natural language input is disabled, use /remind instead")
		return
	}
	h.handleNaturalReminder(ctx, msg)
}

// HandleCallback acknowledges the inline "Done" button on a delivered
// notification.
func (h *Handlers) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	answer := tgbotapi.NewCallback(callback.ID, "")
	if _, err := h.api.Request(answer); err != nil {
		log.Printf("Failed to answer callback: %v", err)
	}

	// Callback data: "remind_ack:<reminderID>:<offsetMs>"
	parts := strings.Split(callback.Data, ":")
	if len(parts) < 2 || parts[0] != "remind_ack" {
		return
	}

	if callback.Message != nil {
		edit := tgbotapi.NewEditMessageText(callback.Message.Chat.ID, callback.Message.MessageID,
			callback.Message.Text+"\n\n✅ Acknowledged")
		if _, err := h.api.Send(edit); err != nil {
			log.Printf("Failed to edit acknowledged message: %v", err)
		}
	}
}

func (h *Handlers) handleHelp(ctx context.Context, msg *tgbotapi.Message) {
	h.sendMessage(msg.Chat.ID, `⏰ Chime keeps your reminders.

/remind <YYYY-MM-DD HH:MM> <text> — one-time reminder
/remind <HH:MM> <text> — today (or tomorrow if passed)
/reminders — list reminders with their next occurrences
/pause <n> — stop a reminder without deleting it
/resume <n> — re-enable a paused reminder
/delete <n> — delete a reminder

Or just write naturally: "remind me every Monday at 9 to water the plants".`)
}

func (h *Handlers) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.api.Send(msg); err != nil {
		log.Printf("Failed to send message: %v", err)
	}
}
