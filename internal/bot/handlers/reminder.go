package handlers

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/chimeapp/chime/internal/engine"
	"github.com/chimeapp/chime/internal/models"
	"github.com/chimeapp/chime/internal/recurrence"
)

func (h *Handlers) handleRemind(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		h.sendMessage(msg.Chat.ID, "Usage: /remind <time> <text>\nExample: /remind 15:30 stand-up meeting")
		return
	}

	anchor, text, err := h.parseWhen(args)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "Could not read the time, use HH:MM or YYYY-MM-DD HH:MM")
		return
	}
	if text == "" {
		h.sendMessage(msg.Chat.ID, "The reminder needs a text\nExample: /remind 15:30 stand-up meeting")
		return
	}

	reminder := &models.Reminder{
		ChatID:     msg.Chat.ID,
		Title:      text,
		Message:    text,
		AnchorAtMs: anchor.UnixMilli(),
		TimeZone:   h.timezone,
		Repeat:     models.RepeatNone,
		OffsetsMs:  []int64{0},
		Enabled:    true,
	}
	h.createAndSchedule(ctx, msg.Chat.ID, reminder)
}

func (h *Handlers) createAndSchedule(ctx context.Context, chatID int64, reminder *models.Reminder) {
	if err := h.reminders.Create(ctx, reminder); err != nil {
		log.Printf("Failed to create reminder: %v", err)
		h.sendMessage(chatID, "Failed to save the reminder, please try again")
		return
	}

	if err := h.engine.Schedule(ctx, reminder); err != nil {
		log.Printf("Failed to schedule reminder %s: %v", reminder.ID, err)
		if engine.IsRegistrationError(err) {
			h.sendMessage(chatID, "⚠️ Saved, but registering the wake-up failed — reminders may be unreliable until the next restart")
			return
		}
	}

	loc, _ := time.LoadLocation(reminder.TimeZone)
	h.sendMessage(chatID, fmt.Sprintf("⏰ Reminder set\nWhen: %s (%s)\nText: %s",
		time.UnixMilli(reminder.AnchorAtMs).In(loc).Format("2006-01-02 15:04"),
		recurrence.Describe(reminder.Repeat), reminder.Title))
}

func (h *Handlers) handleReminderList(ctx context.Context, msg *tgbotapi.Message) {
	reminders, err := h.reminders.GetByChatID(ctx, msg.Chat.ID)
	if err != nil {
		log.Printf("Failed to list reminders: %v", err)
		h.sendMessage(msg.Chat.ID, "Failed to load reminders, please try again")
		return
	}

	if len(reminders) == 0 {
		h.sendMessage(msg.Chat.ID, "⏰ No reminders yet")
		return
	}

	now := time.Now().UnixMilli()
	var sb strings.Builder
	sb.WriteString("⏰ Reminders\n\n")
	for i, r := range reminders {
		status := "✅"
		if !r.Enabled {
			status = "⏸"
		}
		sb.WriteString(fmt.Sprintf("%s %d. %s — %s\n", status, i+1, r.Title, recurrence.Describe(r.Repeat)))

		next, err := recurrence.Preview(r.AnchorAtMs, r.TimeZone, r.Repeat, now, 1)
		switch {
		case err != nil:
			sb.WriteString("   ⚠️ unreadable schedule\n")
		case len(next) == 0:
			sb.WriteString("   (already happened)\n")
		default:
			sb.WriteString("   📅 next: " + next[0].Format("2006-01-02 15:04") + "\n")
		}
		for _, offset := range r.Offsets() {
			if offset != 0 {
				sb.WriteString("   🔔 " + recurrence.DescribeOffset(offset) + "\n")
			}
		}
	}

	h.sendMessage(msg.Chat.ID, sb.String())
}

func (h *Handlers) handlePause(ctx context.Context, msg *tgbotapi.Message) {
	r, ok := h.pickByIndex(ctx, msg)
	if !ok {
		return
	}
	if err := h.reminders.SetEnabled(ctx, r.ID, false); err != nil {
		log.Printf("Failed to pause reminder %s: %v", r.ID, err)
		h.sendMessage(msg.Chat.ID, "Failed to pause, please try again")
		return
	}
	h.engine.CancelReminder(ctx, r)
	h.sendMessage(msg.Chat.ID, "⏸ Paused: "+r.Title)
}

func (h *Handlers) handleResume(ctx context.Context, msg *tgbotapi.Message) {
	r, ok := h.pickByIndex(ctx, msg)
	if !ok {
		return
	}
	if err := h.reminders.SetEnabled(ctx, r.ID, true); err != nil {
		log.Printf("Failed to resume reminder %s: %v", r.ID, err)
		h.sendMessage(msg.Chat.ID, "Failed to resume, please try again")
		return
	}
	r.Enabled = true
	if err := h.engine.Reschedule(ctx, r); err != nil {
		log.Printf("Failed to reschedule reminder %s: %v", r.ID, err)
	}
	h.sendMessage(msg.Chat.ID, "✅ Resumed: "+r.Title)
}

func (h *Handlers) handleDelete(ctx context.Context, msg *tgbotapi.Message) {
	r, ok := h.pickByIndex(ctx, msg)
	if !ok {
		return
	}

	purge := strings.Contains(msg.CommandArguments(), "purge")
	if purge {
		// Hard destroy: the only case where the fire-state ledger rows go.
		if err := h.reminders.HardDelete(ctx, r.ID); err != nil {
			log.Printf("Failed to delete reminder %s: %v", r.ID, err)
			h.sendMessage(msg.Chat.ID, "Failed to delete, please try again")
			return
		}
		if err := h.fireState.DeleteForReminder(ctx, r.ID); err != nil {
			log.Printf("Failed to clear fire state for reminder %s: %v", r.ID, err)
		}
	} else {
		if err := h.reminders.SoftDelete(ctx, r.ID); err != nil {
			log.Printf("Failed to delete reminder %s: %v", r.ID, err)
			h.sendMessage(msg.Chat.ID, "Failed to delete, please try again")
			return
		}
	}
	h.engine.CancelReminder(ctx, r)
	h.sendMessage(msg.Chat.ID, "🗑 Deleted: "+r.Title)
}

// pickByIndex resolves "/pause 2" style arguments against the chat's list
// order, the same numbering /reminders shows.
func (h *Handlers) pickByIndex(ctx context.Context, msg *tgbotapi.Message) (*models.Reminder, bool) {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) == 0 {
		h.sendMessage(msg.Chat.ID, "Give the reminder number from /reminders")
		return nil, false
	}
	idx, err := strconv.Atoi(fields[0])
	if err != nil || idx < 1 {
		h.sendMessage(msg.Chat.ID, "Give the reminder number from /reminders")
		return nil, false
	}

	reminders, err := h.reminders.GetByChatID(ctx, msg.Chat.ID)
	if err != nil {
		log.Printf("Failed to list reminders: %v", err)
		h.sendMessage(msg.Chat.ID, "Failed to load reminders, please try again")
		return nil, false
	}
	if idx > len(reminders) {
		h.sendMessage(msg.Chat.ID, fmt.Sprintf("There is no reminder %d", idx))
		return nil, false
	}
	return reminders[idx-1], true
}

// parseWhen reads "<HH:MM> text" or "<YYYY-MM-DD HH:MM> text" in the
// configured zone. A bare HH:MM already passed today rolls to tomorrow.
func (h *Handlers) parseWhen(args string) (time.Time, string, error) {
	loc, err := time.LoadLocation(h.timezone)
	if err != nil {
		return time.Time{}, "", err
	}
	now := time.Now().In(loc)

	parts := strings.SplitN(args, " ", 3)
	if len(parts) >= 2 {
		if t, err := time.ParseInLocation("2006-01-02 15:04", parts[0]+" "+parts[1], loc); err == nil {
			rest := ""
			if len(parts) == 3 {
				rest = parts[2]
			}
			return t, strings.TrimSpace(rest), nil
		}
	}

	parts = strings.SplitN(args, " ", 2)
	t, err := time.Parse("15:04", parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	result := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	if !result.After(now) {
		result = result.AddDate(0, 0, 1)
	}
	rest := ""
	if len(parts) == 2 {
		rest = parts[1]
	}
	return result, strings.TrimSpace(rest), nil
}
