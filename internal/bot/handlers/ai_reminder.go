package handlers

import (
	"context"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/chimeapp/chime/internal/models"
	"github.com/chimeapp/chime/internal/recurrence"
)

// handleNaturalReminder turns a free-text message into a reminder via the
// AI parser.
func (h *Handlers) handleNaturalReminder(ctx context.Context, msg *tgbotapi.Message) {
	parsed, err := h.ai.ParseReminder(ctx, h.timezone, msg.Text)
	if err != nil {
		log.Printf("AI parse failed: %v", err)
		h.sendMessage(msg.Chat.ID, "Sorry, I could not understand that — try /remind")
		return
	}

	if parsed.NeedMoreInfo {
		followUp := parsed.FollowUp
		if followUp == "" {
			followUp = "What should I remind you about, and when?"
		}
		h.sendMessage(msg.Chat.ID, followUp)
		return
	}

	loc, err := time.LoadLocation(h.timezone)
	if err != nil {
		log.Printf("Invalid configured timezone %q: %v", h.timezone, err)
		h.sendMessage(msg.Chat.ID, "Server time zone is misconfigured")
		return
	}
	anchor, err := time.ParseInLocation("2006-01-02 15:04", parsed.LocalTime, loc)
	if err != nil {
		log.Printf("AI returned unparseable time %q: %v", parsed.LocalTime, err)
		h.sendMessage(msg.Chat.ID, "I could not pin down the time — try /remind with an explicit time")
		return
	}

	rule, err := recurrence.FromRRule(parsed.RRule)
	if err != nil {
		log.Printf("AI returned unsupported RRULE %q: %v", parsed.RRule, err)
		h.sendMessage(msg.Chat.ID, "That repeat pattern is not supported — I can do daily, weekly, monthly or yearly")
		return
	}

	offsets := []int64{0}
	if len(parsed.LeadMinutes) > 0 {
		offsets = offsets[:0]
		for _, m := range parsed.LeadMinutes {
			if m >= 0 {
				offsets = append(offsets, m*60_000)
			}
		}
		if len(offsets) == 0 {
			offsets = []int64{0}
		}
	}

	title := parsed.Title
	message := parsed.Message
	if message == "" {
		message = title
	}

	reminder := &models.Reminder{
		ChatID:     msg.Chat.ID,
		Title:      title,
		Message:    message,
		AnchorAtMs: anchor.UnixMilli(),
		TimeZone:   h.timezone,
		Repeat:     rule,
		OffsetsMs:  offsets,
		Enabled:    true,
	}
	h.createAndSchedule(ctx, msg.Chat.ID, reminder)
}
