package bot

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/chimeapp/chime/internal/ai"
	"github.com/chimeapp/chime/internal/bot/handlers"
	"github.com/chimeapp/chime/internal/engine"
	"github.com/chimeapp/chime/internal/repository"
)

type Bot struct {
	api      *tgbotapi.BotAPI
	handlers *handlers.Handlers
}

func New(api *tgbotapi.BotAPI, reminders *repository.ReminderRepository, fireState *repository.FireStateRepository, eng *engine.Engine, aiClient *ai.Client, timezone string) (*Bot, error) {
	if api == nil {
		return nil, fmt.Errorf("telegram api is required")
	}
	return &Bot{
		api:      api,
		handlers: handlers.New(api, reminders, fireState, eng, aiClient, timezone),
	}, nil
}

func (b *Bot) Start(ctx context.Context) error {
	log.Printf("Authorized on account %s", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handlers.HandleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message == nil {
		return
	}

	// Handle commands
	if update.Message.IsCommand() {
		b.handlers.HandleCommand(ctx, update.Message)
		return
	}

	// Handle regular messages with AI
	b.handlers.HandleMessage(ctx, update.Message)
}
