package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/chimeapp/chime/internal/ai"
	"github.com/chimeapp/chime/internal/alarm"
	"github.com/chimeapp/chime/internal/bot"
	"github.com/chimeapp/chime/internal/config"
	"github.com/chimeapp/chime/internal/database"
	"github.com/chimeapp/chime/internal/engine"
	"github.com/chimeapp/chime/internal/notify"
	"github.com/chimeapp/chime/internal/repository"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate required config
	if cfg.DatabaseURI == "" {
		log.Fatal("DATABASE_URI is required")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		log.Fatalf("Invalid TIMEZONE %q: %v", cfg.Timezone, err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	db, err := database.New(ctx, cfg.DatabaseURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	// Run migrations
	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	reminderRepo := repository.NewReminderRepository(db)
	fireStateRepo := repository.NewFireStateRepository(db)

	// Telegram API is optional: without a token, deliveries go to the log
	var tgAPI *tgbotapi.BotAPI
	if cfg.TelegramToken != "" {
		tgAPI, err = tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			log.Fatalf("Failed to create Telegram API: %v", err)
		}
	}

	var notifier engine.Notifier = notify.Log{}
	if tgAPI != nil {
		notifier = notify.NewTelegram(tgAPI, func(reminderID string) (int64, bool) {
			r, err := reminderRepo.GetByID(ctx, reminderID)
			if err != nil {
				return 0, false
			}
			return r.ChatID, true
		})
	}

	// Wire the scheduling core: timer backend <-> engine
	timers := alarm.New()
	defer timers.Stop()
	eng := engine.New(reminderRepo, fireStateRepo, timers, notifier)
	timers.SetHandler(eng.OnTriggerFired)

	// Recover state lost with the previous process: fire what was missed,
	// re-register everything
	if err := eng.RestoreAll(ctx, time.Now().UnixMilli()); err != nil {
		log.Fatalf("Boot restore failed: %v", err)
	}

	// Initialize AI client (optional)
	var aiClient *ai.Client
	if cfg.AIAPIKey != "" {
		aiClient = ai.New(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel)
		log.Printf("AI client initialized (model: %s)", cfg.AIModel)
	} else {
		log.Println("AI client not configured, natural language input disabled")
	}

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	if tgAPI == nil {
		log.Println("No TELEGRAM_TOKEN, running headless")
		<-ctx.Done()
		return
	}

	b, err := bot.New(tgAPI, reminderRepo, fireStateRepo, eng, aiClient, cfg.Timezone)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}
	log.Println("Starting bot...")
	if err := b.Start(ctx); err != nil && err != context.Canceled {
		log.Fatalf("Bot error: %v", err)
	}
}
