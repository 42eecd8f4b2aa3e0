package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"studko/config"
	"studko/internal/admin"
	"studko/internal/auth"
	"studko/internal/booking"
	"studko/internal/bot"
	"studko/internal/chat"
	"studko/internal/db"
	"studko/internal/gpt"
	"studko/internal/notes"
	"studko/internal/notify"
	"studko/internal/payment"
	"studko/internal/ratelimit"
	"studko/internal/server"
	"studko/internal/storage"
	"studko/internal/webhook"
	"studko/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatalw("Failed to load config", "error", err)
	}

	// Initialize logger
	l := logger.NewWithLevel(cfg.LogLevel)
	defer func() { _ = l.Sync() }()
	l.Infow("Starting Študko API...")

	// Validate critical configuration
	if err := cfg.Validate(); err != nil {
		l.Fatalw("Invalid configuration", "error", err)
	}
	loc, _ := time.LoadLocation(cfg.Calendar.Timezone)

	// Initialize database connection with retry
	var database *db.PostgresDB
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		database, err = db.NewPostgresDB(cfg.DB)
		if err == nil {
			break
		}
		l.Errorw("Failed to connect to database, retrying...", "error", err, "attempt", i+1)
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	if database == nil {
		l.Fatalw("Failed to connect to database after multiple attempts", "error", err)
	}
	defer database.Close()

	// Cancel on termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Apply schema migrations
	applied, err := database.Migrate(ctx)
	if err != nil {
		l.Fatalw("Failed to run migrations", "error", err)
	}
	if len(applied) > 0 {
		l.Infow("Applied migrations", "files", applied)
	}

	// Initialize Redis for the free AI quota
	var windows ratelimit.WindowStore
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			l.Warnw("Redis is unreachable, AI quota checks will fail open", "error", err)
		}
		windows = ratelimit.NewRedisStore(client)
	} else {
		l.Warnw("REDIS_ADDR is not set, free AI usage is unlimited")
	}
	aiQuota := ratelimit.NewDailyQuota(windows, "ai", cfg.AI.FreeDailyMessages)

	// Initialize object storage for note files
	var presigner storage.Presigner
	if cfg.Storage.Endpoint != "" {
		s3, err := storage.NewS3Storage(cfg.Storage)
		if err != nil {
			l.Fatalw("Failed to create object storage client", "error", err)
		}
		presigner = s3
	} else {
		l.Warnw("Object storage is not configured, note downloads are disabled")
	}

	// Initialize Stripe client
	stripeClient := payment.NewStripeClient(cfg.Stripe, cfg.Server.PublicSiteURL)
	// Initialize GPT client
	gptClient := gpt.NewClient(cfg.GPT.APIKey).WithModel(cfg.GPT.Model)

	// Create notifier and domain services
	notifier := notify.NewNotifier(database, notify.NewMailer(cfg.Email), notify.NewDiscord(cfg.Discord.WebhookURL), l.Named("notify"))

	bookingService := booking.NewService(database, stripeClient, notifier, loc, l.Named("booking"))
	adminService := admin.NewService(database, notifier, l.Named("admin"))
	notesService := notes.NewService(database, stripeClient, presigner, l.Named("notes"))
	chatService := chat.NewService(database, gptClient, aiQuota, cfg.AI.HistoryLimit, l.Named("chat"))

	// Create and start the operator bot
	var operatorBot *bot.OperatorBot
	if cfg.Telegram.Token != "" {
		operatorBot, err = bot.NewOperatorBot(cfg.Telegram.Token, cfg.Telegram.OperatorChatID, bookingService, adminService, l.Named("bot"))
		if err != nil {
			l.Fatalw("Failed to create Telegram bot", "error", err)
		}
		notifier.SetOperatorChannel(operatorBot)

		if err := operatorBot.Start(ctx); err != nil {
			l.Fatalw("Failed to start Telegram bot", "error", err)
		}
		l.Infow("Telegram operator bot started")
	} else {
		l.Warnw("TELEGRAM_TOKEN is not set, operator alerts are disabled")
	}

	// Create HTTP server
	httpServer := server.NewServer(cfg.Server.Port, server.Dependencies{
		Verifier: auth.NewVerifier(cfg.Supabase.JWTSecret, cfg.Supabase.URL),
		Profiles: database,
		Billing:  stripeClient,
		Notes:    notesService,
		Bookings: bookingService,
		Reviews:  adminService,
		Chat:     chatService,
		Inbox:    notifier,
		Quota:    aiQuota,
		SubscriptionWebhook: webhook.NewHandler(stripeClient, stripeClient.GetWebhookSecret(),
			webhook.NewSubscriptionProcessor(database, notifier, l.Named("webhook")), l.Named("webhook")),
		PurchaseWebhook: webhook.NewHandler(stripeClient, stripeClient.GetPurchaseWebhookSecret(),
			webhook.NewPurchaseProcessor(database, stripeClient, notifier, l.Named("webhook")), l.Named("webhook")),
	}, l.Named("http"))

	// Start HTTP server
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatalw("Failed to start HTTP server", "error", err)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()
	l.Infow("Shutting down...")

	// Create context for graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Stop HTTP server first
	if err := httpServer.Stop(shutdownCtx); err != nil {
		l.Errorw("Error during HTTP server shutdown", "error", err)
	}

	// Then stop bot
	if operatorBot != nil {
		operatorBot.Stop()
	}

	l.Infow("Študko API stopped")
}
