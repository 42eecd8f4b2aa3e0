package bot

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"studko/internal/booking"
	"studko/internal/models"
	"studko/internal/notify"
	"studko/pkg/logger"
)

// Sender is the part of the Telegram API the bot talks to.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type BookingActions interface {
	Confirm(ctx context.Context, actor booking.Actor, id uuid.UUID) (*models.Booking, error)
	Complete(ctx context.Context, actor booking.Actor, id uuid.UUID) (*models.Booking, error)
	Cancel(ctx context.Context, actor booking.Actor, id uuid.UUID) (*models.Booking, error)
	MarkPaid(ctx context.Context, actor booking.Actor, id uuid.UUID) (*models.Booking, error)
	Pending(ctx context.Context) ([]models.Booking, error)
}

type ReviewActions interface {
	ApproveTutor(ctx context.Context, id uuid.UUID) (*models.Tutor, error)
	RejectTutor(ctx context.Context, id uuid.UUID, reason string) (*models.Tutor, error)
	ApproveClaim(ctx context.Context, id uuid.UUID) (*models.SocialClaim, error)
	RejectClaim(ctx context.Context, id uuid.UUID, reason string) (*models.SocialClaim, error)
	PendingTutors(ctx context.Context) ([]models.Tutor, error)
	PendingClaims(ctx context.Context) ([]models.SocialClaim, error)
}

// OperatorBot pushes operator alerts into one Telegram chat and turns the
// inline button presses in that chat into booking and review actions.
type OperatorBot struct {
	api            Sender
	bot            *tgbotapi.BotAPI
	operatorChatID int64
	bookings       BookingActions
	reviews        ReviewActions
	logger         *logger.Logger

	// mu guards stopping so no handler is added to wg once Stop waits on it.
	mu       sync.Mutex
	stopping bool
	wg       sync.WaitGroup
}

func NewOperatorBot(token string, operatorChatID int64, bookings BookingActions, reviews ReviewActions, l *logger.Logger) (*OperatorBot, error) {
	if operatorChatID == 0 {
		return nil, fmt.Errorf("operator chat id is required")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	l.Infow("Authorized on Telegram", "username", api.Self.UserName)

	b := newOperatorBot(api, operatorChatID, bookings, reviews, l)
	b.bot = api
	return b, nil
}

func newOperatorBot(api Sender, operatorChatID int64, bookings BookingActions, reviews ReviewActions, l *logger.Logger) *OperatorBot {
	return &OperatorBot{
		api:            api,
		operatorChatID: operatorChatID,
		bookings:       bookings,
		reviews:        reviews,
		logger:         l,
	}
}

// Start begins receiving updates from Telegram via polling.
func (b *OperatorBot) Start(ctx context.Context) error {
	if b.bot == nil {
		return fmt.Errorf("telegram api is not initialized")
	}

	// Polling does not work while a webhook is set
	b.logger.Infow("Removing any existing webhook")
	if _, err := b.bot.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: false}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	// Configure long polling
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updateConfig.AllowedUpdates = []string{"message", "callback_query"}

	updates := b.bot.GetUpdatesChan(updateConfig)
	b.logger.Infow("Started receiving Telegram updates", "operatorChatID", b.operatorChatID)

	// Process updates in background
	go b.handleUpdates(ctx, updates)
	return nil
}

// Stop ends polling and waits for in-flight updates.
func (b *OperatorBot) Stop() {
	// Refuse new handlers before waiting for the running ones
	b.mu.Lock()
	b.stopping = true
	b.mu.Unlock()

	if b.bot != nil {
		b.bot.StopReceivingUpdates()
	}
	b.wg.Wait()
}

func (b *OperatorBot) handleUpdates(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if !b.handleAsync(ctx, update) {
				b.logger.Infow("Bot is stopping, dropping update", "updateID", update.UpdateID)
				return
			}
		}
	}
}

// handleAsync handles update in its own goroutine. It returns false once Stop
// has been called.
func (b *OperatorBot) handleAsync(ctx context.Context, update tgbotapi.Update) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopping {
		return false
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		// Recover from panics so one bad update does not stop the bot
		defer func() {
			if r := recover(); r != nil {
				b.logger.Errorw("Recovered from panic while processing update", "error", r, "updateID", update.UpdateID)
			}
		}()
		b.handleUpdate(ctx, update)
	}()
	return true
}

func (b *OperatorBot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	}
}

// NotifyOperator sends an alert with its actions as inline buttons.
func (b *OperatorBot) NotifyOperator(_ context.Context, alert notify.OperatorAlert) error {
	msg := tgbotapi.NewMessage(b.operatorChatID, alert.Text)
	if kb, ok := keyboard(alert.Actions); ok {
		msg.ReplyMarkup = kb
	}
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send operator message: %w", err)
	}
	return nil
}

func keyboard(actions []notify.Action) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(actions) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(actions))
	for _, a := range actions {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Data))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row), true
}

func (b *OperatorBot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Errorw("Failed to send message", "error", err, "chatID", chatID)
	}
}
