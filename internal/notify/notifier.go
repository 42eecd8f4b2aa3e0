package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"studko/internal/models"
	"studko/pkg/logger"
)

type Store interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	InsertNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id uuid.UUID) error
}

// Action is an operator button. Data is routed back by the operator channel.
type Action struct {
	Label string
	Data  string
}

type OperatorAlert struct {
	Text    string
	Actions []Action
}

type OperatorChannel interface {
	NotifyOperator(ctx context.Context, alert OperatorAlert) error
}

// Notifier delivers side effects. Every method is best effort: failures are
// logged and never returned to the caller.
type Notifier struct {
	store   Store
	mailer  Mailer
	discord *Discord
	logger  *logger.Logger

	mu       sync.RWMutex
	operator OperatorChannel
}

func NewNotifier(store Store, mailer Mailer, discord *Discord, l *logger.Logger) *Notifier {
	if mailer == nil {
		mailer = NopMailer{}
	}
	return &Notifier{store: store, mailer: mailer, discord: discord, logger: l}
}

func (n *Notifier) SetOperatorChannel(ch OperatorChannel) {
	n.mu.Lock()
	n.operator = ch
	n.mu.Unlock()
}

// User inserts an in-app notification and, when withEmail is set, emails the
// same text to the user's profile address.
func (n *Notifier) User(ctx context.Context, userID uuid.UUID, kind, title, body string, withEmail bool) {
	if n == nil {
		return
	}
	note := &models.Notification{UserID: userID, Kind: kind, Title: title, Body: body}
	if err := n.store.InsertNotification(ctx, note); err != nil {
		n.logger.Warnw("Failed to insert notification", "error", err, "userID", userID, "kind", kind)
	}
	if !withEmail {
		return
	}

	profile, err := n.store.GetProfile(ctx, userID)
	if err != nil {
		n.logger.Warnw("Failed to load profile for email", "error", err, "userID", userID)
		return
	}
	if profile.Email == "" {
		return
	}
	if err := n.mailer.Send(ctx, Email{To: profile.Email, Subject: title, Text: body}); err != nil {
		n.logger.Warnw("Failed to send email", "error", err, "userID", userID, "kind", kind)
	}
}

func (n *Notifier) Discord(ctx context.Context, content string) {
	if n == nil || !n.discord.Enabled() {
		return
	}
	if err := n.discord.Post(ctx, content); err != nil {
		n.logger.Warnw("Failed to post to Discord", "error", err)
	}
}

func (n *Notifier) Operator(ctx context.Context, alert OperatorAlert) {
	if n == nil {
		return
	}
	n.mu.RLock()
	ch := n.operator
	n.mu.RUnlock()
	if ch == nil {
		return
	}
	if err := ch.NotifyOperator(ctx, alert); err != nil {
		n.logger.Warnw("Failed to notify operator", "error", err)
	}
}

func (n *Notifier) Inbox(ctx context.Context, userID uuid.UUID) ([]models.Notification, error) {
	return n.store.ListNotifications(ctx, userID, 50)
}

func (n *Notifier) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return n.store.MarkNotificationRead(ctx, userID, id)
}

// CallbackData encodes an operator button as <entity>:<action>:<uuid>.
func CallbackData(entity, action string, id uuid.UUID) string {
	return entity + ":" + action + ":" + id.String()
}

// ParseCallbackData is the inverse of CallbackData.
func ParseCallbackData(data string) (entity, action string, id uuid.UUID, err error) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", "", uuid.Nil, fmt.Errorf("malformed callback data %q", data)
	}
	id, err = uuid.Parse(parts[2])
	if err != nil {
		return "", "", uuid.Nil, fmt.Errorf("malformed callback id: %w", err)
	}
	return parts[0], parts[1], id, nil
}
