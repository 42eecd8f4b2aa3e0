package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v72"

	"studko/internal/db"
	"studko/internal/models"
	"studko/internal/notify"
	"studko/internal/payment"
	"studko/pkg/logger"
)

type SubscriptionStore interface {
	ActivateSubscription(ctx context.Context, userID uuid.UUID, customerID, status string) error
	UpdateSubscriptionByCustomer(ctx context.Context, customerID, status string) (*models.Profile, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	SetBookingSession(ctx context.Context, id uuid.UUID, sessionID string) error
}

// SubscriptionProcessor handles the main Stripe endpoint: Pro subscriptions
// and booking checkouts.
type SubscriptionProcessor struct {
	store    SubscriptionStore
	notifier Notifier
	logger   *logger.Logger
}

func NewSubscriptionProcessor(store SubscriptionStore, notifier Notifier, l *logger.Logger) *SubscriptionProcessor {
	return &SubscriptionProcessor{store: store, notifier: notifier, logger: l}
}

func (p *SubscriptionProcessor) Process(ctx context.Context, event stripe.Event) (Result, error) {
	switch event.Type {
	case "checkout.session.completed":
		session, err := decodeSession(event)
		if err != nil {
			return "", err
		}
		// Booking payments and subscriptions share this endpoint
		switch {
		case session.Metadata[payment.MetaKind] == payment.KindBooking:
			return p.bookingPaid(ctx, session)
		case session.Mode == stripe.CheckoutSessionModeSubscription:
			return p.subscriptionStarted(ctx, session)
		}
		return ResultIgnored, nil

	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return "", errors.Join(ErrBadPayload, err)
		}
		// A deleted subscription is canceled whatever its last status
		status := string(sub.Status)
		if event.Type == "customer.subscription.deleted" {
			status = models.SubscriptionCanceled
		}
		return p.subscriptionChanged(ctx, customerID(sub.Customer), status)
	}

	return ResultIgnored, nil
}

func (p *SubscriptionProcessor) subscriptionStarted(ctx context.Context, session *stripe.CheckoutSession) (Result, error) {
	if session.ClientReferenceID == "" {
		return "", errors.Join(ErrBadPayload, errors.New("missing client reference id"))
	}
	// The checkout carries the user ID as client reference
	userID, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		return "", errors.Join(ErrBadPayload, fmt.Errorf("invalid client reference id %q", session.ClientReferenceID))
	}

	err = p.store.ActivateSubscription(ctx, userID, customerID(session.Customer), models.SubscriptionActive)
	if errors.Is(err, db.ErrNotFound) {
		p.logger.Warnw("Subscription checkout for unknown profile", "userID", userID, "sessionID", session.ID)
		return ResultIgnored, nil
	}
	if err != nil {
		return "", err
	}

	p.logger.Infow("Pro subscription activated", "userID", userID, "customerID", customerID(session.Customer))
	p.notifier.User(ctx, userID, models.NotificationSubscriptionSet,
		"Študko Pro je aktívne", "Ďakujeme! Tvoje predplatné Študko Pro je aktívne.", true)
	return ResultProcessed, nil
}

func (p *SubscriptionProcessor) subscriptionChanged(ctx context.Context, customer, status string) (Result, error) {
	if customer == "" {
		return "", errors.Join(ErrBadPayload, errors.New("subscription without customer"))
	}

	profile, err := p.store.UpdateSubscriptionByCustomer(ctx, customer, status)
	if errors.Is(err, db.ErrNotFound) {
		p.logger.Warnw("Subscription event for unknown customer", "customerID", customer, "status", status)
		return ResultIgnored, nil
	}
	if err != nil {
		return "", err
	}

	p.logger.Infow("Subscription status updated", "userID", profile.UserID, "status", status, "isPro", profile.IsPro)
	if !profile.IsPro {
		p.notifier.User(ctx, profile.UserID, models.NotificationSubscriptionSet,
			"Študko Pro skončilo", "Tvoje predplatné už nie je aktívne (stav: "+status+").", false)
	}
	return ResultProcessed, nil
}

// bookingPaid records the checkout session and asks the operator to verify
// the payment. The paid flag itself is only set by the operator.
func (p *SubscriptionProcessor) bookingPaid(ctx context.Context, session *stripe.CheckoutSession) (Result, error) {
	bookingID, err := metadataUUID(session, payment.MetaBookingID)
	if err != nil {
		return "", err
	}

	err = p.store.SetBookingSession(ctx, bookingID, session.ID)
	if errors.Is(err, db.ErrNotFound) {
		p.logger.Warnw("Booking checkout for unknown booking", "bookingID", bookingID, "sessionID", session.ID)
		return ResultIgnored, nil
	}
	if err != nil {
		return "", err
	}

	// Ask the operator to verify the payment
	text := fmt.Sprintf("💳 Platba za doučovanie prijatá\nRezervácia: %s\nSession: %s\nSuma: %.2f €",
		bookingID, session.ID, float64(session.AmountTotal)/100)
	if b, err := p.store.GetBooking(ctx, bookingID); err == nil {
		text += "\nTermín: " + b.StartTime.Format("02.01.2006 15:04")
	}
	p.notifier.Operator(ctx, notify.OperatorAlert{
		Text:    text,
		Actions: []notify.Action{{Label: "✅ Označiť ako zaplatené", Data: notify.CallbackData("booking", "mark-paid", bookingID)}},
	})
	p.logger.Infow("Booking checkout recorded", "bookingID", bookingID, "sessionID", session.ID)
	return ResultProcessed, nil
}
