package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v72"

	"studko/internal/db"
	"studko/internal/models"
	"studko/internal/payment"
	"studko/pkg/logger"
)

type PurchaseStore interface {
	FindPurchase(ctx context.Context, buyerID, noteID uuid.UUID) (*models.NotePurchase, error)
	InsertPurchase(ctx context.Context, p *models.NotePurchase) (bool, error)
	SetPurchaseTransfer(ctx context.Context, purchaseID uuid.UUID, transferID string) error
	GetNote(ctx context.Context, id uuid.UUID) (*models.Note, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

type Payouts interface {
	ChargeForPaymentIntent(ctx context.Context, paymentIntentID string) (string, error)
	Transfer(ctx context.Context, amountCents int64, destination, sourceCharge, idempotencyKey string, metadata map[string]string) (string, error)
	FeePercent() int
}

// PurchaseProcessor records note purchases and pays the seller.
type PurchaseProcessor struct {
	store    PurchaseStore
	payouts  Payouts
	notifier Notifier
	logger   *logger.Logger
}

func NewPurchaseProcessor(store PurchaseStore, payouts Payouts, notifier Notifier, l *logger.Logger) *PurchaseProcessor {
	return &PurchaseProcessor{store: store, payouts: payouts, notifier: notifier, logger: l}
}

func (p *PurchaseProcessor) Process(ctx context.Context, event stripe.Event) (Result, error) {
	if event.Type != "checkout.session.completed" {
		return ResultIgnored, nil
	}

	session, err := decodeSession(event)
	if err != nil {
		return "", err
	}
	if session.Metadata[payment.MetaKind] != payment.KindNotePurchase {
		return ResultIgnored, nil
	}

	// Extract note and buyer from session metadata
	noteID, err := metadataUUID(session, payment.MetaNoteID)
	if err != nil {
		return "", err
	}
	buyerID, err := metadataUUID(session, payment.MetaBuyerID)
	if err != nil {
		return "", err
	}

	// Stripe retries deliveries
	existing, err := p.store.FindPurchase(ctx, buyerID, noteID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return "", fmt.Errorf("failed to check purchase: %w", err)
	}
	if existing != nil {
		p.logger.Infow("Duplicate note purchase event", "purchaseID", existing.ID, "sessionID", session.ID)
		return ResultDuplicate, nil
	}

	note, err := p.store.GetNote(ctx, noteID)
	if errors.Is(err, db.ErrNotFound) {
		return "", errors.Join(ErrBadPayload, fmt.Errorf("note %s does not exist", noteID))
	}
	if err != nil {
		return "", err
	}

	// Record the purchase at the charged price
	price := session.AmountTotal
	if price <= 0 {
		price = note.PriceCents
	}
	purchase := &models.NotePurchase{
		BuyerID:         buyerID,
		NoteID:          noteID,
		PriceCents:      price,
		StripeSessionID: session.ID,
	}
	if session.PaymentIntent != nil {
		purchase.StripePaymentIntentID = session.PaymentIntent.ID
	}

	inserted, err := p.store.InsertPurchase(ctx, purchase)
	if err != nil {
		return "", err
	}
	if !inserted {
		p.logger.Infow("Concurrent duplicate note purchase", "noteID", noteID, "buyerID", buyerID)
		return ResultDuplicate, nil
	}

	p.logger.Infow("Note purchase recorded", "purchaseID", purchase.ID, "noteID", noteID, "buyerID", buyerID, "amount", price)

	p.payout(ctx, note, purchase)
	p.announce(ctx, note, purchase)
	return ResultProcessed, nil
}

// payout transfers the seller share. Failures leave the payout pending for
// manual follow-up and never fail the event.
func (p *PurchaseProcessor) payout(ctx context.Context, note *models.Note, purchase *models.NotePurchase) {
	seller, err := p.store.GetProfile(ctx, note.AuthorID)
	if err != nil {
		p.logger.Warnw("Failed to load seller profile", "error", err, "sellerID", note.AuthorID)
		return
	}
	if seller.StripeConnectAccountID == "" {
		p.logger.Infow("Seller has no payout account, payout pending", "sellerID", seller.UserID, "purchaseID", purchase.ID)
		return
	}

	// Transfer the seller share from the buyer's charge
	amount := payment.SellerShare(purchase.PriceCents, p.payouts.FeePercent())
	if amount <= 0 {
		return
	}

	var sourceCharge string
	if purchase.StripePaymentIntentID != "" {
		sourceCharge, err = p.payouts.ChargeForPaymentIntent(ctx, purchase.StripePaymentIntentID)
		if err != nil {
			p.logger.Warnw("Failed to resolve source charge", "error", err, "paymentIntentID", purchase.StripePaymentIntentID)
		}
	}

	transferID, err := p.payouts.Transfer(ctx, amount, seller.StripeConnectAccountID, sourceCharge,
		"note-purchase-"+purchase.ID.String(),
		map[string]string{
			payment.MetaNoteID:  note.ID.String(),
			payment.MetaBuyerID: purchase.BuyerID.String(),
			"purchase_id":       purchase.ID.String(),
		})
	if err != nil {
		p.logger.Errorw("Seller transfer failed", "error", err, "purchaseID", purchase.ID, "sellerID", seller.UserID)
		return
	}

	if err := p.store.SetPurchaseTransfer(ctx, purchase.ID, transferID); err != nil {
		p.logger.Errorw("Failed to record transfer", "error", err, "purchaseID", purchase.ID, "transferID", transferID)
		return
	}
	purchase.TransferID = transferID
	p.logger.Infow("Seller paid", "purchaseID", purchase.ID, "transferID", transferID, "amount", amount)
}

func (p *PurchaseProcessor) announce(ctx context.Context, note *models.Note, purchase *models.NotePurchase) {
	euros := float64(purchase.PriceCents) / 100
	p.notifier.User(ctx, note.AuthorID, models.NotificationNoteSold,
		"Predal si poznámky",
		fmt.Sprintf("Niekto si kúpil tvoje poznámky „%s“ za %.2f €.", note.Title, euros), true)
	p.notifier.User(ctx, purchase.BuyerID, models.NotificationNotePurchased,
		"Nákup poznámok",
		fmt.Sprintf("Poznámky „%s“ sú teraz dostupné v tvojej knižnici.", note.Title), true)
	p.notifier.Discord(ctx, fmt.Sprintf("🛒 Predaj poznámok: %s (%.2f €)", note.Title, euros))
}
