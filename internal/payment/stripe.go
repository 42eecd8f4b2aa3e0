package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/account"
	"github.com/stripe/stripe-go/v72/accountlink"
	"github.com/stripe/stripe-go/v72/checkout/session"
	"github.com/stripe/stripe-go/v72/paymentintent"
	"github.com/stripe/stripe-go/v72/transfer"
	"github.com/stripe/stripe-go/v72/webhook"

	"studko/config"
	"studko/internal/models"
)

// Checkout metadata keys and the kinds they route to.
const (
	MetaKind      = "kind"
	MetaNoteID    = "note_id"
	MetaBuyerID   = "buyer_id"
	MetaBookingID = "booking_id"
	MetaUserID    = "user_id"

	KindNotePurchase = "note_purchase"
	KindBooking      = "booking"
	KindSubscription = "subscription"
)

type StripeClient struct {
	secretKey             string
	webhookSecret         string
	purchaseWebhookSecret string
	proPriceID            string
	currency              string
	feePercent            int
	siteURL               string
}

func NewStripeClient(cfg config.StripeConfig, siteURL string) *StripeClient {
	// Set the secret key for backend operations
	stripe.Key = cfg.SecretKey

	return &StripeClient{
		secretKey:             cfg.SecretKey,
		webhookSecret:         cfg.WebhookSecret,
		purchaseWebhookSecret: cfg.PurchaseWebhookSecret,
		proPriceID:            cfg.ProPriceID,
		currency:              cfg.Currency,
		feePercent:            cfg.PlatformFeePercent,
		siteURL:               siteURL,
	}
}

func (s *StripeClient) GetWebhookSecret() string {
	return s.webhookSecret
}

func (s *StripeClient) GetPurchaseWebhookSecret() string {
	if s.purchaseWebhookSecret == "" {
		return s.webhookSecret
	}
	return s.purchaseWebhookSecret
}

func (s *StripeClient) FeePercent() int {
	return s.feePercent
}

func (s *StripeClient) ensureKey() {
	if stripe.Key != s.secretKey {
		stripe.Key = s.secretKey
	}
}

// CreateSubscriptionCheckout starts the Pro subscription checkout.
// The user id travels as the client reference.
func (s *StripeClient) CreateSubscriptionCheckout(ctx context.Context, profile *models.Profile) (string, string, error) {
	s.ensureKey()
	if s.proPriceID == "" {
		return "", "", fmt.Errorf("pro price is not configured")
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.proPriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(s.siteURL + "/pro?checkout=success"),
		CancelURL:         stripe.String(s.siteURL + "/pro?checkout=cancel"),
		ClientReferenceID: stripe.String(profile.UserID.String()),
	}
	s.applyCustomer(params, profile)
	params.Context = ctx
	params.AddMetadata(MetaKind, KindSubscription)
	params.AddMetadata(MetaUserID, profile.UserID.String())

	sess, err := session.New(params)
	if err != nil {
		return "", "", fmt.Errorf("failed to create subscription checkout: %w", err)
	}
	return sess.ID, sess.URL, nil
}

// CreateNoteCheckout starts a one-off payment for a note.
func (s *StripeClient) CreateNoteCheckout(ctx context.Context, note *models.Note, buyer *models.Profile) (string, string, error) {
	s.ensureKey()

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			s.inlineItem(note.Title, note.PriceCents),
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(fmt.Sprintf("%s/notes/%s?purchase=success", s.siteURL, note.ID)),
		CancelURL:         stripe.String(fmt.Sprintf("%s/notes/%s?purchase=cancel", s.siteURL, note.ID)),
		ClientReferenceID: stripe.String(buyer.UserID.String()),
	}
	s.applyCustomer(params, buyer)
	params.Context = ctx
	params.AddMetadata(MetaKind, KindNotePurchase)
	params.AddMetadata(MetaNoteID, note.ID.String())
	params.AddMetadata(MetaBuyerID, buyer.UserID.String())

	sess, err := session.New(params)
	if err != nil {
		return "", "", fmt.Errorf("failed to create note checkout: %w", err)
	}
	return sess.ID, sess.URL, nil
}

// CreateBookingCheckout starts a payment for a confirmed tutoring session.
func (s *StripeClient) CreateBookingCheckout(ctx context.Context, booking *models.Booking, student *models.Profile) (string, string, error) {
	s.ensureKey()

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			s.inlineItem("Doučovanie "+booking.StartTime.Format("02.01.2006 15:04"), booking.PriceEURCents),
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.siteURL + "/bookings?payment=success"),
		CancelURL:         stripe.String(s.siteURL + "/bookings?payment=cancel"),
		ClientReferenceID: stripe.String(student.UserID.String()),
	}
	s.applyCustomer(params, student)
	params.Context = ctx
	params.AddMetadata(MetaKind, KindBooking)
	params.AddMetadata(MetaBookingID, booking.ID.String())

	sess, err := session.New(params)
	if err != nil {
		return "", "", fmt.Errorf("failed to create booking checkout: %w", err)
	}
	return sess.ID, sess.URL, nil
}

func (s *StripeClient) inlineItem(name string, amountCents int64) *stripe.CheckoutSessionLineItemParams {
	return &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(s.currency),
			UnitAmount: stripe.Int64(amountCents),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(name),
			},
		},
		Quantity: stripe.Int64(1),
	}
}

func (s *StripeClient) applyCustomer(params *stripe.CheckoutSessionParams, profile *models.Profile) {
	if profile.StripeCustomerID != "" {
		params.Customer = stripe.String(profile.StripeCustomerID)
	} else if profile.Email != "" {
		params.CustomerEmail = stripe.String(profile.Email)
	}
}

// ChargeForPaymentIntent resolves the charge a Connect transfer is funded from.
func (s *StripeClient) ChargeForPaymentIntent(ctx context.Context, paymentIntentID string) (string, error) {
	s.ensureKey()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(paymentIntentID, params)
	if err != nil {
		return "", fmt.Errorf("failed to load payment intent: %w", err)
	}
	if pi.Charges == nil || len(pi.Charges.Data) == 0 {
		return "", fmt.Errorf("payment intent %s has no charges", paymentIntentID)
	}
	return pi.Charges.Data[0].ID, nil
}

// Transfer pays a Connect account. The idempotency key makes retries of the
// same payout safe.
func (s *StripeClient) Transfer(ctx context.Context, amountCents int64, destination, sourceCharge, idempotencyKey string, metadata map[string]string) (string, error) {
	s.ensureKey()

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(s.currency),
		Destination: stripe.String(destination),
	}
	if sourceCharge != "" {
		params.SourceTransaction = stripe.String(sourceCharge)
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(idempotencyKey)
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	tr, err := transfer.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create transfer: %w", err)
	}
	return tr.ID, nil
}

// ConnectOnboardingLink returns an onboarding URL for the seller's Express
// account, creating the account first when the profile has none.
func (s *StripeClient) ConnectOnboardingLink(ctx context.Context, profile *models.Profile) (string, string, error) {
	s.ensureKey()

	accountID := profile.StripeConnectAccountID
	if accountID == "" {
		params := &stripe.AccountParams{
			Type: stripe.String(string(stripe.AccountTypeExpress)),
			Capabilities: &stripe.AccountCapabilitiesParams{
				Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
			},
		}
		if profile.Email != "" {
			params.Email = stripe.String(profile.Email)
		}
		params.Context = ctx
		params.AddMetadata(MetaUserID, profile.UserID.String())

		acct, err := account.New(params)
		if err != nil {
			return "", "", fmt.Errorf("failed to create connect account: %w", err)
		}
		accountID = acct.ID
	}

	linkParams := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(s.siteURL + "/payouts?onboarding=refresh"),
		ReturnURL:  stripe.String(s.siteURL + "/payouts?onboarding=done"),
		Type:       stripe.String("account_onboarding"),
	}
	linkParams.Context = ctx

	link, err := accountlink.New(linkParams)
	if err != nil {
		return accountID, "", fmt.Errorf("failed to create onboarding link: %w", err)
	}
	return accountID, link.URL, nil
}

func (s *StripeClient) VerifyWebhookSignature(payload []byte, sig string, webhookSecret string) (stripe.Event, error) {
	if webhookSecret == "" {
		return stripe.Event{}, fmt.Errorf("webhook secret is not configured")
	}
	return webhook.ConstructEvent(payload, sig, webhookSecret)
}

// SellerShare is what the note author receives after the platform fee. The
// fee is rounded down to whole cents.
func SellerShare(priceCents int64, feePercent int) int64 {
	if priceCents <= 0 {
		return 0
	}
	if feePercent < 0 {
		feePercent = 0
	}
	if feePercent > 100 {
		feePercent = 100
	}
	return priceCents - priceCents*int64(feePercent)/100
}
