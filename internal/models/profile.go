package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription statuses as reported by Stripe.
const (
	SubscriptionActive            = "active"
	SubscriptionTrialing          = "trialing"
	SubscriptionPastDue           = "past_due"
	SubscriptionUnpaid            = "unpaid"
	SubscriptionCanceled          = "canceled"
	SubscriptionIncomplete        = "incomplete"
	SubscriptionIncompleteExpired = "incomplete_expired"
)

type Profile struct {
	UserID                 uuid.UUID `json:"user_id"`
	Email                  string    `json:"email"`
	FullName               string    `json:"full_name"`
	IsPro                  bool      `json:"is_pro"`
	IsAdmin                bool      `json:"is_admin"`
	SubscriptionStatus     string    `json:"subscription_status"`
	StripeCustomerID       string    `json:"stripe_customer_id,omitempty"`
	StripeConnectAccountID string    `json:"stripe_connect_account_id,omitempty"`
	PayoutInfo             string    `json:"payout_info,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// IsProStatus reports whether a subscription status grants Pro access.
func IsProStatus(status string) bool {
	return status == SubscriptionActive || status == SubscriptionTrialing
}
