package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	NotificationNoteSold        = "note_sold"
	NotificationNotePurchased   = "note_purchased"
	NotificationBookingCreated  = "booking_created"
	NotificationBookingUpdated  = "booking_updated"
	NotificationTutorReviewed   = "tutor_reviewed"
	NotificationClaimReviewed   = "claim_reviewed"
	NotificationSubscriptionSet = "subscription_updated"
)

type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
