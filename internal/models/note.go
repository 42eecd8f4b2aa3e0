package models

import (
	"time"

	"github.com/google/uuid"
)

type Note struct {
	ID          uuid.UUID `json:"id"`
	AuthorID    uuid.UUID `json:"author_id"`
	Title       string    `json:"title"`
	Subject     string    `json:"subject"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	FileURL     string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

func (n *Note) IsFree() bool {
	return n.PriceCents <= 0
}

type NotePurchase struct {
	ID                    uuid.UUID `json:"id"`
	BuyerID               uuid.UUID `json:"buyer_id"`
	NoteID                uuid.UUID `json:"note_id"`
	PriceCents            int64     `json:"price_cents"`
	StripeSessionID       string    `json:"stripe_session_id,omitempty"`
	StripePaymentIntentID string    `json:"stripe_payment_intent_id,omitempty"`
	TransferID            string    `json:"transfer_id,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}
