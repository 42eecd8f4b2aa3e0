package models

import (
	"time"

	"github.com/google/uuid"
)

// Review statuses shared by tutor applications and social claims.
const (
	ReviewPending  = "pending"
	ReviewApproved = "approved"
	ReviewRejected = "rejected"
)

type Tutor struct {
	ID                uuid.UUID  `json:"id"`
	UserID            uuid.UUID  `json:"user_id"`
	Bio               string     `json:"bio"`
	Subjects          []string   `json:"subjects"`
	PricePerHourCents int64      `json:"price_per_hour_cents"`
	Status            string     `json:"status"`
	RejectionReason   string     `json:"rejection_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	ReviewedAt        *time.Time `json:"reviewed_at,omitempty"`
}

// AvailabilityDate is a bookable window on a single calendar day.
// Date is YYYY-MM-DD and the times are HH:MM in the calendar time zone.
type AvailabilityDate struct {
	ID        uuid.UUID `json:"id"`
	TutorID   uuid.UUID `json:"tutor_id"`
	Date      string    `json:"available_date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	IsBooked  bool      `json:"is_booked"`
}

const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCompleted = "completed"
	BookingCancelled = "cancelled"
)

type Booking struct {
	ID              uuid.UUID `json:"id"`
	TutorID         uuid.UUID `json:"tutor_id"`
	StudentID       uuid.UUID `json:"student_id"`
	AvailabilityID  uuid.UUID `json:"availability_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Status          string    `json:"status"`
	Paid            bool      `json:"paid"`
	PriceEURCents   int64     `json:"price_eur_cents"`
	StripeSessionID string    `json:"stripe_session_id,omitempty"`
	Note            string    `json:"note,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Holds reports whether the booking still occupies its time range.
func (b *Booking) Holds() bool {
	return b.Status != BookingCancelled
}
