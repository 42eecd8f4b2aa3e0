package models

import (
	"time"

	"github.com/google/uuid"
)

var ClaimPlatforms = map[string]bool{
	"tiktok":    true,
	"instagram": true,
	"youtube":   true,
}

type SocialClaim struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	Platform        string     `json:"platform"`
	PostURL         string     `json:"post_url"`
	Status          string     `json:"status"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
}
