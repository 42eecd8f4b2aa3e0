package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"studko/internal/models"
)

const claimColumns = `id, user_id, platform, post_url, status, rejection_reason, created_at, reviewed_at`

func scanClaim(row interface{ Scan(...interface{}) error }) (*models.SocialClaim, error) {
	var c models.SocialClaim
	err := row.Scan(&c.ID, &c.UserID, &c.Platform, &c.PostURL, &c.Status,
		&c.RejectionReason, &c.CreatedAt, &c.ReviewedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// CreateClaim inserts a pending claim. ErrConflict when the user already has
// an open or approved claim on the platform.
func (db *PostgresDB) CreateClaim(ctx context.Context, c *models.SocialClaim) error {
	query := `
        INSERT INTO social_claims (user_id, platform, post_url)
        VALUES ($1, $2, $3)
        RETURNING ` + claimColumns

	created, err := scanClaim(db.pool.QueryRow(ctx, query, c.UserID, c.Platform, c.PostURL))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create claim: %w", err)
	}
	*c = *created
	return nil
}

func (db *PostgresDB) GetClaim(ctx context.Context, id uuid.UUID) (*models.SocialClaim, error) {
	return scanClaim(db.pool.QueryRow(ctx, `SELECT `+claimColumns+` FROM social_claims WHERE id = $1`, id))
}

func (db *PostgresDB) ListClaimsByStatus(ctx context.Context, status string) ([]models.SocialClaim, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+claimColumns+` FROM social_claims WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	claims := []models.SocialClaim{}
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, *c)
	}
	return claims, rows.Err()
}

func (db *PostgresDB) ReviewClaim(ctx context.Context, id uuid.UUID, status, reason string) (*models.SocialClaim, error) {
	query := `
        UPDATE social_claims
        SET status = $2, rejection_reason = $3, reviewed_at = NOW()
        WHERE id = $1 AND status = 'pending'
        RETURNING ` + claimColumns

	c, err := scanClaim(db.pool.QueryRow(ctx, query, id, status, reason))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrConflict
	}
	return c, err
}
