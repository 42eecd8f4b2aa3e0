package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"studko/internal/models"
)

const profileColumns = `
        user_id, email, full_name, is_pro, is_admin, subscription_status,
        COALESCE(stripe_customer_id, ''), COALESCE(stripe_connect_account_id, ''),
        payout_info, created_at, updated_at`

func scanProfile(row interface{ Scan(...interface{}) error }) (*models.Profile, error) {
	var p models.Profile
	err := row.Scan(
		&p.UserID, &p.Email, &p.FullName, &p.IsPro, &p.IsAdmin, &p.SubscriptionStatus,
		&p.StripeCustomerID, &p.StripeConnectAccountID,
		&p.PayoutInfo, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (db *PostgresDB) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	return scanProfile(db.pool.QueryRow(ctx, query, userID))
}

func (db *PostgresDB) GetProfileByCustomerID(ctx context.Context, customerID string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE stripe_customer_id = $1`
	return scanProfile(db.pool.QueryRow(ctx, query, customerID))
}

// EnsureProfile creates the profile row on first sight of an authenticated user.
func (db *PostgresDB) EnsureProfile(ctx context.Context, userID uuid.UUID, email string) (*models.Profile, error) {
	query := `
        INSERT INTO profiles (user_id, email)
        VALUES ($1, $2)
        ON CONFLICT (user_id) DO UPDATE
        SET email = CASE WHEN profiles.email = '' THEN EXCLUDED.email ELSE profiles.email END
        RETURNING ` + profileColumns
	return scanProfile(db.pool.QueryRow(ctx, query, userID, email))
}

// ActivateSubscription is applied when a subscription checkout completes.
func (db *PostgresDB) ActivateSubscription(ctx context.Context, userID uuid.UUID, customerID, status string) error {
	query := `
        UPDATE profiles
        SET is_pro = $3, subscription_status = $4,
            stripe_customer_id = COALESCE(NULLIF($2, ''), stripe_customer_id),
            updated_at = NOW()
        WHERE user_id = $1
    `

	tag, err := db.pool.Exec(ctx, query, userID, customerID, models.IsProStatus(status), status)
	if err != nil {
		return fmt.Errorf("failed to activate subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSubscriptionByCustomer mirrors a Stripe subscription status onto the
// profile owning the customer. is_pro is derived from the status.
func (db *PostgresDB) UpdateSubscriptionByCustomer(ctx context.Context, customerID, status string) (*models.Profile, error) {
	query := `
        UPDATE profiles
        SET is_pro = $2, subscription_status = $3, updated_at = NOW()
        WHERE stripe_customer_id = $1
        RETURNING ` + profileColumns
	return scanProfile(db.pool.QueryRow(ctx, query, customerID, models.IsProStatus(status), status))
}

func (db *PostgresDB) SetStripeCustomer(ctx context.Context, userID uuid.UUID, customerID string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE profiles SET stripe_customer_id = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, customerID)
	return err
}

func (db *PostgresDB) SetConnectAccount(ctx context.Context, userID uuid.UUID, accountID string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE profiles SET stripe_connect_account_id = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, accountID)
	return err
}
