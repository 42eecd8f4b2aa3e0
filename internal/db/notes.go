package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"studko/internal/models"
)

func (db *PostgresDB) ListNotes(ctx context.Context, subject string) ([]models.Note, error) {
	query := `
        SELECT id, author_id, title, subject, description, price_cents, file_url, created_at
        FROM notes
        WHERE $1 = '' OR subject = $1
        ORDER BY created_at DESC
        LIMIT 200
    `

	rows, err := db.pool.Query(ctx, query, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	notes := []models.Note{}
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.ID, &n.AuthorID, &n.Title, &n.Subject, &n.Description,
			&n.PriceCents, &n.FileURL, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (db *PostgresDB) GetNote(ctx context.Context, id uuid.UUID) (*models.Note, error) {
	query := `
        SELECT id, author_id, title, subject, description, price_cents, file_url, created_at
        FROM notes
        WHERE id = $1
    `

	var n models.Note
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&n.ID, &n.AuthorID, &n.Title, &n.Subject, &n.Description,
		&n.PriceCents, &n.FileURL, &n.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

func (db *PostgresDB) FindPurchase(ctx context.Context, buyerID, noteID uuid.UUID) (*models.NotePurchase, error) {
	query := `
        SELECT id, buyer_id, note_id, price_cents, stripe_session_id,
               stripe_payment_intent_id, transfer_id, created_at
        FROM note_purchases
        WHERE buyer_id = $1 AND note_id = $2
    `

	var p models.NotePurchase
	err := db.pool.QueryRow(ctx, query, buyerID, noteID).Scan(
		&p.ID, &p.BuyerID, &p.NoteID, &p.PriceCents, &p.StripeSessionID,
		&p.StripePaymentIntentID, &p.TransferID, &p.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// InsertPurchase records a purchase once per (buyer, note). It reports false
// without error when the row already exists.
func (db *PostgresDB) InsertPurchase(ctx context.Context, p *models.NotePurchase) (bool, error) {
	query := `
        INSERT INTO note_purchases (buyer_id, note_id, price_cents, stripe_session_id, stripe_payment_intent_id)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (buyer_id, note_id) DO NOTHING
        RETURNING id, created_at
    `

	err := db.pool.QueryRow(ctx, query,
		p.BuyerID, p.NoteID, p.PriceCents, p.StripeSessionID, p.StripePaymentIntentID,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if errors.Is(notFound(err), ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert purchase: %w", err)
	}
	return true, nil
}

func (db *PostgresDB) SetPurchaseTransfer(ctx context.Context, purchaseID uuid.UUID, transferID string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE note_purchases SET transfer_id = $2 WHERE id = $1`, purchaseID, transferID)
	return err
}
