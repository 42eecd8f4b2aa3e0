package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"studko/internal/models"
)

const tutorColumns = `
        id, user_id, bio, subjects, price_per_hour_cents, status,
        rejection_reason, created_at, reviewed_at`

func scanTutor(row interface{ Scan(...interface{}) error }) (*models.Tutor, error) {
	var t models.Tutor
	err := row.Scan(
		&t.ID, &t.UserID, &t.Bio, &t.Subjects, &t.PricePerHourCents, &t.Status,
		&t.RejectionReason, &t.CreatedAt, &t.ReviewedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (db *PostgresDB) GetTutor(ctx context.Context, id uuid.UUID) (*models.Tutor, error) {
	return scanTutor(db.pool.QueryRow(ctx, `SELECT `+tutorColumns+` FROM tutors WHERE id = $1`, id))
}

func (db *PostgresDB) GetTutorByUserID(ctx context.Context, userID uuid.UUID) (*models.Tutor, error) {
	return scanTutor(db.pool.QueryRow(ctx, `SELECT `+tutorColumns+` FROM tutors WHERE user_id = $1`, userID))
}

// CreateTutorApplication submits an application. A rejected applicant
// resubmits into the same row, which goes back to pending. ErrConflict means
// the user already has a pending or approved application.
func (db *PostgresDB) CreateTutorApplication(ctx context.Context, t *models.Tutor) error {
	query := `
        INSERT INTO tutors (user_id, bio, subjects, price_per_hour_cents)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id) DO UPDATE
        SET bio = EXCLUDED.bio,
            subjects = EXCLUDED.subjects,
            price_per_hour_cents = EXCLUDED.price_per_hour_cents,
            status = 'pending',
            rejection_reason = '',
            created_at = NOW(),
            reviewed_at = NULL
        WHERE tutors.status = 'rejected'
        RETURNING ` + tutorColumns

	created, err := scanTutor(db.pool.QueryRow(ctx, query, t.UserID, t.Bio, t.Subjects, t.PricePerHourCents))
	if err != nil {
		// The conflicting row was not rejected, so nothing was returned
		if errors.Is(err, ErrNotFound) || isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create tutor application: %w", err)
	}
	*t = *created
	return nil
}

func (db *PostgresDB) ListTutorsByStatus(ctx context.Context, status string) ([]models.Tutor, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+tutorColumns+` FROM tutors WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list tutors: %w", err)
	}
	defer rows.Close()

	tutors := []models.Tutor{}
	for rows.Next() {
		t, err := scanTutor(rows)
		if err != nil {
			return nil, err
		}
		tutors = append(tutors, *t)
	}
	return tutors, rows.Err()
}

// ReviewTutor moves a pending application to status. ErrConflict means it
// was no longer pending.
func (db *PostgresDB) ReviewTutor(ctx context.Context, id uuid.UUID, status, reason string) (*models.Tutor, error) {
	query := `
        UPDATE tutors
        SET status = $2, rejection_reason = $3, reviewed_at = NOW()
        WHERE id = $1 AND status = 'pending'
        RETURNING ` + tutorColumns

	t, err := scanTutor(db.pool.QueryRow(ctx, query, id, status, reason))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrConflict
	}
	return t, err
}
