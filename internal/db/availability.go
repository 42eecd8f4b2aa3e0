package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"studko/internal/models"
)

const availabilityColumns = `
        id, tutor_id, available_date::text,
        to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), is_booked`

func scanAvailability(row interface{ Scan(...interface{}) error }) (*models.AvailabilityDate, error) {
	var a models.AvailabilityDate
	if err := row.Scan(&a.ID, &a.TutorID, &a.Date, &a.StartTime, &a.EndTime, &a.IsBooked); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// ListAvailability returns windows with from <= date <= to (YYYY-MM-DD).
func (db *PostgresDB) ListAvailability(ctx context.Context, tutorID uuid.UUID, from, to string) ([]models.AvailabilityDate, error) {
	query := `
        SELECT ` + availabilityColumns + `
        FROM tutor_availability_dates
        WHERE tutor_id = $1 AND available_date BETWEEN $2::date AND $3::date
        ORDER BY available_date, start_time
    `

	rows, err := db.pool.Query(ctx, query, tutorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list availability: %w", err)
	}
	defer rows.Close()

	slots := []models.AvailabilityDate{}
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *a)
	}
	return slots, rows.Err()
}

func (db *PostgresDB) GetAvailability(ctx context.Context, id uuid.UUID) (*models.AvailabilityDate, error) {
	return scanAvailability(db.pool.QueryRow(ctx,
		`SELECT `+availabilityColumns+` FROM tutor_availability_dates WHERE id = $1`, id))
}

func (db *PostgresDB) AddAvailability(ctx context.Context, a *models.AvailabilityDate) error {
	query := `
        INSERT INTO tutor_availability_dates (tutor_id, available_date, start_time, end_time)
        VALUES ($1, $2::date, $3::time, $4::time)
        RETURNING ` + availabilityColumns

	created, err := scanAvailability(db.pool.QueryRow(ctx, query, a.TutorID, a.Date, a.StartTime, a.EndTime))
	if err != nil {
		return fmt.Errorf("failed to add availability: %w", err)
	}
	*a = *created
	return nil
}

// DeleteAvailability removes a window without a live booking. Cancelled
// bookings of the window are kept and lose the reference. ErrConflict means
// the window is booked.
func (db *PostgresDB) DeleteAvailability(ctx context.Context, id uuid.UUID) error {
	return db.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		// Lock the window so no booking lands between the check and the delete
		var booked bool
		err := tx.QueryRow(ctx,
			`SELECT is_booked FROM tutor_availability_dates WHERE id = $1 FOR UPDATE`, id,
		).Scan(&booked)
		if err != nil {
			return notFound(err)
		}
		if booked {
			return ErrConflict
		}

		var live bool
		if err := tx.QueryRow(ctx, `
            SELECT EXISTS (
                SELECT 1 FROM tutor_bookings
                WHERE availability_id = $1 AND status <> 'cancelled'
            )`, id,
		).Scan(&live); err != nil {
			return fmt.Errorf("failed to check bookings of availability: %w", err)
		}
		if live {
			return ErrConflict
		}

		if _, err := tx.Exec(ctx, `DELETE FROM tutor_availability_dates WHERE id = $1`, id); err != nil {
			if isForeignKeyViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("failed to delete availability: %w", err)
		}
		return nil
	})
}
