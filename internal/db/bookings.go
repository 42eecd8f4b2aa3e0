package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"studko/internal/models"
)

// availability_id is NULL once the tutor deleted the slot of a cancelled
// booking; it scans as uuid.Nil.
const bookingColumns = `
        id, tutor_id, student_id,
        COALESCE(availability_id, '00000000-0000-0000-0000-000000000000'::uuid),
        start_time, end_time, status,
        paid, price_eur_cents, stripe_session_id, note, created_at, updated_at`

func scanBooking(row interface{ Scan(...interface{}) error }) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(
		&b.ID, &b.TutorID, &b.StudentID, &b.AvailabilityID, &b.StartTime, &b.EndTime, &b.Status,
		&b.Paid, &b.PriceEURCents, &b.StripeSessionID, &b.Note, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (db *PostgresDB) queryBookings(ctx context.Context, query string, args ...interface{}) ([]models.Booking, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := []models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func (db *PostgresDB) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return scanBooking(db.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM tutor_bookings WHERE id = $1`, id))
}

// ListTutorBookings returns bookings of a tutor that start in [from, to).
func (db *PostgresDB) ListTutorBookings(ctx context.Context, tutorID uuid.UUID, from, to time.Time) ([]models.Booking, error) {
	return db.queryBookings(ctx, `
        SELECT `+bookingColumns+`
        FROM tutor_bookings
        WHERE tutor_id = $1 AND start_time >= $2 AND start_time < $3
        ORDER BY start_time
    `, tutorID, from, to)
}

// ListUserBookings returns bookings where the user is the student or the tutor.
func (db *PostgresDB) ListUserBookings(ctx context.Context, userID uuid.UUID) ([]models.Booking, error) {
	return db.queryBookings(ctx, `
        SELECT `+bookingColumns+`
        FROM tutor_bookings
        WHERE student_id = $1
           OR tutor_id IN (SELECT id FROM tutors WHERE user_id = $1)
        ORDER BY start_time DESC
    `, userID)
}

func (db *PostgresDB) ListBookingsByStatus(ctx context.Context, status string) ([]models.Booking, error) {
	return db.queryBookings(ctx, `
        SELECT `+bookingColumns+`
        FROM tutor_bookings
        WHERE status = $1
        ORDER BY start_time
    `, status)
}

// CreateBookingForSlot inserts a pending booking and marks its availability
// window booked in one transaction. ErrSlotTaken if the window is booked.
func (db *PostgresDB) CreateBookingForSlot(ctx context.Context, b *models.Booking) error {
	return db.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		var booked bool
		err := tx.QueryRow(ctx,
			`SELECT is_booked FROM tutor_availability_dates WHERE id = $1 FOR UPDATE`,
			b.AvailabilityID,
		).Scan(&booked)
		if err != nil {
			return notFound(err)
		}
		if booked {
			return ErrSlotTaken
		}

		query := `
            INSERT INTO tutor_bookings (tutor_id, student_id, availability_id, start_time, end_time,
                                        status, price_eur_cents, note)
            VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7)
            RETURNING ` + bookingColumns

		created, err := scanBooking(tx.QueryRow(ctx, query,
			b.TutorID, b.StudentID, b.AvailabilityID, b.StartTime, b.EndTime, b.PriceEURCents, b.Note,
		))
		if err != nil {
			return fmt.Errorf("failed to insert booking: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE tutor_availability_dates SET is_booked = true WHERE id = $1`, b.AvailabilityID,
		); err != nil {
			return fmt.Errorf("failed to mark slot booked: %w", err)
		}

		*b = *created
		return nil
	})
}

// TransitionBooking moves a booking from one status to another. ErrConflict
// means the booking was not in the from status. Cancelling frees the slot.
func (db *PostgresDB) TransitionBooking(ctx context.Context, id uuid.UUID, from, to string) (*models.Booking, error) {
	var updated *models.Booking
	err := db.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		query := `
            UPDATE tutor_bookings
            SET status = $3, updated_at = NOW()
            WHERE id = $1 AND status = $2
            RETURNING ` + bookingColumns

		b, err := scanBooking(tx.QueryRow(ctx, query, id, from, to))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrConflict
			}
			return err
		}

		if to == models.BookingCancelled {
			if _, err := tx.Exec(ctx,
				`UPDATE tutor_availability_dates SET is_booked = false WHERE id = $1`, b.AvailabilityID,
			); err != nil {
				return fmt.Errorf("failed to free slot: %w", err)
			}
		}

		updated = b
		return nil
	})
	return updated, err
}

// MarkBookingPaid flags a confirmed or completed booking as paid.
func (db *PostgresDB) MarkBookingPaid(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	query := `
        UPDATE tutor_bookings
        SET paid = true, updated_at = NOW()
        WHERE id = $1 AND status IN ('confirmed', 'completed')
        RETURNING ` + bookingColumns

	b, err := scanBooking(db.pool.QueryRow(ctx, query, id))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrConflict
	}
	return b, err
}

func (db *PostgresDB) SetBookingSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE tutor_bookings SET stripe_session_id = $2, updated_at = NOW() WHERE id = $1`,
		id, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
