package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"studko/internal/models"
)

func (db *PostgresDB) InsertNotification(ctx context.Context, n *models.Notification) error {
	query := `
        INSERT INTO notifications (user_id, kind, title, body)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at
    `
	return db.pool.QueryRow(ctx, query, n.UserID, n.Kind, n.Title, n.Body).Scan(&n.ID, &n.CreatedAt)
}

func (db *PostgresDB) ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	query := `
        SELECT id, user_id, kind, title, body, read, created_at
        FROM notifications
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `

	rows, err := db.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	list := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

func (db *PostgresDB) MarkNotificationRead(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE notifications SET read = true WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
