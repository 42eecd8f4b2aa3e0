package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"studko/internal/models"
)

func (db *PostgresDB) CreateConversation(ctx context.Context, c *models.Conversation) error {
	query := `
        INSERT INTO ai_conversations (user_id, title)
        VALUES ($1, $2)
        RETURNING id, created_at, updated_at
    `
	return db.pool.QueryRow(ctx, query, c.UserID, c.Title).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (db *PostgresDB) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var c models.Conversation
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM ai_conversations WHERE id = $1`, id,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (db *PostgresDB) ListConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	rows, err := db.pool.Query(ctx, `
        SELECT id, user_id, title, created_at, updated_at
        FROM ai_conversations
        WHERE user_id = $1
        ORDER BY updated_at DESC
        LIMIT 100
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	list := []models.Conversation{}
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// InsertMessage stores a message and bumps the conversation's updated_at.
func (db *PostgresDB) InsertMessage(ctx context.Context, m *models.Message) error {
	query := `
        WITH inserted AS (
            INSERT INTO ai_messages (conversation_id, role, content)
            VALUES ($1, $2, $3)
            RETURNING id, created_at
        ), touched AS (
            UPDATE ai_conversations SET updated_at = NOW() WHERE id = $1
        )
        SELECT id, created_at FROM inserted
    `
	return db.pool.QueryRow(ctx, query, m.ConversationID, m.Role, m.Content).Scan(&m.ID, &m.CreatedAt)
}

// RecentMessages returns the last limit messages in chronological order.
func (db *PostgresDB) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	rows, err := db.pool.Query(ctx, `
        SELECT id, conversation_id, role, content, created_at FROM (
            SELECT id, conversation_id, role, content, created_at
            FROM ai_messages
            WHERE conversation_id = $1
            ORDER BY created_at DESC
            LIMIT $2
        ) recent
        ORDER BY created_at
    `, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	list := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (db *PostgresDB) SaveFlashcardSet(ctx context.Context, set *models.FlashcardSet) error {
	cards, err := json.Marshal(set.Cards)
	if err != nil {
		return fmt.Errorf("failed to encode flashcards: %w", err)
	}
	return db.pool.QueryRow(ctx, `
        INSERT INTO flashcard_sets (user_id, subject, cards)
        VALUES ($1, $2, $3)
        RETURNING id, created_at
    `, set.UserID, set.Subject, string(cards)).Scan(&set.ID, &set.CreatedAt)
}

func (db *PostgresDB) SaveQuizResult(ctx context.Context, r *models.QuizResult) error {
	return db.pool.QueryRow(ctx, `
        INSERT INTO quiz_results (user_id, subject, score, total)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at
    `, r.UserID, r.Subject, r.Score, r.Total).Scan(&r.ID, &r.CreatedAt)
}
