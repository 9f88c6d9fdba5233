package database

import (
	"context"
	"fmt"
)

// MessageRepository stores chat history.
type MessageRepository struct {
	db DBTX
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `id, user_id, query, response, conversation_session_id, parent_message_id,
	intent, context_chapter_id, context_module_slug, user_difficulty_level, clarification_depth,
	was_follow_up, sources, user_rating, helpful_count, unhelpful_count, sentiment_score,
	created_at, updated_at`

func scanMessage(row interface{ Scan(...any) error }) (*ChatMessage, error) {
	m := &ChatMessage{}
	err := row.Scan(
		&m.ID, &m.UserID, &m.Query, &m.Response, &m.ConversationSessionID, &m.ParentMessageID,
		&m.Intent, &m.ContextChapterID, &m.ContextModuleSlug, &m.UserDifficultyLevel, &m.ClarificationDepth,
		&m.WasFollowUp, &m.Sources, &m.UserRating, &m.HelpfulCount, &m.UnhelpfulCount, &m.SentimentScore,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

// Create inserts a message. CreatedAt is used as given when set.
func (r *MessageRepository) Create(ctx context.Context, m *ChatMessage) error {
	if m.Sources == "" {
		m.Sources = "[]"
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO chat_messages (id, user_id, query, response, conversation_session_id, parent_message_id,
			intent, context_chapter_id, context_module_slug, user_difficulty_level, clarification_depth,
			was_follow_up, sources, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			COALESCE($14, NOW()), COALESCE($14, NOW()))
		RETURNING created_at, updated_at`,
		m.ID, m.UserID, m.Query, m.Response, m.ConversationSessionID, m.ParentMessageID,
		m.Intent, m.ContextChapterID, m.ContextModuleSlug, m.UserDifficultyLevel, m.ClarificationDepth,
		m.WasFollowUp, m.Sources, nullTime(m.CreatedAt),
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// Get retrieves a message by ID.
func (r *MessageRepository) Get(ctx context.Context, userID, id string) (*ChatMessage, error) {
	return scanMessage(r.db.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM chat_messages WHERE id = $1 AND user_id = $2`, id, userID))
}

// ListBySession returns a user's messages in a session, oldest first.
func (r *MessageRepository) ListBySession(ctx context.Context, userID, sessionID string) ([]*ChatMessage, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM chat_messages
		WHERE user_id = $1 AND conversation_session_id = $2
		ORDER BY created_at, id`, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session messages: %w", err)
	}
	defer rows.Close()

	var out []*ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Rate stores a 1..5 rating and bumps the helpful or unhelpful counter
// when helpful is set. Messages of other users are reported as ErrNotFound.
func (r *MessageRepository) Rate(ctx context.Context, userID, id string, rating int, helpful *bool) (*ChatMessage, error) {
	var helpfulInc, unhelpfulInc int
	if helpful != nil {
		if *helpful {
			helpfulInc = 1
		} else {
			unhelpfulInc = 1
		}
	}
	return scanMessage(r.db.QueryRow(ctx, `
		UPDATE chat_messages SET
			user_rating = $3,
			helpful_count = helpful_count + $4,
			unhelpful_count = unhelpful_count + $5,
			updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING `+messageColumns,
		id, userID, rating, helpfulInc, unhelpfulInc))
}
