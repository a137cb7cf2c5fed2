package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jmylchreest/devlens/internal/models"
)

type chatRepository struct {
	db *sqlx.DB
}

// NewChatRepository creates a gateway over chat_sessions and chat_messages.
func NewChatRepository(db *sqlx.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateSession(ctx context.Context, s *models.ChatSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, repository_id, commit_sha, user_id, share_token_id, title, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.RepositoryID, s.Commit, s.UserID, s.ShareTokenID, s.Title, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create chat session: %w", err)
	}
	return nil
}

func (r *chatRepository) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	var s models.ChatSession
	err := r.db.GetContext(ctx, &s, `SELECT * FROM chat_sessions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat session: %w", err)
	}
	return &s, nil
}

func (r *chatRepository) AppendMessage(ctx context.Context, m *models.ChatMessage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, citations_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.SessionID, m.Role, m.Content, m.CitationsJSON, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}

func (r *chatRepository) GetMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error) {
	var msgs []*models.ChatMessage
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM chat_messages WHERE session_id = $1 ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get chat messages: %w", err)
	}
	return msgs, nil
}
