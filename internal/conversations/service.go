package conversations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nunutzi10/foam-ai/internal/db"
)

var ErrNotFound = errors.New("conversation not found")

// Service provides bot-scoped conversation CRUD.
type Service struct {
	db     db.Querier
	logger *slog.Logger
}

// NewService creates a conversation service.
func NewService(log *slog.Logger, q db.Querier) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:     q,
		logger: log.With(slog.String("service", "conversations")),
	}
}

const conversationColumns = "id, bot_id, title, created_at, updated_at"

// Create inserts a conversation. An empty title gets a timestamped default,
// matching the chat surface behavior.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Conversation, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Conversación " + time.Now().Format("02/01/2006 15:04")
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO conversations (bot_id, title)
		VALUES ($1, $2)
		RETURNING `+conversationColumns,
		req.BotID, title)
	conversation, err := scanConversation(row)
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conversation, nil
}

// Get fetches one conversation scoped to a bot.
func (s *Service) Get(ctx context.Context, botID, id int64) (Conversation, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE id = $1 AND bot_id = $2",
		id, botID)
	conversation, err := scanConversation(row)
	if err != nil {
		if db.IsNoRows(err) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return conversation, nil
}

// Update renames a conversation.
func (s *Service) Update(ctx context.Context, botID, id int64, req UpdateRequest) (Conversation, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE conversations SET title = $1, updated_at = now()
		WHERE id = $2 AND bot_id = $3
		RETURNING `+conversationColumns,
		strings.TrimSpace(req.Title), id, botID)
	conversation, err := scanConversation(row)
	if err != nil {
		if db.IsNoRows(err) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("update conversation: %w", err)
	}
	return conversation, nil
}

// Delete removes a conversation and, by cascade, its completions.
func (s *Service) Delete(ctx context.Context, botID, id int64) error {
	tag, err := s.db.Exec(ctx,
		"DELETE FROM conversations WHERE id = $1 AND bot_id = $2", id, botID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecent returns the most recently touched conversations for a bot with
// their completion counts.
func (s *Service) ListRecent(ctx context.Context, botID int64, limit int32) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.bot_id, c.title, c.created_at, c.updated_at,
		       COUNT(cm.id) AS message_count
		FROM conversations c
		LEFT JOIN completions cm ON cm.conversation_id = c.id
		WHERE c.bot_id = $1
		GROUP BY c.id
		ORDER BY c.updated_at DESC
		LIMIT $2`,
		botID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var result []Summary
	for rows.Next() {
		var summary Summary
		if err := rows.Scan(&summary.ID, &summary.BotID, &summary.Title,
			&summary.CreatedAt, &summary.UpdatedAt, &summary.MessageCount); err != nil {
			return nil, err
		}
		result = append(result, summary)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (Conversation, error) {
	var conversation Conversation
	if err := row.Scan(&conversation.ID, &conversation.BotID, &conversation.Title,
		&conversation.CreatedAt, &conversation.UpdatedAt); err != nil {
		return Conversation{}, err
	}
	return conversation, nil
}
