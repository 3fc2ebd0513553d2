package completions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nunutzi10/foam-ai/internal/db"
)

var ErrNotFound = errors.New("completion not found")

// minContextWindow is the floor applied to the conversation context window:
// callers asking for fewer prior turns still get this many.
const minContextWindow = 5

// Service persists and reads completions.
type Service struct {
	db     db.Querier
	logger *slog.Logger
}

// NewService creates a completion service.
func NewService(log *slog.Logger, q db.Querier) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:     q,
		logger: log.With(slog.String("service", "completions")),
	}
}

// WithTx returns a copy of the service bound to the given transaction.
func (s *Service) WithTx(q db.Querier) *Service {
	return &Service{db: q, logger: s.logger}
}

const completionColumns = "id, bot_id, conversation_id, status, prompt, full_prompt, context, response, metadata, created_at, updated_at"

// Create inserts a completion holding only the prompt; the response fields
// are written later by the engine.
func (s *Service) Create(ctx context.Context, input CreateInput) (Completion, error) {
	var contextJSON []byte
	if input.Context != nil {
		var err error
		contextJSON, err = json.Marshal(input.Context)
		if err != nil {
			return Completion{}, fmt.Errorf("marshal completion context: %w", err)
		}
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO completions (bot_id, conversation_id, prompt, context)
		VALUES ($1, $2, $3, $4)
		RETURNING `+completionColumns,
		input.BotID, input.ConversationID, input.Prompt, contextJSON)
	completion, err := scanCompletion(row)
	if err != nil {
		return Completion{}, fmt.Errorf("create completion: %w", err)
	}
	return completion, nil
}

// SetFullPrompt records the system prompt actually sent to the provider.
func (s *Service) SetFullPrompt(ctx context.Context, id int64, fullPrompt string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE completions SET full_prompt = $1, updated_at = now() WHERE id = $2",
		fullPrompt, id)
	if err != nil {
		return fmt.Errorf("set full prompt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordResult writes the resolved outcome of the provider call. This is the
// second and final mutation of a completion row.
func (s *Service) RecordResult(ctx context.Context, id int64, status Status, response string, metadata *Metadata) error {
	var meta []byte
	if metadata != nil {
		var err error
		meta, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal completion metadata: %w", err)
		}
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE completions SET status = $1, response = $2, metadata = $3, updated_at = now()
		WHERE id = $4`,
		int(status), response, meta, id)
	if err != nil {
		return fmt.Errorf("record completion result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get fetches one completion scoped to a bot.
func (s *Service) Get(ctx context.Context, botID, id int64) (Completion, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+completionColumns+" FROM completions WHERE id = $1 AND bot_id = $2",
		id, botID)
	completion, err := scanCompletion(row)
	if err != nil {
		if db.IsNoRows(err) {
			return Completion{}, ErrNotFound
		}
		return Completion{}, fmt.Errorf("get completion: %w", err)
	}
	return completion, nil
}

// ListByBot returns completions for a bot, newest first.
func (s *Service) ListByBot(ctx context.Context, botID int64) ([]Completion, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+completionColumns+" FROM completions WHERE bot_id = $1 ORDER BY created_at DESC",
		botID)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

// ListByConversation returns a conversation's completions, oldest first.
func (s *Service) ListByConversation(ctx context.Context, conversationID int64) ([]Completion, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+completionColumns+" FROM completions WHERE conversation_id = $1 ORDER BY created_at ASC",
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("list conversation completions: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

// RecentByConversation returns the most recent completions of a conversation,
// newest first. The window is floored at minContextWindow regardless of a
// smaller requested limit.
func (s *Service) RecentByConversation(ctx context.Context, conversationID int64, limit int32) ([]Completion, error) {
	if limit < minContextWindow {
		limit = minContextWindow
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+completionColumns+` FROM completions
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent completions: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

// ContextForConversation flattens the recent completions of a conversation
// into ordered prompt-assembly turns, oldest first. Blank prompts and
// responses are skipped so the provider never sees empty content.
func (s *Service) ContextForConversation(ctx context.Context, conversationID int64, limit int32) ([]Turn, error) {
	recent, err := s.RecentByConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	// recent is newest-first; walk it backwards for chronological order.
	var turns []Turn
	for i := len(recent) - 1; i >= 0; i-- {
		completion := recent[i]
		if completion.Prompt != "" {
			turns = append(turns, Turn{Body: completion.Prompt, FromUser: true})
		}
		if completion.Response != "" {
			turns = append(turns, Turn{Body: completion.Response, FromUser: false})
		}
	}
	return turns, nil
}

func collect(rows interface {
	Next() bool
	Err() error
	Scan(dest ...any) error
}) ([]Completion, error) {
	var result []Completion
	for rows.Next() {
		completion, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, completion)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCompletion(row scanner) (Completion, error) {
	var completion Completion
	var status int
	var fullPrompt, response *string
	var contextJSON, meta []byte
	if err := row.Scan(&completion.ID, &completion.BotID, &completion.ConversationID,
		&status, &completion.Prompt, &fullPrompt, &contextJSON, &response, &meta,
		&completion.CreatedAt, &completion.UpdatedAt); err != nil {
		return Completion{}, err
	}
	completion.Status = Status(status)
	if fullPrompt != nil {
		completion.FullPrompt = *fullPrompt
	}
	if response != nil {
		completion.Response = *response
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &completion.Context); err != nil {
			return Completion{}, fmt.Errorf("decode completion context: %w", err)
		}
	}
	if len(meta) > 0 {
		var metadata Metadata
		if err := json.Unmarshal(meta, &metadata); err != nil {
			return Completion{}, fmt.Errorf("decode completion metadata: %w", err)
		}
		completion.Metadata = &metadata
	}
	return completion, nil
}
