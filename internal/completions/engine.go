package completions

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nunutzi10/foam-ai/internal/bots"
	"github.com/nunutzi10/foam-ai/internal/db"
)

const (
	roleSystem = "system"
	roleUser   = "user"

	responseTokenCap = 2000
)

// Engine resolves prompts and runs the provider call for a completion,
// persisting the outcome. Provider failures are absorbed: the completion is
// marked invalid_response with the fallback text and the engine reports
// success, so the enclosing webhook transaction still commits.
type Engine struct {
	service  *Service
	provider Provider
	model    string
	logger   *slog.Logger
}

// NewEngine creates a completion engine with a fixed model identifier.
func NewEngine(log *slog.Logger, service *Service, provider Provider, model string) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		service:  service,
		provider: provider,
		model:    model,
		logger:   log.With(slog.String("service", "completion_engine")),
	}
}

// WithTx returns a copy of the engine whose persistence runs in the given
// transaction.
func (e *Engine) WithTx(q db.Querier) *Engine {
	return &Engine{
		service:  e.service.WithTx(q),
		provider: e.provider,
		model:    e.model,
		logger:   e.logger,
	}
}

// Generate runs the provider call for an already-created completion and
// persists the result. history holds prior turns, oldest first. Returns the
// completion with its resolved response fields.
func (e *Engine) Generate(ctx context.Context, apiKey string, bot bots.Bot, completion Completion, history []Turn) (Completion, error) {
	fullPrompt := e.resolveFullPrompt(bot)
	if err := e.service.SetFullPrompt(ctx, completion.ID, fullPrompt); err != nil {
		return Completion{}, err
	}
	completion.FullPrompt = fullPrompt

	req := ProviderRequest{
		Model:       e.model,
		Messages:    buildMessages(fullPrompt, wrapUserPrompt(bot.UserInstructions, completion.Prompt), history),
		Temperature: 0,
		TopP:        0,
		MaxTokens:   responseTokenCap,
	}

	result, err := e.provider.Chat(ctx, apiKey, req)
	if err != nil {
		e.logger.Warn("provider call failed",
			slog.Int64("completion_id", completion.ID), slog.Any("error", err))
		fallback := InvalidResponseMessage()
		if recordErr := e.service.RecordResult(ctx, completion.ID, StatusInvalidResponse, fallback, nil); recordErr != nil {
			return Completion{}, recordErr
		}
		completion.Status = StatusInvalidResponse
		completion.Response = fallback
		return completion, nil
	}

	metadata := &Metadata{ID: result.ID, Model: result.Model, Usage: result.Usage}
	if err := e.service.RecordResult(ctx, completion.ID, StatusValidResponse, result.Text, metadata); err != nil {
		return Completion{}, err
	}
	completion.Status = StatusValidResponse
	completion.Response = result.Text
	completion.Metadata = metadata
	return completion, nil
}

// resolveFullPrompt picks the bot's custom instructions, falling back to the
// default instruction set.
func (e *Engine) resolveFullPrompt(bot bots.Bot) string {
	if strings.TrimSpace(bot.CustomInstructions) != "" {
		return bot.CustomInstructions
	}
	return defaultSystemInstructions
}

// buildMessages assembles the ordered provider message list: system prompt
// first, prior turns in chronological order tagged by side, the current user
// prompt last.
func buildMessages(fullPrompt, userPrompt string, history []Turn) []ChatMessage {
	messages := make([]ChatMessage, 0, len(history)+2)
	if fullPrompt != "" {
		messages = append(messages, ChatMessage{Role: roleSystem, Content: fullPrompt})
	}
	for _, turn := range history {
		role := roleSystem
		if turn.FromUser {
			role = roleUser
		}
		messages = append(messages, ChatMessage{Role: role, Content: turn.Body})
	}
	if userPrompt != "" {
		messages = append(messages, ChatMessage{Role: roleUser, Content: userPrompt})
	}
	return messages
}
