package completions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Status classifies the outcome of the provider call for a completion.
type Status int

const (
	StatusValidResponse Status = iota
	StatusInvalidResponse
)

var statusNames = map[Status]string{
	StatusValidResponse:   "valid_response",
	StatusInvalidResponse: "invalid_response",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Metadata echoes the provider response identifiers and token usage.
type Metadata struct {
	ID    string `json:"id,omitempty"`
	Model string `json:"model,omitempty"`
	Usage Usage  `json:"usage,omitempty"`
}

// Usage is the provider token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// Completion is one prompt/response exchange with the language-model
// provider. It is written exactly twice: once at creation with the prompt,
// once after the provider call resolves.
type Completion struct {
	ID             int64          `json:"id"`
	BotID          int64          `json:"bot_id"`
	ConversationID *int64         `json:"conversation_id,omitempty"`
	Status         Status         `json:"status"`
	Prompt         string         `json:"prompt"`
	FullPrompt     string         `json:"full_prompt,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
	Response       string         `json:"response,omitempty"`
	Metadata       *Metadata      `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Turn is one prior exchange side used as conversational context.
type Turn struct {
	Body     string
	FromUser bool
}

// ChatMessage is a single role-tagged message sent to the provider.
type ChatMessage struct {
	Role    string
	Content string
}

// ProviderRequest carries the provider call parameters.
type ProviderRequest struct {
	Model            string
	Messages         []ChatMessage
	Temperature      float32
	TopP             float32
	MaxTokens        int
	FrequencyPenalty float32
	PresencePenalty  float32
}

// ProviderResult is a successful provider response.
type ProviderResult struct {
	Text  string
	ID    string
	Model string
	Usage Usage
}

// Provider generates chat completions against a per-tenant credential.
type Provider interface {
	Chat(ctx context.Context, apiKey string, req ProviderRequest) (ProviderResult, error)
}

// CreateInput carries the fields of a new completion row.
type CreateInput struct {
	BotID          int64
	ConversationID *int64
	Prompt         string
	Context        map[string]any
}
