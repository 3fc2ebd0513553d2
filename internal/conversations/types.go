package conversations

import "time"

// Conversation is an explicit, user-titled grouping of completions. The chat
// surface and the public API create them; the webhook pipeline never does.
type Conversation struct {
	ID        int64     `json:"id"`
	BotID     int64     `json:"bot_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary is a conversation plus its completion count, as listed by the chat
// surface.
type Summary struct {
	Conversation
	MessageCount int64 `json:"message_count"`
}

// CreateRequest is the payload for creating a conversation.
type CreateRequest struct {
	BotID int64  `json:"bot_id" validate:"required"`
	Title string `json:"title"`
}

// UpdateRequest is the payload for renaming a conversation.
type UpdateRequest struct {
	Title string `json:"title" validate:"required"`
}
