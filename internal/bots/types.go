package bots

import "time"

// Bot is a configured assistant persona bound to one WhatsApp number.
type Bot struct {
	ID                 int64      `json:"id"`
	TenantID           int64      `json:"tenant_id"`
	Name               string     `json:"name"`
	CustomInstructions string     `json:"custom_instructions"`
	UserInstructions   string     `json:"user_instructions,omitempty"`
	WhatsAppPhone      string     `json:"whatsapp_phone,omitempty"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// CreateRequest is the payload for creating a bot.
type CreateRequest struct {
	TenantID           int64  `json:"tenant_id" validate:"required"`
	Name               string `json:"name" validate:"required"`
	CustomInstructions string `json:"custom_instructions" validate:"required"`
	UserInstructions   string `json:"user_instructions"`
	WhatsAppPhone      string `json:"whatsapp_phone"`
}

// UpdateRequest is the payload for updating a bot.
type UpdateRequest struct {
	Name               string `json:"name"`
	CustomInstructions string `json:"custom_instructions"`
	UserInstructions   *string `json:"user_instructions"`
	WhatsAppPhone      *string `json:"whatsapp_phone"`
}
