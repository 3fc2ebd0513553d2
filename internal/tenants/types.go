package tenants

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Settings is the validated shape of the tenants.settings JSONB column. It
// carries the per-tenant credentials for the completion provider and the
// messaging channel, plus the first-contact template text.
type Settings struct {
	OpenAIAPIKey        string `json:"openai_api_key" validate:"required"`
	VonageApplicationID string `json:"vonage_application_id,omitempty"`
	VonagePrivateKey    string `json:"vonage_private_key,omitempty"`
	VonageProduction    string `json:"vonage_production,omitempty"`
	MessageTemplate     string `json:"message_template,omitempty"`
}

// Production reports whether the channel client should target the production
// host. Anything other than the explicit "false" flag counts as production.
func (s Settings) Production() bool {
	return s.VonageProduction != "false"
}

var validate = validator.New()

// Validate checks settings against the required-field rules.
func (s Settings) Validate() error {
	return validate.Struct(s)
}

// Tenant is the top-level isolation boundary.
type Tenant struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Settings  Settings   `json:"settings"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CreateRequest is the payload for creating a tenant.
type CreateRequest struct {
	Name     string    `json:"name" validate:"required"`
	Settings *Settings `json:"settings"`
}

// UpdateRequest is the payload for updating a tenant.
type UpdateRequest struct {
	Name     string    `json:"name"`
	Settings *Settings `json:"settings"`
}
