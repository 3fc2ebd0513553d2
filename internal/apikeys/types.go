package apikeys

import "time"

// Role is a capability set granted to an API key.
type Role int64

const (
	RoleAdmins Role = 1 << iota
	RoleCompletions
)

var allRoles = []Role{RoleAdmins, RoleCompletions}

// RoleAll returns the union of every capability. Seed and fixture keys are
// created with it.
func RoleAll() Role {
	var result Role
	for _, r := range allRoles {
		result |= r
	}
	return result
}

// Authorized reports whether the role set includes every capability in want.
func (r Role) Authorized(want Role) bool {
	return r&want == want
}

// APIKey is a tenant-owned credential for the public API and chat surface.
type APIKey struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Name      string    `json:"name"`
	APIID     string    `json:"api_id"`
	APIKey    string    `json:"api_key"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateRequest is the payload for creating an API key.
type CreateRequest struct {
	Name     string `json:"name" validate:"required"`
	TenantID int64  `json:"tenant_id" validate:"required"`
	Role     *Role  `json:"role"`
}

// UpdateRequest is the payload for updating an API key.
type UpdateRequest struct {
	Name string `json:"name" validate:"required"`
	Role *Role  `json:"role"`
}
