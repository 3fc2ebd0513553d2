package apikeys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleAuthorized(t *testing.T) {
	tests := []struct {
		name string
		role Role
		want Role
		ok   bool
	}{
		{"all grants admins", RoleAll(), RoleAdmins, true},
		{"all grants completions", RoleAll(), RoleCompletions, true},
		{"completions only denies admins", RoleCompletions, RoleAdmins, false},
		{"completions only grants completions", RoleCompletions, RoleCompletions, true},
		{"empty denies everything", 0, RoleCompletions, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.role.Authorized(tt.want))
		})
	}
}

func TestRoleAllIsUnion(t *testing.T) {
	assert.Equal(t, RoleAdmins|RoleCompletions, RoleAll())
}
