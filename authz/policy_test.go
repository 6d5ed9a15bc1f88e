package authz_test

import (
	"testing"

	"github.com/jrsteele09/go-auth-client/authz"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Capabilities(t *testing.T) {
	p := authz.New([]string{" Root@Example.com "})

	tests := []struct {
		name string
		user *users.User
		want authz.Capabilities
	}{
		{"no user", nil, authz.Capabilities{}},
		{"admin role", &users.User{ID: "1", Role: users.RoleAdmin}, authz.Capabilities{IsAdmin: true}},
		{"technician", &users.User{ID: "2", Role: users.RoleTechnician}, authz.Capabilities{}},
		{"superadmin flag", &users.User{ID: "3", Role: users.RoleViewer, IsSuperAdmin: true}, authz.Capabilities{IsAdmin: true, IsSuperAdmin: true}},
		{"allow-listed email", &users.User{ID: "4", Email: "root@example.COM", Role: users.RoleTechnician}, authz.Capabilities{IsAdmin: true, IsSuperAdmin: true}},
		{"unknown role", &users.User{ID: "5", Role: "Admin"}, authz.Capabilities{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, p.Capabilities(tt.user))
			require.Equal(t, tt.want.IsAdmin, p.IsAdmin(tt.user))
			require.Equal(t, tt.want.IsSuperAdmin, p.IsSuperAdmin(tt.user))
		})
	}
}

func TestPolicy_EmptyAllowList(t *testing.T) {
	p := authz.New(nil)
	require.False(t, p.IsSuperAdmin(&users.User{ID: "1", Email: "root@example.com"}))
}

func TestPolicy_Pure(t *testing.T) {
	p := authz.New([]string{"root@example.com"})
	u := &users.User{ID: "1", Email: "someone@example.com", Role: users.RoleTechnician}

	first := p.Capabilities(u)
	p.Capabilities(&users.User{ID: "2", Email: "root@example.com"})
	p.Capabilities(nil)
	require.Equal(t, first, p.Capabilities(u))
	require.Equal(t, users.RoleTechnician, u.Role)
}

func TestPolicy_FromConfig(t *testing.T) {
	t.Setenv("SUPERADMIN_EMAILS", "ops@example.com")
	p := authz.NewFromConfig(config.New())
	require.True(t, p.IsSuperAdmin(&users.User{ID: "1", Email: "ops@example.com"}))
}
