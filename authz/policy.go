// Package authz derives role based capabilities from the current user. It is the
// single place access decisions are made; callers ask it rather than inspect roles.
package authz

import (
	"strings"

	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/users"
)

// Capabilities is derived from a user on every call and never stored.
type Capabilities struct {
	IsAdmin      bool
	IsSuperAdmin bool
}

// Policy is immutable after construction and safe for concurrent use.
type Policy struct {
	superAdmins map[string]struct{}
}

// New creates a Policy. superAdminEmails is an explicit allow-list of accounts
// granted superadmin rights regardless of the flag the backend returns.
func New(superAdminEmails []string) *Policy {
	p := &Policy{superAdmins: make(map[string]struct{}, len(superAdminEmails))}
	for _, e := range superAdminEmails {
		if e = normalizeEmail(e); e != "" {
			p.superAdmins[e] = struct{}{}
		}
	}
	return p
}

// NewFromConfig creates a Policy from the configured allow-list.
func NewFromConfig(c config.AuthzConfig) *Policy {
	return New(c.GetSuperAdminEmails())
}

// Capabilities returns what user may do. A nil user has no capabilities.
func (p *Policy) Capabilities(user *users.User) Capabilities {
	if user == nil {
		return Capabilities{}
	}
	superAdmin := user.IsSuperAdmin || p.allowListed(user.Email)
	return Capabilities{
		IsAdmin:      superAdmin || user.HasRole(users.RoleAdmin),
		IsSuperAdmin: superAdmin,
	}
}

// IsAdmin is shorthand for Capabilities(user).IsAdmin.
func (p *Policy) IsAdmin(user *users.User) bool {
	return p.Capabilities(user).IsAdmin
}

// IsSuperAdmin is shorthand for Capabilities(user).IsSuperAdmin.
func (p *Policy) IsSuperAdmin(user *users.User) bool {
	return p.Capabilities(user).IsSuperAdmin
}

func (p *Policy) allowListed(email string) bool {
	if p == nil || len(p.superAdmins) == 0 {
		return false
	}
	_, ok := p.superAdmins[normalizeEmail(email)]
	return ok
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
