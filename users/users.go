package users

import (
	"encoding/json"
	"strings"

	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/pkg/errors"
)

// RoleType is the role the backend assigns to a user within their organization
type RoleType string

const (
	RoleAdmin      RoleType = "admin"      // Can access the console
	RoleTechnician RoleType = "technician" // Field user, no console access
	RoleViewer     RoleType = "viewer"     // Read-only user, no console access
)

// User is the identity record returned by the login endpoint and persisted alongside the token.
type User struct {
	ID             string   `json:"id"`                       // Unique identifier for the user
	Name           string   `json:"name"`                     // Display name
	Email          string   `json:"email"`                    // User's email address
	Role           RoleType `json:"role"`                     // Organization role
	OrganizationID *string  `json:"organizationId,omitempty"` // Owning organization, absent for platform users
	IsSuperAdmin   bool     `json:"isSuperAdmin"`             // Backend-asserted superadmin flag
}

// Decode parses a JSON identity record. A record without an id is rejected.
func Decode(data []byte) (*User, error) {
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, errors.Wrap(err, "[users.Decode] invalid user record")
	}
	if strings.TrimSpace(u.ID) == "" {
		return nil, errors.New("[users.Decode] user record has no id")
	}
	return &u, nil
}

// Encode serializes the identity record for persistence.
func (u *User) Encode() ([]byte, error) {
	b, err := json.Marshal(u)
	if err != nil {
		return nil, errors.Wrap(err, "[users.Encode] marshal user")
	}
	return b, nil
}

// HasRole reports whether the user carries role.
func (u *User) HasRole(role RoleType) bool {
	return u != nil && u.Role == role
}

// Clone returns a deep copy so callers cannot mutate a session's identity.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.OrganizationID = utils.Copy(u.OrganizationID)
	return &c
}
