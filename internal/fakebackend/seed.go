package fakebackend

import (
	"os"

	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SeedUser is one account in a seed file.
type SeedUser struct {
	Name           string `yaml:"name"`
	Email          string `yaml:"email"`
	Password       string `yaml:"password"`
	Role           string `yaml:"role"`
	OrganizationID string `yaml:"organizationId"`
	SuperAdmin     bool   `yaml:"superAdmin"`
}

// DefaultSeed is used when no seed file is given.
var DefaultSeed = []SeedUser{
	{Name: "Admin", Email: "admin@example.com", Password: "admin", Role: string(users.RoleAdmin)},
	{Name: "Technician", Email: "tech@example.com", Password: "tech", Role: string(users.RoleTechnician)},
	{Name: "Viewer", Email: "viewer@example.com", Password: "viewer", Role: string(users.RoleViewer)},
}

// LoadSeed reads a YAML list of users.
func LoadSeed(path string) ([]SeedUser, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "[LoadSeed] read")
	}
	var seed []SeedUser
	if err := yaml.Unmarshal(b, &seed); err != nil {
		return nil, errors.Wrap(err, "[LoadSeed] parse")
	}
	return seed, nil
}

// Seed adds every user in seed.
func (b *Backend) Seed(seed []SeedUser) error {
	for _, s := range seed {
		u := users.User{
			Name:         s.Name,
			Email:        s.Email,
			Role:         users.RoleType(s.Role),
			IsSuperAdmin: s.SuperAdmin,
		}
		if s.OrganizationID != "" {
			u.OrganizationID = utils.Ptr(s.OrganizationID)
		}
		if _, err := b.AddUser(u, s.Password); err != nil {
			return errors.Wrapf(err, "[Seed] %s", s.Email)
		}
	}
	return nil
}
