package domain

import (
	"fmt"
	"strings"
)

// Role is a closed, totally ordered set: USER < EMPLOYEE < MANAGER < ADMIN.
// The numeric values match the role ids stored in the roles table.
type Role int

const (
	RoleUser     Role = 1
	RoleEmployee Role = 2
	RoleManager  Role = 3
	RoleAdmin    Role = 4
)

// AllRoles lists every role in ascending order.
var AllRoles = []Role{RoleUser, RoleEmployee, RoleManager, RoleAdmin}

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "USER"
	case RoleEmployee:
		return "EMPLOYEE"
	case RoleManager:
		return "MANAGER"
	case RoleAdmin:
		return "ADMIN"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r >= RoleUser && r <= RoleAdmin
}

// AtLeast reports whether r meets the floor.
func (r Role) AtLeast(floor Role) bool {
	return r.Valid() && r >= floor
}

// ParseRole accepts role names case-insensitively.
func ParseRole(s string) (Role, error) {
	for _, r := range AllRoles {
		if strings.EqualFold(r.String(), strings.TrimSpace(s)) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
