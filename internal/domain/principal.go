package domain

// RoleAssignment is one role held in one context. A user may be EMPLOYEE in
// one department and MANAGER of a team elsewhere.
type RoleAssignment struct {
	Role         Role
	DepartmentID *string
	TeamID       *string
}

// Principal is the authenticated caller as seen by the authorization engine.
type Principal struct {
	ID          string
	Name        string
	Email       string
	Assignments []RoleAssignment
	// TeamMembers holds the user ids of members of teams this principal manages.
	TeamMembers []string
}

// HasRole reports whether any assignment carries exactly role.
func (p *Principal) HasRole(role Role) bool {
	if p == nil {
		return false
	}
	for _, a := range p.Assignments {
		if a.Role == role {
			return true
		}
	}
	return false
}

// HasAtLeast reports whether any assignment meets the floor.
func (p *Principal) HasAtLeast(floor Role) bool {
	return p.MaxRole().AtLeast(floor)
}

// MaxRole returns the highest assigned role, or zero when none.
func (p *Principal) MaxRole() Role {
	if p == nil {
		return 0
	}
	var max Role
	for _, a := range p.Assignments {
		if a.Role.Valid() && a.Role > max {
			max = a.Role
		}
	}
	return max
}

// Roles returns the distinct roles held, ascending.
func (p *Principal) Roles() []Role {
	roles := make([]Role, 0, len(AllRoles))
	for _, r := range AllRoles {
		if p.HasRole(r) {
			roles = append(roles, r)
		}
	}
	return roles
}

// DepartmentsAtLeast returns departments where the principal holds a role at
// or above floor in that department's context.
func (p *Principal) DepartmentsAtLeast(floor Role) []string {
	if p == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, a := range p.Assignments {
		if a.DepartmentID == nil || !a.Role.AtLeast(floor) {
			continue
		}
		if _, ok := seen[*a.DepartmentID]; ok {
			continue
		}
		seen[*a.DepartmentID] = struct{}{}
		out = append(out, *a.DepartmentID)
	}
	return out
}

// InDepartment reports whether departmentID is in the principal's scope at floor.
func (p *Principal) InDepartment(departmentID string, floor Role) bool {
	for _, id := range p.DepartmentsAtLeast(floor) {
		if id == departmentID {
			return true
		}
	}
	return false
}

// ManagesMember reports whether userID belongs to a team the principal manages.
func (p *Principal) ManagesMember(userID string) bool {
	if p == nil || userID == "" {
		return false
	}
	for _, id := range p.TeamMembers {
		if id == userID {
			return true
		}
	}
	return false
}
