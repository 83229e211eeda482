package domain

const (
	RoleAdmin  = "ADMIN"
	RoleBranch = "BRANCH"
)

// Scope is the caller identity handed down by the auth middleware.
type Scope struct {
	UserID   string
	Role     string
	BranchID uint
}

// AdminScope is used by internal callers such as the scheduler and the
// worker endpoints, which act on every branch.
func AdminScope() Scope {
	return Scope{UserID: "system", Role: RoleAdmin}
}

func (s Scope) CanAccessBranch(branchID uint) bool {
	switch s.Role {
	case RoleAdmin:
		return true
	case RoleBranch:
		return s.BranchID != 0 && s.BranchID == branchID
	default:
		return false
	}
}
