package rbac

// Role names. Keep these stable; they are embedded in issued tokens.
const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func Valid(role string) bool { return role == RoleOperator || role == RoleAdmin }
