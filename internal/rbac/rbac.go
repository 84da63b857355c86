package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

const (
	// ActionRead covers outlines, exports and search.
	ActionRead Action = "read"
	// ActionWrite covers overrides, recompute and imports.
	ActionWrite Action = "write"
	// ActionAdmin covers deletion and reindexing.
	ActionAdmin Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionWrite
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// Normalize maps unknown roles to viewer.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}

// Allowed lists the actions role may perform, for session responses.
func Allowed(role Role) []Action {
	var out []Action
	for _, action := range []Action{ActionRead, ActionWrite, ActionAdmin} {
		if Can(role, action) {
			out = append(out, action)
		}
	}
	return out
}
