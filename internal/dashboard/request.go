package dashboard

import "strings"

type Role string

const (
	RoleAdmin          Role = "admin"
	RoleProjectManager Role = "project_manager"
	RoleViewer         Role = "viewer"
)

// ParseRole maps a header value to a Role. Unknown values become RoleViewer.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleProjectManager, "pm", "project-manager":
		return RoleProjectManager
	}
	return RoleViewer
}

// RequestContext identifies the caller of a service operation.
type RequestContext struct {
	UserID string
	Role   Role
}

func (r RequestContext) CanForecast() bool {
	return r.Role == RoleAdmin || r.Role == RoleProjectManager
}

func (r RequestContext) IsAdmin() bool {
	return r.Role == RoleAdmin
}
