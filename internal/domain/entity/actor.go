package entity

// Actor is a snapshot of a user's identity, roles and permissions.
// Membership is resolved by the caller; the engine never queries it.
type Actor struct {
	ID          string   `json:"id"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// HasRole reports whether the actor holds the named role
func (a Actor) HasRole(name string) bool {
	return contains(a.Roles, name)
}

// HasPermission reports whether the actor holds the named permission
func (a Actor) HasPermission(name string) bool {
	return contains(a.Permissions, name)
}

// Contact carries delivery details for notifications
type Contact struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	LarkOpenID string `json:"lark_open_id,omitempty"`
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
