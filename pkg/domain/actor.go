package domain

// Role names supplied by the identity provider.
const (
	RoleAdmin = "admin"
)

// Actor is the authenticated identity acting on a document. The core never
// authenticates; it only authorizes against the identity it is given.
type Actor struct {
	UserID   UserID
	OfficeID OfficeID
	Roles    []string
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin)
}

// IsZero reports whether no identity was supplied.
func (a Actor) IsZero() bool {
	return a.UserID.IsNil()
}
