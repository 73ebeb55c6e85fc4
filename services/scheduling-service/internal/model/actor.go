package model

type Role string

const (
	RoleProfessional Role = "professional"
	RoleAdmin        Role = "admin"
	RoleSystem       Role = "system"
)

// Actor is the authenticated identity behind an operation.
type Actor struct {
	ID   string
	Role Role
}

var SystemActor = Actor{ID: "system", Role: RoleSystem}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// CanManage reports whether a may act on the calendar of ownerID.
func (a Actor) CanManage(ownerID string) bool {
	return a.IsAdmin() || (a.ID != "" && a.ID == ownerID)
}
