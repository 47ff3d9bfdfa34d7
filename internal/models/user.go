package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleRegular   = "regular"
	RoleCashier   = "cashier"
	RoleManager   = "manager"
	RoleSuperuser = "superuser"
)

// roleRank orders roles by privilege
var roleRank = map[string]int{
	RoleRegular:   0,
	RoleCashier:   1,
	RoleManager:   2,
	RoleSuperuser: 3,
}

// RoleAtLeast reports whether role carries at least the privilege of min.
// Unknown roles rank below regular.
func RoleAtLeast(role string, min string) bool {
	return roleRank[role] >= roleRank[min]
}

// ValidRole reports whether role is one of the known role names
func ValidRole(role string) bool {
	_, ok := roleRank[role]
	return ok
}

type User struct {
	ID         uuid.UUID
	CreatedAt  time.Time
	Handle     string
	Role       string
	Points     int64
	Verified   bool
	Suspicious bool
	LastLogin  *time.Time
}

// Actor is the already-authenticated identity an operation runs as.
// The surrounding request layer resolves it before calling any service.
type Actor struct {
	UserID     uuid.UUID
	Handle     string
	Role       string
	Verified   bool
	Suspicious bool
}

func (a Actor) IsAtLeast(role string) bool {
	return RoleAtLeast(a.Role, role)
}
