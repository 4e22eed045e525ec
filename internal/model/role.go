package model

import "strings"

// Role identifies which side of a room sent or views a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Counterpart returns the opposite side of the room.
func (r Role) Counterpart() Role {
	if r == RoleAdmin {
		return RoleUser
	}
	return RoleAdmin
}

// ResolveSender collapses the legacy sender fields into a Role.
// Precedence is from, then sender, then isAdmin. Records carrying none of
// them were written by the user page before the fields existed.
func ResolveSender(from, sender string, isAdmin *bool) Role {
	for _, v := range []string{from, sender} {
		switch Role(strings.ToLower(strings.TrimSpace(v))) {
		case RoleAdmin:
			return RoleAdmin
		case RoleUser:
			return RoleUser
		}
	}
	if isAdmin != nil && *isAdmin {
		return RoleAdmin
	}
	return RoleUser
}
