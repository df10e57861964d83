package auth

import (
	"github.com/google/uuid"

	"github.com/charityconnect/charityconnect-backend/pkg/enums"
)

// Actor is the caller identity passed explicitly into services.
// The zero value is an anonymous visitor.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// Anonymous is the actor for unauthenticated requests.
var Anonymous = Actor{}

// IsAuthenticated reports whether the actor carries a user id.
func (a Actor) IsAuthenticated() bool {
	return a.UserID != uuid.Nil && a.Role.IsValid()
}

func (a Actor) CanAuthorEvents() bool {
	return a.IsAuthenticated() && (a.Role == enums.RoleOrganiser || a.Role == enums.RoleAdmin)
}

func (a Actor) CanSeeUnpublished() bool {
	return a.CanAuthorEvents()
}

func (a Actor) CanVerify() bool {
	return a.IsAuthenticated() && a.Role == enums.RoleAdmin
}

// UserRef returns the user id as a nullable column value.
func (a Actor) UserRef() *uuid.UUID {
	if !a.IsAuthenticated() {
		return nil
	}
	id := a.UserID
	return &id
}
