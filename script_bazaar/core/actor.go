package core

import (
	"script_ink/script_bazaar/schema"

	"github.com/google/uuid"
)

// Actor is the user an operation runs on behalf of. The zero value is an
// anonymous visitor.
type Actor struct {
	Id       uuid.UUID
	Username string
	IsAdmin  bool
}

func ActorFromUser(user schema.User) Actor {
	return Actor{Id: user.Id, Username: user.Username, IsAdmin: user.IsAdmin}
}

func (a Actor) Authenticated() bool {
	return a.Id != uuid.Nil
}

func (a Actor) requireSession() error {
	if !a.Authenticated() {
		return Errorf(Unauthenticated, "login required")
	}
	return nil
}
