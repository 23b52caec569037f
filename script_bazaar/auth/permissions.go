package auth

import (
	"fmt"
	"net/http"

	"script_ink/script_bazaar/core"
)

func AdminOnly() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !user.IsAdmin {
				http.Error(w, fmt.Sprintf("user %v is not an admin", user.Id), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

// ActorFromRequest returns the session user of the request, or the anonymous
// actor when there is none.
func ActorFromRequest(r *http.Request) core.Actor {
	user, err := UserFromContext(r)
	if err != nil {
		return core.Actor{}
	}
	return core.ActorFromUser(user)
}
