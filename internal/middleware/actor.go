package middleware

import (
	"context"
	"net/http"
)

// ActorHeader carries the acting user's id, injected by the auth gateway in
// front of this service. Session issuance and token checks live there, not
// here.
const ActorHeader = "X-User-ID"

type contextKey string

const actorKey contextKey = "actor_id"

// Actor lifts the acting user id off the request into the context.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(ActorHeader); id != "" {
			r = r.WithContext(context.WithValue(r.Context(), actorKey, id))
		}
		next.ServeHTTP(w, r)
	})
}

// ActorID returns the acting user id, or "" when the gateway sent none.
func ActorID(ctx context.Context) string {
	id, _ := ctx.Value(actorKey).(string)
	return id
}
