package shared

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// Header names set by the upstream gateway.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
)

// Actor identifies the user behind a request.
type Actor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// IsZero reports whether no actor was resolved.
func (a Actor) IsZero() bool {
	return a.ID == 0 && a.Name == ""
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}

// ActorFromRequest reads the gateway identity headers. A malformed id is
// treated as anonymous.
func ActorFromRequest(r *http.Request) Actor {
	actor := Actor{Name: strings.TrimSpace(r.Header.Get(HeaderUserName))}
	if raw := strings.TrimSpace(r.Header.Get(HeaderUserID)); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			actor.ID = id
		}
	}
	return actor
}
