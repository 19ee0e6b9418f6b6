package appointments

import (
	"context"
	"net/http"

	"rentview/internal/models"
)

// Actor is the party performing a call against the service.
type Actor struct {
	Ref  string
	Role models.Role
}

const (
	HeaderUserRef   = "X-User-Ref"
	HeaderActorRole = "X-Actor-Role"
)

type actorKey struct{}

// WithActor attaches the acting party to ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the acting party attached to ctx, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok && a.Ref != ""
}

// ActorFromHeaders reads the acting party forwarded by Client.
func ActorFromHeaders(h http.Header) (Actor, bool) {
	ref := h.Get(HeaderUserRef)
	if ref == "" {
		return Actor{}, false
	}
	role, err := models.ParseRole(h.Get(HeaderActorRole))
	if err != nil {
		return Actor{Ref: ref}, true
	}
	return Actor{Ref: ref, Role: role}, true
}

func setActorHeaders(ctx context.Context, h http.Header) {
	a, ok := ActorFrom(ctx)
	if !ok {
		return
	}
	h.Set(HeaderUserRef, a.Ref)
	if a.Role != "" {
		h.Set(HeaderActorRole, string(a.Role))
	}
}
