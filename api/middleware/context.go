package middleware

import (
	"context"

	"github.com/charityconnect/charityconnect-backend/pkg/auth"
)

type contextKey string

const ctxActor contextKey = "actor"

// ActorFromContext returns the actor resolved by Auth or OptionalAuth. Requests
// that never passed through either resolve to the anonymous actor.
func ActorFromContext(ctx context.Context) auth.Actor {
	if ctx == nil {
		return auth.Anonymous
	}
	if v, ok := ctx.Value(ctxActor).(auth.Actor); ok {
		return v
	}
	return auth.Anonymous
}

// WithActor injects the actor into the context for downstream handlers.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}
