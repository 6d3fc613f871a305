package shared

import "context"

type contextKey string

const actorContextKey contextKey = "veridoc.actor"

// ContextWithActor stores the acting user identifier on the context.
func ContextWithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorContextKey, actorID)
}

// ActorFromContext returns the acting user identifier, empty when absent.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey).(string)
	return actor
}
