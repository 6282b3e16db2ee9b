package auth

import (
	"context"

	"github.com/SevenTV/AiUsage/structures/v3"
)

type actorKey struct{}

func WithActor(ctx context.Context, actor *structures.User) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the authenticated user of the request, or nil for anonymous requests.
func ActorFrom(ctx context.Context) *structures.User {
	actor, _ := ctx.Value(actorKey{}).(*structures.User)
	return actor
}
