package models

import "context"

// Actor - уже аутентифицированное действующее лицо, переданное сервисом идентификации.
type Actor struct {
	ID string
}

type actorKey struct{}

// WithActor сохраняет действующее лицо в контексте запроса.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext достает действующее лицо из контекста запроса.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok && actor.ID != ""
}
