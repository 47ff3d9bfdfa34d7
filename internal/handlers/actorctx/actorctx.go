package actorctx

import (
	"context"

	"github.com/apexrewards/pointsledger/internal/models"
)

type ctxKey string

const actorKey ctxKey = "actor"

// Create a new context carrying the acting identity
func New(ctx context.Context, a models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// Extract the acting identity from the context
func FromContext(ctx context.Context) (models.Actor, bool) {
	a, ok := ctx.Value(actorKey).(models.Actor)
	return a, ok
}
