package middleware

import "context"

type contextKey string

const (
	ctxPharmacyID contextKey = "pharmacy_id"
	ctxActorID    contextKey = "actor_id"
)

func PharmacyIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxPharmacyID).(string); ok {
		return v
	}
	return ""
}

func ActorIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxActorID).(string); ok {
		return v
	}
	return ""
}

// WithPharmacyID injects the pharmacy identifier into the context.
func WithPharmacyID(ctx context.Context, pharmacyID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPharmacyID, pharmacyID)
}

// WithActorID injects the acting user identifier into the context for downstream handlers.
func WithActorID(ctx context.Context, actorID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActorID, actorID)
}
