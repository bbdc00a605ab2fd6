package orgcontext

import (
	"context"
	"strings"
)

// OrgContextKey is the request context key for the tenant being served.
type OrgContextKey struct{}

type actorKey struct{}

// WithOrgID stores the tenant ID in the context.
func WithOrgID(ctx context.Context, orgID int64) context.Context {
	return context.WithValue(ctx, OrgContextKey{}, orgID)
}

// OrgIDFromContext returns the tenant ID from context, if set.
func OrgIDFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(OrgContextKey{}).(int64)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

// WithActor stores the caller identity, e.g. "user:42" or "system".
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, strings.TrimSpace(actor))
}

func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}
