package middleware

import (
	"context"

	"github.com/lumapos/authcore/permission"
)

type scopeContextKey struct{}

func withScope(ctx context.Context, scope permission.Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext returns the data scope granted by the most recent
// RequirePermission check, for handlers that filter query results by it.
func ScopeFromContext(ctx context.Context) (permission.Scope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(permission.Scope)
	return scope, ok
}
