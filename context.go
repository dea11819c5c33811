package authcore

import "context"

type identityContextKey struct{}

// WithIdentity attaches a validated Identity to ctx. The middleware
// package stores the snapshot here after ValidateSession so handlers
// receive it explicitly instead of re-deriving it from ambient state.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the Identity attached by WithIdentity. The
// second return is false when no validation ran on this request.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}
