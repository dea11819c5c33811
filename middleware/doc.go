// Package middleware adapts engine operations to net/http handler chains.
//
// # Guards
//
//   - [RequireAuth] validates the bearer token and attaches the identity to
//     the request context.
//   - [RequirePermission] authorizes a fixed resource/action pair and stores
//     the granted data scope for the handler.
//   - [RequireBranch] refuses branchless identities on mutating methods.
//
// Guards only translate HTTP semantics into engine calls. Token parsing,
// session I/O, and permission resolution all stay inside the engine; the
// middleware decides nothing beyond the shape of the error response.
package middleware
