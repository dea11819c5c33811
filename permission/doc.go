// Package permission holds the pure permission domain model: allow/deny
// effects, ranked data-visibility scopes, role rules and user overrides,
// decision merging, effective-permission matrix construction, and risk
// classification of proposed override changes.
//
// Everything in this package is side-effect free. Persistence and caching
// live in the root package and its stores.
package permission
