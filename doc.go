// Package authcore is a branch-scoped authorization core for line-of-
// business services. It validates bearer sessions against a Redis session
// store with sliding expiration, resolves effective permissions by merging
// role rules with per-user overrides through a two-tier decision cache,
// and gates high-risk override changes behind a two-person approval
// workflow.
//
// The package is the public surface: [Engine], [Builder], [Config], the
// error taxonomy, and the storage interfaces ([UserProvider], [RuleStore],
// [ApprovalStore]). Flow orchestration, cache internals, audit dispatch,
// and counters live under internal/ and stay unexported.
//
// Engine methods are safe for concurrent use after [Builder.Build]. The
// core fails closed: no matching rule denies, a session store outage
// denies unless bypass is explicitly configured, and cache failures fall
// back to the system of record, never to an implicit allow.
package authcore
