// Package pgstore is the PostgreSQL system of record behind the engine:
// it implements UserProvider, RuleStore, and ApprovalStore on one pgx
// pool, plus an audit sink writing to permission_audits. Schema
// migrations are embedded and applied with golang-migrate.
//
// Approval settlement is the one true critical section in the module. The
// conditional UPDATE on status = 'pending' inside a transaction makes the
// two-reviewer race safe across process instances without an application
// lock.
package pgstore
