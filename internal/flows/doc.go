// Package flows contains the session validation flow as a pure function
// over an explicit dependency struct. Keeping the flow here lets the root
// package wire stores, caches, and metrics around it without import cycles,
// and lets tests exercise every branch with plain function stubs.
package flows
