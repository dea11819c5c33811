// Package cache implements the two-tier decision cache: a per-process
// expiring LRU in front of an optional shared Redis tier. Cached entries
// are a latency optimization only; rule changes are made visible through
// explicit invalidation and bounded by the tier TTLs.
package cache
