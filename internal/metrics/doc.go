// Package metrics provides the engine's in-process counters. Counters are
// plain atomics with zero overhead when disabled; exposition formats live
// in metrics/export.
package metrics
