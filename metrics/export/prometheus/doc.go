// Package prometheus exposes the engine's counters to a Prometheus
// registry. The engine keeps plain atomic counters internally; this
// package adapts a snapshot of them into const metrics on each scrape.
package prometheus
