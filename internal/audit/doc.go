// Package audit implements the asynchronous audit pipeline. The core treats
// the audit sink as a one-way best-effort collaborator: emission never
// blocks a request, sink failures are never propagated, and shed events are
// counted so the loss is operationally visible.
package audit
