// Package events defines the task lifecycle transition events emitted by the
// pipeline and a simple in-memory emitter for dispatching them to
// observability consumers.
package events
