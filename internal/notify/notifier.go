// Package notify defines the fire-and-forget notification contract. Delivery
// failures are logged and never affect the outcome of the task that
// triggered them.
package notify

import "context"

// EventKind identifies the kind of event a notification describes.
type EventKind string

// Notification event kinds.
const (
	EventProcessingCompleted EventKind = "processing_completed"
	EventProcessingFailed    EventKind = "processing_failed"
)

// Payload carries the user-facing details of a processing outcome.
type Payload struct {
	Filename string   `json:"filename"`
	Summary  string   `json:"summary,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Notifier delivers processing events to the user's messaging channel.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind EventKind, payload Payload) error
}
