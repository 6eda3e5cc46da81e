// Package watcher turns filesystem notifications on watched log files into
// per-service change events.
package watcher

import (
	"context"
)

// ChangeEvent signals that a watched service's log file was created or
// written to. It carries no content: the tail tracker decides what is new.
type ChangeEvent struct {
	Service string
	Path    string
}

// Source is the interface for receiving change events. Implementations
// include the real fsnotify source and test mocks.
type Source interface {
	// Events returns a channel of change events. The channel is closed when
	// the source fails or the context is cancelled.
	Events(ctx context.Context) (<-chan ChangeEvent, error)

	// Stop signals the source to shut down.
	Stop()
}
