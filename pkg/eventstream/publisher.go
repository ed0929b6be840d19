// Package eventstream publishes memory lifecycle events to an external
// stream. Publishing is best effort: the engine logs publish failures and
// carries on.
package eventstream

import "context"

// Publisher publishes memory events to an event stream backend.
type Publisher interface {
	Publish(ctx context.Context, event *MemoryEvent) error
	Close() error
}
