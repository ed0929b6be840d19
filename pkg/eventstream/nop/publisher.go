// Package nop provides the publisher used when events are disabled.
package nop

import (
	"context"
	"sync/atomic"

	"github.com/papercomputeco/recall/pkg/eventstream"
)

// Publisher accepts memory events and drops them.
type Publisher struct {
	discarded atomic.Int64
}

var _ eventstream.Publisher = (*Publisher)(nil)

func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish rejects nil events and discards the rest.
func (p *Publisher) Publish(_ context.Context, event *eventstream.MemoryEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	p.discarded.Add(1)
	return nil
}

// Discarded reports how many events were dropped.
func (p *Publisher) Discarded() int64 {
	return p.discarded.Load()
}

func (p *Publisher) Close() error {
	return nil
}
