package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/recall/pkg/eventstream"
)

// RecordingPublisher keeps every published event in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.MemoryEvent
}

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) Publish(_ context.Context, event *eventstream.MemoryEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *RecordingPublisher) Close() error {
	return nil
}

// Types returns the event type of every published event, in order.
func (p *RecordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, e := range p.events {
		types[i] = e.EventType
	}
	return types
}

// Events returns a copy of the published events.
func (p *RecordingPublisher) Events() []*eventstream.MemoryEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.MemoryEvent(nil), p.events...)
}
