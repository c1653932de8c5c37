// Package testutil provides in-process test doubles for the framework's
// external collaborators.
package testutil

import (
	"context"
	"sync"

	"github.com/c360/streamlytics/analytic"
	"github.com/c360/streamlytics/data"
)

// MemBus is an in-memory Bus implementation delivering records
// synchronously to subscribers. It records every published record so
// tests can assert on channel traffic without a broker.
type MemBus struct {
	mu        sync.Mutex
	subs      map[string][]*memSub
	published map[string][]*data.Data
}

type memSub struct {
	bus     *MemBus
	channel string
	handler func(context.Context, *data.Data)
	active  bool
}

// NewMemBus creates an empty in-memory bus
func NewMemBus() *MemBus {
	return &MemBus{
		subs:      make(map[string][]*memSub),
		published: make(map[string][]*data.Data),
	}
}

// Publish delivers rec to every active subscriber of channel
func (b *MemBus) Publish(ctx context.Context, channel string, rec *data.Data) error {
	b.mu.Lock()
	b.published[channel] = append(b.published[channel], rec.Clone())
	targets := make([]*memSub, 0, len(b.subs[channel]))
	for _, s := range b.subs[channel] {
		if s.active {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		s.handler(ctx, rec.Clone())
	}
	return nil
}

// Subscribe registers a synchronous handler for channel
func (b *MemBus) Subscribe(
	_ context.Context, channel string, handler func(context.Context, *data.Data),
) (analytic.Subscription, error) {
	s := &memSub{bus: b, channel: channel, handler: handler, active: true}
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], s)
	b.mu.Unlock()
	return s, nil
}

func (s *memSub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.active = false
	return nil
}

// Records returns all records published on channel, in order
func (b *MemBus) Records(channel string) []*data.Data {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*data.Data, len(b.published[channel]))
	copy(out, b.published[channel])
	return out
}

// SubscriberCount returns the number of active subscribers on channel
func (b *MemBus) SubscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subs[channel] {
		if s.active {
			n++
		}
	}
	return n
}
