package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/tinyland-inc/chatline/pkg/protocol"
)

// ErrBusClosed is returned when publishing to a closed EventBus.
var ErrBusClosed = errors.New("event bus closed")

const defaultCapacity = 100

// EventBus funnels inbound events from every session into a single consumer,
// so handlers run one at a time in arrival order.
type EventBus struct {
	events chan protocol.InboundEvent
	done   chan struct{}
	closed atomic.Bool
}

func NewEventBus(capacity int) *EventBus {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &EventBus{
		events: make(chan protocol.InboundEvent, capacity),
		done:   make(chan struct{}),
	}
}

func (b *EventBus) Publish(ctx context.Context, ev protocol.InboundEvent) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	select {
	case b.events <- ev:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *EventBus) Consume(ctx context.Context) (protocol.InboundEvent, bool) {
	select {
	case ev, ok := <-b.events:
		return ev, ok
	case <-b.done:
		return protocol.InboundEvent{}, false
	case <-ctx.Done():
		return protocol.InboundEvent{}, false
	}
}

// Pending reports how many events are queued and not yet consumed.
func (b *EventBus) Pending() int {
	return len(b.events)
}

func (b *EventBus) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.done)
	}
}
