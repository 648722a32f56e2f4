// Package client assembles sessions, routers and stores into the two
// long-lived clients: the account-wide notification client and the room
// client.
package client

import (
	"context"
	"net/http"
	"sync"

	"github.com/tinyland-inc/chatline/pkg/api"
	"github.com/tinyland-inc/chatline/pkg/bus"
	"github.com/tinyland-inc/chatline/pkg/logger"
	"github.com/tinyland-inc/chatline/pkg/protocol"
	"github.com/tinyland-inc/chatline/pkg/router"
)

// Dispatcher owns the single goroutine that runs event handlers. Sessions
// publish into its bus from their read goroutines; Run hands each event to
// the router registered for the event's channel.
type Dispatcher struct {
	bus *bus.EventBus

	mu     sync.RWMutex
	routes map[protocol.Channel]*router.Router
	ctx    context.Context
}

func NewDispatcher(b *bus.EventBus) *Dispatcher {
	if b == nil {
		b = bus.NewEventBus(0)
	}
	return &Dispatcher{
		bus:    b,
		routes: make(map[protocol.Channel]*router.Router),
		ctx:    context.Background(),
	}
}

func (d *Dispatcher) Route(ch protocol.Channel, r *router.Router) {
	d.mu.Lock()
	d.routes[ch] = r
	d.mu.Unlock()
}

func (d *Dispatcher) Remove(ch protocol.Channel) {
	d.mu.Lock()
	delete(d.routes, ch)
	d.mu.Unlock()
}

// Publish queues ev for dispatch. It is the session OnEvent callback.
func (d *Dispatcher) Publish(ev protocol.InboundEvent) {
	d.mu.RLock()
	ctx := d.ctx
	d.mu.RUnlock()
	if err := d.bus.Publish(ctx, ev); err != nil {
		logger.DebugCF("client", "Event not queued", map[string]any{
			"channel": ev.Channel.String(),
			"kind":    ev.Kind,
			"error":   err.Error(),
		})
	}
}

// Run dispatches events until ctx is done or the bus is closed.
func (d *Dispatcher) Run(ctx context.Context) {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()

	for {
		ev, ok := d.bus.Consume(ctx)
		if !ok {
			return
		}
		d.mu.RLock()
		r := d.routes[ev.Channel]
		d.mu.RUnlock()
		if r == nil {
			logger.DebugCF("client", "No router for channel", map[string]any{"channel": ev.Channel.String()})
			continue
		}
		_ = r.Dispatch(ctx, ev)
	}
}

func (d *Dispatcher) Close() {
	d.bus.Close()
}

// handshakeHeader carries the session cookies and an Origin matching the
// site, as a browser would.
func handshakeHeader(c *api.Client) http.Header {
	h := http.Header{}
	if cookies := c.Cookies(); cookies != "" {
		h.Set("Cookie", cookies)
	}
	h.Set("Origin", c.BaseURL())
	return h
}
