package router

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tinyland-inc/chatline/pkg/logger"
	"github.com/tinyland-inc/chatline/pkg/protocol"
)

var (
	ErrUnknownKind = errors.New("unknown event kind")
	ErrBadPayload  = errors.New("bad event payload")
)

type HandlerFunc func(ctx context.Context, ev protocol.InboundEvent) error

// Router dispatches each event to the single handler registered for its kind.
// It holds nothing but the dispatch table.
type Router struct {
	name     string
	handlers map[string]HandlerFunc
}

func New(name string) *Router {
	return &Router{
		name:     name,
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers h for kind. Registering the same kind twice panics.
func (r *Router) Handle(kind string, h HandlerFunc) {
	if h == nil {
		panic("router: nil handler")
	}
	if _, exists := r.handlers[kind]; exists {
		panic(fmt.Sprintf("router: duplicate handler for kind %q", kind))
	}
	r.handlers[kind] = h
}

// Default registers the handler for frames that carry no kind.
func (r *Router) Default(h HandlerFunc) {
	r.Handle(protocol.KindChatMessage, h)
}

func (r *Router) Kinds() []string {
	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Dispatch runs the handler for ev. Unknown kinds, handler errors and handler
// panics are logged and returned; none of them escape as a panic.
func (r *Router) Dispatch(ctx context.Context, ev protocol.InboundEvent) (err error) {
	h, ok := r.handlers[ev.Kind]
	if !ok {
		logger.WarnCF("router", "Dropping event of unknown kind", map[string]any{
			"router":  r.name,
			"kind":    ev.Kind,
			"channel": ev.Channel.String(),
		})
		return fmt.Errorf("%w: %q", ErrUnknownKind, ev.Kind)
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorCF("router", "Handler panicked", map[string]any{
				"router": r.name,
				"kind":   ev.Kind,
				"panic":  fmt.Sprint(rec),
			})
			err = fmt.Errorf("handler for %q panicked: %v", ev.Kind, rec)
		}
	}()

	if err := h(ctx, ev); err != nil {
		logger.ErrorCF("router", "Handler failed", map[string]any{
			"router": r.name,
			"kind":   ev.Kind,
			"error":  err.Error(),
		})
		return fmt.Errorf("handle %q: %w", ev.Kind, err)
	}
	return nil
}

// Typed adapts a handler that takes the decoded payload. A payload that does
// not decode is reported as ErrBadPayload before fn runs.
func Typed[T any](fn func(ctx context.Context, payload T) error) HandlerFunc {
	return func(ctx context.Context, ev protocol.InboundEvent) error {
		var payload T
		if err := ev.Decode(&payload); err != nil {
			return fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return fn(ctx, payload)
	}
}
