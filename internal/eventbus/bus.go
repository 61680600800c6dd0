// Package eventbus dispatches write-coordinator and lifecycle-engine
// notifications ({record, supersede, accept, delete, decay}) to in-process
// subscribers. It has no persistence or cross-process delivery of its own;
// a handler that needs durability writes to the episodic log itself.
package eventbus

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
)

// Bus dispatches events to registered handlers in priority order.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// New creates an empty event bus.
func New() *Bus {
	return &Bus{}
}

// Register adds a handler to the bus. Handlers are sorted by priority on
// each Dispatch call, so registration order does not matter.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Unregister removes a handler by ID. Returns true if a handler was removed.
func (b *Bus) Unregister(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.ID() == id {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Handlers returns all registered handlers, sorted by priority.
func (b *Bus) Handlers() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := append([]Handler(nil), b.handlers...)
	sort.Slice(out, func(i, j int) bool { return out[i].Priority() < out[j].Priority() })
	return out
}

// Dispatch sends event to every registered handler that handles its type,
// in priority order. Handler errors are logged but never stop the chain or
// propagate to the caller — the bus is a best-effort observer, never a gate
// on the write path that produced the event.
func (b *Bus) Dispatch(ctx context.Context, event *Event) (*Result, error) {
	if event == nil {
		return nil, fmt.Errorf("eventbus: nil event")
	}

	result := &Result{}
	for _, h := range b.matchingHandlers(event.Type) {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("eventbus: context canceled: %w", err)
		}
		if err := h.Handle(ctx, event, result); err != nil {
			log.Printf("eventbus: handler %q error for %s: %v", h.ID(), event.Type, err)
		}
	}
	return result, nil
}

func (b *Bus) matchingHandlers(t EventType) []Handler {
	var out []Handler
	for _, h := range b.Handlers() {
		for _, handled := range h.Handles() {
			if handled == t {
				out = append(out, h)
				break
			}
		}
	}
	return out
}
