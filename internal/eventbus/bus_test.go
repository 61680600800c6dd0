package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type testHandler struct {
	id       string
	handles  []EventType
	priority int
	fn       func(ctx context.Context, event *Event, result *Result) error
}

func (h *testHandler) ID() string           { return h.id }
func (h *testHandler) Handles() []EventType { return h.handles }
func (h *testHandler) Priority() int        { return h.priority }

func (h *testHandler) Handle(ctx context.Context, event *Event, result *Result) error {
	if h.fn != nil {
		return h.fn(ctx, event, result)
	}
	return nil
}

func TestNew(t *testing.T) {
	bus := New()
	if bus == nil {
		t.Fatal("New() returned nil")
	}
	if len(bus.Handlers()) != 0 {
		t.Fatalf("Handlers() = %d, want 0", len(bus.Handlers()))
	}
}

func TestDispatchNoHandlers(t *testing.T) {
	bus := New()
	result, err := bus.Dispatch(context.Background(), &Event{Type: EventRecord})
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if result == nil {
		t.Fatal("Dispatch() returned nil result")
	}
}

func TestDispatchNilEvent(t *testing.T) {
	bus := New()
	if _, err := bus.Dispatch(context.Background(), nil); err == nil {
		t.Fatal("Dispatch(nil) error = nil, want error")
	}
}

func TestDispatchMatchingHandlers(t *testing.T) {
	bus := New()
	var mu sync.Mutex
	var called []string
	record := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		called = append(called, name)
	}

	bus.Register(&testHandler{
		id:       "record-handler",
		handles:  []EventType{EventRecord, EventAccept},
		priority: 10,
		fn: func(ctx context.Context, event *Event, result *Result) error {
			record("record-handler")
			return nil
		},
	})
	bus.Register(&testHandler{
		id:       "decay-handler",
		handles:  []EventType{EventDecay},
		priority: 10,
		fn: func(ctx context.Context, event *Event, result *Result) error {
			record("decay-handler")
			return nil
		},
	})

	if _, err := bus.Dispatch(context.Background(), &Event{Type: EventRecord}); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if len(called) != 1 || called[0] != "record-handler" {
		t.Fatalf("called = %v, want [record-handler]", called)
	}
}

func TestDispatchPriorityOrder(t *testing.T) {
	bus := New()
	var order []string

	bus.Register(&testHandler{
		id:       "second",
		handles:  []EventType{EventSupersede},
		priority: 20,
		fn: func(ctx context.Context, event *Event, result *Result) error {
			order = append(order, "second")
			return nil
		},
	})
	bus.Register(&testHandler{
		id:       "first",
		handles:  []EventType{EventSupersede},
		priority: 5,
		fn: func(ctx context.Context, event *Event, result *Result) error {
			order = append(order, "first")
			return nil
		},
	})

	if _, err := bus.Dispatch(context.Background(), &Event{Type: EventSupersede}); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("dispatch order = %v, want [first second]", order)
	}
}

func TestDispatchHandlerErrorDoesNotStopChain(t *testing.T) {
	bus := New()
	var secondRan bool

	bus.Register(&testHandler{
		id:       "failing",
		handles:  []EventType{EventDelete},
		priority: 1,
		fn: func(ctx context.Context, event *Event, result *Result) error {
			return errors.New("boom")
		},
	})
	bus.Register(&testHandler{
		id:       "ok",
		handles:  []EventType{EventDelete},
		priority: 2,
		fn: func(ctx context.Context, event *Event, result *Result) error {
			secondRan = true
			return nil
		},
	})

	if _, err := bus.Dispatch(context.Background(), &Event{Type: EventDelete}); err != nil {
		t.Fatalf("Dispatch() error: %v, want nil (handler errors are logged, not propagated)", err)
	}
	if !secondRan {
		t.Fatal("second handler did not run after first handler errored")
	}
}

func TestDispatchResultAccumulates(t *testing.T) {
	bus := New()
	bus.Register(&testHandler{
		id:       "warner",
		handles:  []EventType{EventAccept},
		priority: 1,
		fn: func(ctx context.Context, event *Event, result *Result) error {
			result.Warnings = append(result.Warnings, "low confidence")
			return nil
		},
	})

	result, err := bus.Dispatch(context.Background(), &Event{Type: EventAccept})
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if len(result.Warnings) != 1 || result.Warnings[0] != "low confidence" {
		t.Fatalf("result.Warnings = %v, want [low confidence]", result.Warnings)
	}
}

func TestUnregister(t *testing.T) {
	bus := New()
	bus.Register(&testHandler{id: "a", handles: []EventType{EventRecord}, priority: 1})
	bus.Register(&testHandler{id: "b", handles: []EventType{EventRecord}, priority: 2})

	if !bus.Unregister("a") {
		t.Fatal("Unregister(a) = false, want true")
	}
	if bus.Unregister("a") {
		t.Fatal("Unregister(a) second call = true, want false")
	}
	if len(bus.Handlers()) != 1 {
		t.Fatalf("Handlers() = %d, want 1", len(bus.Handlers()))
	}
}

func TestHandlersSortedByPriority(t *testing.T) {
	bus := New()
	bus.Register(&testHandler{id: "c", priority: 30})
	bus.Register(&testHandler{id: "a", priority: 10})
	bus.Register(&testHandler{id: "b", priority: 20})

	handlers := bus.Handlers()
	if len(handlers) != 3 {
		t.Fatalf("Handlers() = %d, want 3", len(handlers))
	}
	for i := 1; i < len(handlers); i++ {
		if handlers[i-1].Priority() > handlers[i].Priority() {
			t.Fatalf("Handlers() not sorted: %+v", handlers)
		}
	}
}

func TestDispatchRespectsCanceledContext(t *testing.T) {
	bus := New()
	ran := false
	bus.Register(&testHandler{
		id:       "noop",
		handles:  []EventType{EventRecord},
		priority: 1,
		fn: func(ctx context.Context, event *Event, result *Result) error {
			ran = true
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := bus.Dispatch(ctx, &Event{Type: EventRecord}); err == nil {
		t.Fatal("Dispatch() with canceled context error = nil, want error")
	}
	if ran {
		t.Fatal("handler ran despite canceled context")
	}
}
