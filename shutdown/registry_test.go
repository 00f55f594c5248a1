package shutdown

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestRegistry_RunsInPriorityOrder(t *testing.T) {
	registry := NewRegistry()
	var order []string
	record := func(name string) Func {
		return func(context.Context) error {
			order = append(order, name)
			return nil
		}
	}
	registry.Register("logger", PriorityLogger, record("logger"))
	registry.Register("http", PriorityServer, record("http"))
	registry.Register("sessions", PrioritySessions, record("sessions"))
	registry.Register("websocket", PriorityServer, record("websocket"))

	want := []string{"http", "websocket", "sessions", "logger"}
	if got := registry.Names(); !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if err := registry.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestRegistry_CollectsErrors(t *testing.T) {
	registry := NewRegistry()
	errDB := errors.New("database locked")
	ran := false
	registry.Register("history", PriorityStorage, func(context.Context) error { return errDB })
	registry.Register("files", PriorityFiles, func(context.Context) error {
		ran = true
		return nil
	})

	err := registry.Run(context.Background())
	if !errors.Is(err, errDB) {
		t.Fatalf("Run() = %v, want wrapped errDB", err)
	}
	if !strings.HasPrefix(err.Error(), "history: ") {
		t.Errorf("error %q should name the handler", err)
	}
	if !ran {
		t.Error("handlers after a failure must still run")
	}
}

func TestRegistry_RunOnce(t *testing.T) {
	registry := NewRegistry()
	calls := 0
	registry.Register("once", 1, func(context.Context) error {
		calls++
		return nil
	})
	_ = registry.Run(context.Background())
	_ = registry.Run(context.Background())
	registry.Register("late", 1, func(context.Context) error {
		calls++
		return nil
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !registry.IsClosed() || registry.Count() != 1 {
		t.Errorf("IsClosed() = %v, Count() = %d", registry.IsClosed(), registry.Count())
	}
}

func TestRegistry_PassesContext(t *testing.T) {
	registry := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	registry.Register("ctx", 1, func(ctx context.Context) error { return ctx.Err() })
	if err := registry.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}
