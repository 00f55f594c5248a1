package shutdown

import (
	"context"
	"errors"
	"os"
	"slices"
	"sync"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestManager_NewManager(t *testing.T) {
	manager := NewManager(zaptest.NewLogger(t))
	if manager.IsShuttingDown() {
		t.Error("new manager should not be shutting down")
	}
	if manager.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", manager.timeout, DefaultTimeout)
	}
	if manager.Signal() != nil {
		t.Errorf("Signal() = %v, want nil", manager.Signal())
	}
	if manager.Tracker() == nil {
		t.Error("Tracker() = nil")
	}
}

func TestManager_WrapOperation(t *testing.T) {
	manager := NewManager(zaptest.NewLogger(t))

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- manager.WrapOperation(context.Background(), "render", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	if got := manager.ActiveOperations(); got != 1 {
		t.Errorf("ActiveOperations() = %d, want 1", got)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("WrapOperation() = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := manager.WrapOperation(ctx, "cancelled", func(context.Context) error {
		t.Error("fn must not run with a cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("WrapOperation(cancelled) = %v", err)
	}
}

func TestManager_WrapOperation_RejectsAfterShutdown(t *testing.T) {
	manager := NewManager(zaptest.NewLogger(t), WithTimeout(time.Second))
	if err := manager.Shutdown(); err != nil {
		t.Fatal(err)
	}
	err := manager.WrapOperation(context.Background(), "late", func(context.Context) error {
		t.Error("fn must not run after shutdown")
		return nil
	})
	if !errors.Is(err, ErrTrackerClosed) {
		t.Errorf("WrapOperation() = %v, want ErrTrackerClosed", err)
	}
	if !manager.IsShuttingDown() {
		t.Error("IsShuttingDown() = false")
	}
	select {
	case <-manager.Context().Done():
	default:
		t.Error("Shutdown() should cancel the context")
	}
}

func TestManager_Shutdown_RunsHandlersAfterDrain(t *testing.T) {
	manager := NewManager(zaptest.NewLogger(t), WithTimeout(5*time.Second))

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}
	manager.Register("logger", PriorityLogger, func(context.Context) error {
		record("logger")
		return nil
	})
	manager.Register("sessions", PrioritySessions, func(context.Context) error {
		record("sessions")
		return nil
	})

	started := make(chan struct{})
	go func() {
		_ = manager.WrapOperation(context.Background(), "render", func(context.Context) error {
			close(started)
			time.Sleep(30 * time.Millisecond)
			record("render")
			return nil
		})
	}()
	<-started

	if err := manager.Shutdown(); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	want := []string{"render", "sessions", "logger"}
	if !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	if err := manager.Shutdown(); err != nil {
		t.Errorf("second Shutdown() = %v", err)
	}
}

func TestManager_Shutdown_ReportsErrors(t *testing.T) {
	manager := NewManager(zaptest.NewLogger(t), WithTimeout(time.Second))
	errClose := errors.New("close failed")
	manager.Register("history", PriorityStorage, func(context.Context) error { return errClose })
	if err := manager.Shutdown(); !errors.Is(err, errClose) {
		t.Errorf("Shutdown() = %v, want errClose", err)
	}
}

func TestManager_Shutdown_TimesOutWaitingForOperations(t *testing.T) {
	manager := NewManager(zaptest.NewLogger(t), WithTimeout(100*time.Millisecond))

	started := make(chan struct{})
	block := make(chan struct{})
	defer close(block)
	go func() {
		_ = manager.WrapOperation(context.Background(), "stuck", func(context.Context) error {
			close(started)
			<-block
			return nil
		})
	}()
	<-started

	var budget time.Duration
	manager.Register("check", 1, func(ctx context.Context) error {
		deadline, _ := ctx.Deadline()
		budget = time.Until(deadline)
		return nil
	})

	start := time.Now()
	_ = manager.Shutdown()
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("Shutdown() returned after %v, expected to wait for the timeout", elapsed)
	}
	if budget < 500*time.Millisecond {
		t.Errorf("cleanup budget = %v, want at least the one second floor", budget)
	}
}

func TestManager_Signals(t *testing.T) {
	exitCode := -1
	manager := NewManager(zaptest.NewLogger(t), WithExitFunc(func(code int) { exitCode = code }))

	manager.handleSignal(syscall.SIGTERM)
	select {
	case <-manager.Context().Done():
	default:
		t.Fatal("first signal should cancel the context")
	}
	if exitCode != -1 {
		t.Fatal("first signal must not force an exit")
	}
	if manager.Signal() != syscall.SIGTERM {
		t.Errorf("Signal() = %v", manager.Signal())
	}

	manager.handleSignal(os.Interrupt)
	if exitCode != 1 {
		t.Errorf("second signal exit code = %d, want 1", exitCode)
	}
	if manager.Signal() != syscall.SIGTERM {
		t.Error("Signal() should keep the first signal")
	}
}

func TestManager_StartAndStop(t *testing.T) {
	manager := NewManager(zaptest.NewLogger(t), WithTimeout(time.Second))
	manager.Start()
	manager.Start()
	manager.Stop()
	manager.Wait()
	if manager.Signal() != nil {
		t.Errorf("Stop() should not record a signal, got %v", manager.Signal())
	}
	if err := manager.Shutdown(); err != nil {
		t.Errorf("Shutdown() = %v", err)
	}
}
