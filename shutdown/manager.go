package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds the whole shutdown sequence.
const DefaultTimeout = 30 * time.Second

// Manager coordinates previewd's graceful stop.
//
// This organism composes:
//   - OperationTracker: in-flight API requests and renders
//   - Registry: ordered cleanup handlers
//   - SignalCounter: SIGINT/SIGTERM handling with a forced exit on repeat
//
// Usage:
//
//	manager := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout()))
//	manager.Register("http", shutdown.PriorityServer, shutdown.HTTPServer(logger, srv))
//	manager.Start()
//
//	<-manager.Context().Done()
//	err := manager.Shutdown()
//	os.Exit(core.ExitCodeForSignal(manager.Signal()))
type Manager struct {
	logger  *zap.Logger
	timeout time.Duration
	exit    func(code int)

	mu       sync.Mutex
	started  bool
	shutdown bool

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *Registry
	signals  *SignalCounter
	sigChan  chan os.Signal
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout sets the shutdown budget. Default is DefaultTimeout.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// WithExitFunc replaces os.Exit for the forced exit on a second signal.
func WithExitFunc(exit func(code int)) ManagerOption {
	return func(m *Manager) {
		m.exit = exit
	}
}

// NewManager creates a manager. Signals are not handled until Start.
func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		logger:   logger,
		timeout:  DefaultTimeout,
		exit:     os.Exit,
		ctx:      ctx,
		cancel:   cancel,
		tracker:  NewOperationTracker(),
		registry: NewRegistry(),
		sigChan:  make(chan os.Signal, 2),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.signals = NewSignalCounter(2, func(sig os.Signal) {
		m.logger.Warn("Received second signal, forcing immediate exit", zap.Stringer("signal", sig))
		m.exit(1)
	})
	return m
}

// Context is cancelled when the first signal arrives or Stop is called.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Tracker returns the operation tracker shared with the HTTP layer.
func (m *Manager) Tracker() *OperationTracker {
	return m.tracker
}

// Register adds a cleanup handler. See the Priority constants.
func (m *Manager) Register(name string, priority int, fn Func) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("Registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority),
	)
}

// Start listens for SIGINT and SIGTERM. Calling it again is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range m.sigChan {
			m.handleSignal(sig)
		}
	}()
	m.logger.Debug("Shutdown manager listening for signals")
}

func (m *Manager) handleSignal(sig os.Signal) {
	if m.signals.Record(sig) == 1 {
		m.logger.Info("Received shutdown signal, initiating graceful shutdown",
			zap.Stringer("signal", sig),
		)
		m.cancel()
	}
}

// Stop cancels the managed context without a signal, for example when the
// HTTP server fails.
func (m *Manager) Stop() {
	m.cancel()
}

// Signal returns the signal that started the shutdown, or nil.
func (m *Manager) Signal() os.Signal {
	return m.signals.First()
}

// Shutdown runs the stop sequence once:
//  1. Close the tracker so new operations are rejected
//  2. Wait for in-flight operations within the budget
//  3. Run the cleanup handlers with what is left of it, at least a second
//
// The returned error joins every handler failure.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	m.mu.Unlock()
	m.cancel()

	start := time.Now()
	m.logger.Info("Initiating graceful shutdown",
		zap.Duration("timeout", m.timeout),
		zap.Int("registered_handlers", m.registry.Count()),
	)

	// Step 1: Stop accepting new operations
	m.tracker.Close()

	// Step 2: Drain
	if active := m.tracker.ActiveCount(); active > 0 {
		m.logger.Info("Waiting for in-flight operations", zap.Int64("active_count", active))
	}
	waitCtx, cancelWait := context.WithTimeout(context.Background(), m.timeout)
	if err := m.tracker.Wait(waitCtx); err != nil {
		m.logger.Warn("Timeout waiting for in-flight operations",
			zap.Duration("waited", time.Since(start)),
			zap.Int64("remaining_ops", m.tracker.ActiveCount()),
		)
	}
	cancelWait()

	// Step 3: Cleanup
	remaining := max(m.timeout-time.Since(start), time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	m.logger.Info("Executing cleanup handlers", zap.Strings("handlers", m.registry.Names()))
	err := m.registry.Run(ctx)

	m.mu.Lock()
	if m.started {
		signal.Stop(m.sigChan)
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("Shutdown completed with errors",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return err
	}
	m.logger.Info("Graceful shutdown completed", zap.Duration("duration", time.Since(start)))
	return nil
}

// Wait blocks until the managed context is cancelled.
func (m *Manager) Wait() {
	<-m.ctx.Done()
}

// WrapOperation runs fn as a tracked operation. It returns ErrTrackerClosed
// without calling fn once shutdown has begun.
func (m *Manager) WrapOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	if !m.tracker.Start() {
		m.logger.Debug("Operation rejected, shutting down", zap.String("operation", name))
		return ErrTrackerClosed
	}
	defer m.tracker.Done()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// ActiveOperations returns the number of in-flight operations.
func (m *Manager) ActiveOperations() int64 {
	return m.tracker.ActiveCount()
}

// IsShuttingDown reports whether Shutdown has begun.
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown || m.tracker.IsClosed()
}

// RegisteredHandlers returns handler names in execution order.
func (m *Manager) RegisteredHandlers() []string {
	return m.registry.Names()
}
