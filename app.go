package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"preview_engine/core"
	"preview_engine/db"
	"preview_engine/metrics"
	"preview_engine/previewkit/demo"
	"preview_engine/render"
	"preview_engine/sandbox"
	"preview_engine/server"
	"preview_engine/session"
	"preview_engine/shutdown"
)

// staleWorkerAge is how old a leftover worker socket directory must be
// before shutdown removes it.
const staleWorkerAge = 24 * time.Hour

// app wires previewd's components together.
//
// This organism composes:
//   - sandbox.Loader chosen by PREVIEW_BACKEND
//   - db.Database + db.History for the render history
//   - metrics.Store for /api/metrics and /health
//   - session.Registry with the default manifest session
//   - server.Server for the HTTP surface
type app struct {
	cfg    *core.Config
	logger *zap.Logger

	loader   sandbox.Loader
	database *db.Database
	history  *db.History
	store    *metrics.Store
	sessions *session.Registry
	server   *server.Server
}

// newApp builds every component and opens the session for
// cfg.ManifestDir. On error, whatever was already opened is closed.
func newApp(ctx context.Context, cfg *core.Config, tracker *shutdown.OperationTracker, logger *zap.Logger) (_ *app, err error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		loader:   newLoader(cfg, logger),
		store:    metrics.NewStore(metrics.StoreConfig{Version: core.Version}, time.Now()),
		sessions: session.NewRegistry(logger.Named("session")),
	}
	defer func() {
		if err != nil {
			a.closeAll(context.Background())
		}
	}()

	// Step 1: Render history
	a.database, err = db.Open(ctx, cfg.HistoryDBPath())
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	a.history = db.NewHistory(db.NewRepository(a.database), logger.Named("history"))

	// Step 2: Default session
	if _, err = a.openSession(ctx, cfg.ManifestDir); err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", cfg.ManifestDir, err)
	}

	// Step 3: HTTP surface
	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Host
	srvCfg.Port = cfg.Port
	srvCfg.AccessTokenHash = cfg.AccessTokenHash
	a.server, err = server.NewServer(srvCfg, server.Deps{
		Sessions: a.sessions,
		Open:     a.openSession,
		Metrics:  a.store,
		History:  a.history,
		DB:       a.database,
		Tracker:  tracker,
	}, logger.Named("server"))
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newLoader returns the execution backend selected by cfg.Backend.
func newLoader(cfg *core.Config, logger *zap.Logger) sandbox.Loader {
	if cfg.Backend == core.BackendProcess {
		return sandbox.NewProcessLoader(sandbox.ProcessLoaderConfig{
			Executable:   cfg.WorkerExecutable,
			StartTimeout: cfg.WorkerStartTimeout(),
		}, logger.Named("worker"))
	}
	return sandbox.NewInProcessLoader(sandbox.StaticLibrary(demo.NewLibrary()))
}

// openSession opens a session whose renders feed the history and metrics
// observers under the session's ID.
func (a *app) openSession(ctx context.Context, manifestDir string) (*session.Session, error) {
	id := uuid.New()
	observers := []render.Observer{a.store.ForSession(id)}
	if a.history != nil {
		observers = append(observers, a.history.ForSession(id))
	}
	return a.sessions.Open(ctx, session.Options{
		ID:          id,
		ManifestDir: manifestDir,
		Loader:      a.loader,
		Capacity:    a.cfg.CacheCapacity,
		Observers:   observers,
	})
}

// startBackground starts the history pruning loop; it stops with ctx.
func (a *app) startBackground(ctx context.Context) {
	if retention := a.cfg.HistoryRetention(); retention > 0 {
		a.database.StartCleanupScheduler(ctx, retention, db.DefaultCleanupInterval, a.logger.Named("history"))
	}
}

// registerShutdown hands every component to the shutdown manager in stop
// order: HTTP first, then sessions so no render outlives the history writer,
// then storage, leftover worker sockets and finally the logger.
func (a *app) registerShutdown(m *shutdown.Manager) {
	m.Register("http", shutdown.PriorityServer, shutdown.HTTPServer(a.logger, a.server.HTTPServer()))
	m.Register("sessions", shutdown.PrioritySessions, shutdown.Closer(a.logger, "sessions", a.sessions))
	m.Register("history", shutdown.PriorityStorage, a.history.Close)
	m.Register("database", shutdown.PriorityStorage, shutdown.Closer(a.logger, "database", a.database))
	m.Register("worker-sockets", shutdown.PriorityFiles,
		shutdown.RemoveStale(a.logger, os.TempDir(), "previewd-*", staleWorkerAge))
	m.Register("logger", shutdown.PriorityLogger, shutdown.FlushLogger(a.logger))
}

// closeAll releases components without the shutdown manager, for startup
// failures.
func (a *app) closeAll(ctx context.Context) error {
	var errs []error
	if a.sessions != nil {
		errs = append(errs, a.sessions.Close())
	}
	if a.history != nil {
		errs = append(errs, a.history.Close(ctx))
	}
	if a.database != nil {
		errs = append(errs, a.database.Close())
	}
	return errors.Join(errs...)
}
