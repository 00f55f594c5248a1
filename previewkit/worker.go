package previewkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Environment variables understood by a worker process.
const (
	EnvWorkerSocket    = "PREVIEW_WORKER_SOCKET"
	EnvWorkerResources = "PREVIEW_WORKER_RESOURCES"
)

// WorkerConfig configures ServeWorker.
type WorkerConfig struct {
	SocketPath    string
	ResourceRoots []string
}

// WorkerConfigFromEnv reads the worker configuration from the environment.
// ok is false when the process was not started as a worker.
func WorkerConfigFromEnv() (cfg WorkerConfig, ok bool) {
	socket := os.Getenv(EnvWorkerSocket)
	if socket == "" {
		return WorkerConfig{}, false
	}
	return WorkerConfig{
		SocketPath:    socket,
		ResourceRoots: filepath.SplitList(os.Getenv(EnvWorkerResources)),
	}, true
}

// ServeWorker serves lib over HTTP on a unix socket until ctx is cancelled.
//
// Routes:
//   - GET /v1/catalog: CatalogResponse
//   - POST /v1/invoke: InvokeRequest; 200 with image/png on success, 422 with
//     ErrorResponse when the invoked function failed, 400 with a protocol
//     ErrorResponse for undecodable requests or arguments, 409 for a version
//     mismatch
func ServeWorker(ctx context.Context, lib *Library, cfg WorkerConfig, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SocketPath == "" {
		return errors.New("previewkit: worker socket path is empty")
	}

	// A stale socket from a crashed worker would make Listen fail.
	_ = os.Remove(cfg.SocketPath)
	ln, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("previewkit: listen on %s: %w", cfg.SocketPath, err)
	}
	defer os.Remove(cfg.SocketPath)

	srv := &http.Server{
		Handler:           NewWorkerHandler(lib, cfg.ResourceRoots, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	logger.Info("Preview worker listening",
		zap.String("socket", cfg.SocketPath),
		zap.String("library", lib.Name()),
		zap.Int("functions", len(lib.FunctionIDs())))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewWorkerHandler returns the worker HTTP handler for lib. Invocations run
// with roots installed as the ambient resource roots.
func NewWorkerHandler(lib *Library, roots []string, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &worker{lib: lib, roots: roots, logger: logger}
	return w.routes()
}

type worker struct {
	lib    *Library
	roots  []string
	logger *zap.Logger
}

func (w *worker) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/catalog", w.handleCatalog)
	mux.HandleFunc("POST /v1/invoke", w.handleInvoke)
	return mux
}

func (w *worker) handleCatalog(rw http.ResponseWriter, r *http.Request) {
	entries := make([]string, 0, 2)
	for name := range w.lib.EntryPoints() {
		entries = append(entries, name)
	}
	sort.Strings(entries)
	writeJSON(rw, http.StatusOK, CatalogResponse{
		Version:     ProtocolVersion,
		Library:     w.lib.Name(),
		EntryPoints: entries,
		Functions:   w.lib.FunctionIDs(),
	})
}

func (w *worker) handleInvoke(rw http.ResponseWriter, r *http.Request) {
	var req InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(rw, http.StatusBadRequest, ErrorResponse{Message: "decode request: " + err.Error(), Protocol: true})
		return
	}
	if req.Version != ProtocolVersion {
		writeJSON(rw, http.StatusConflict, ErrorResponse{
			Message: fmt.Sprintf("protocol version %d not supported, worker speaks %d", req.Version, ProtocolVersion),
		})
		return
	}

	entry, ok := w.lib.EntryPoints()[req.EntryPoint]
	if !ok {
		writeJSON(rw, http.StatusBadRequest, ErrorResponse{Message: fmt.Sprintf("unknown entry point %q", req.EntryPoint), Protocol: true})
		return
	}

	inv, err := DecodeArgs(req.Args)
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, ErrorResponse{Message: err.Error(), Protocol: true})
		return
	}

	start := time.Now()
	pix, width, height, errText := w.call(entry, inv)
	if message, bad := CutBadInvocation(errText); bad {
		w.logger.Warn("Invocation arguments rejected",
			zap.String("entry_point", req.EntryPoint),
			zap.String("function", inv.Function),
			zap.String("message", message))
		writeJSON(rw, http.StatusBadRequest, ErrorResponse{Message: message, Protocol: true})
		return
	}
	if errText != "" {
		w.logger.Debug("Invocation failed",
			zap.String("entry_point", req.EntryPoint),
			zap.String("function", inv.Function),
			zap.Duration("duration", time.Since(start)))
		writeJSON(rw, http.StatusUnprocessableEntity, SplitErrorText(errText))
		return
	}

	img := &image.NRGBA{Pix: pix, Stride: 4 * width, Rect: image.Rect(0, 0, width, height)}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		writeJSON(rw, http.StatusInternalServerError, ErrorResponse{Message: "encode png: " + err.Error()})
		return
	}

	rw.Header().Set("Content-Type", "image/png")
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write(buf.Bytes())
}

// call runs entry inside the worker's resource scope.
func (w *worker) call(entry EntryFunc, inv Invocation) ([]byte, int, int, string) {
	scope := EnterResources(w.roots)
	defer scope.Release()
	return inv.Call(entry)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
