package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"preview_engine/previewkit"
)

// ProcessLoaderConfig configures out-of-process execution units.
type ProcessLoaderConfig struct {
	// Executable is the worker binary. Empty means the current executable.
	Executable string
	// Args are passed to the worker.
	Args []string
	// StartTimeout bounds the wait for the worker socket.
	StartTimeout time.Duration
}

// ProcessLoader spawns one worker process per generation and talks to it
// over HTTP on a unix socket.
type ProcessLoader struct {
	cfg    ProcessLoaderConfig
	logger *zap.Logger
}

// NewProcessLoader creates a process loader.
func NewProcessLoader(cfg ProcessLoaderConfig, logger *zap.Logger) *ProcessLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 5 * time.Second
	}
	return &ProcessLoader{cfg: cfg, logger: logger}
}

// Load starts a worker for gen and reads its catalog.
func (l *ProcessLoader) Load(ctx context.Context, gen Generation) (Unit, error) {
	if err := gen.Validate(); err != nil {
		return nil, err
	}

	executable := l.cfg.Executable
	if executable == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("%w: locate own executable: %v", ErrWorkerStart, err)
		}
		executable = self
	}

	dir, err := os.MkdirTemp("", "previewd-")
	if err != nil {
		return nil, fmt.Errorf("%w: socket dir: %v", ErrWorkerStart, err)
	}
	socket := filepath.Join(dir, "worker.sock")

	cmd := exec.Command(executable, l.cfg.Args...)
	cmd.Env = append(os.Environ(),
		previewkit.EnvWorkerSocket+"="+socket,
		previewkit.EnvWorkerResources+"="+strings.Join(gen.ResourceRoots(), string(os.PathListSeparator)),
	)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: %s: %v", ErrWorkerStart, executable, err)
	}

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	u := &processUnit{
		cmd:    cmd,
		dir:    dir,
		exited: exited,
		logger: l.logger.With(zap.Int64("generation", gen.Counter), zap.Int("pid", cmd.Process.Pid)),
		client: &http.Client{Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socket)
			},
		}},
	}

	if err := waitForSocket(ctx, socket, l.cfg.StartTimeout, exited); err != nil {
		u.Close()
		return nil, err
	}

	if err := u.loadCatalog(ctx); err != nil {
		u.Close()
		return nil, err
	}

	u.logger.Info("Worker started",
		zap.String("executable", executable),
		zap.String("library", u.catalog.Library),
		zap.Int("functions", len(u.catalog.Functions)))
	return u, nil
}

// waitForSocket polls for the worker socket until it appears, the worker
// exits or the timeout elapses.
func waitForSocket(ctx context.Context, path string, timeout time.Duration, exited <-chan struct{}) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		select {
		case <-tick.C:
		case <-exited:
			return fmt.Errorf("%w: worker exited before opening %s", ErrWorkerStart, path)
		case <-deadline.C:
			return fmt.Errorf("%w: timeout waiting for worker socket at %s", ErrWorkerStart, path)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type processUnit struct {
	cmd     *exec.Cmd
	dir     string
	exited  <-chan struct{}
	client  *http.Client
	catalog previewkit.CatalogResponse
	logger  *zap.Logger

	closeOnce sync.Once
}

func (u *processUnit) loadCatalog(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://worker/v1/catalog", nil)
	if err != nil {
		return err
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: catalog: %v", ErrWorkerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: catalog status %d", ErrProtocol, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&u.catalog); err != nil {
		return fmt.Errorf("%w: decode catalog: %v", ErrProtocol, err)
	}
	if u.catalog.Version != ProtocolVersion {
		return fmt.Errorf("%w: worker speaks protocol %d, caller %d", ErrProtocol, u.catalog.Version, ProtocolVersion)
	}
	return nil
}

func (u *processUnit) ResolveEntryPoint(name string) (EntryPoint, error) {
	if !slices.Contains(u.catalog.EntryPoints, name) {
		return EntryPoint{}, fmt.Errorf("%w: %s in worker library %s", ErrEntryPointNotFound, name, u.catalog.Library)
	}
	return EntryPoint{Name: name}, nil
}

func (u *processUnit) ResolveFunction(ctx context.Context, id string) (FunctionHandle, error) {
	h, err := ParseFunctionID(id)
	if err != nil {
		return FunctionHandle{}, err
	}
	if !slices.Contains(u.catalog.Functions, id) {
		return FunctionHandle{}, fmt.Errorf("%w: %s in worker library %s", ErrFunctionNotFound, id, u.catalog.Library)
	}
	return h, nil
}

func (u *processUnit) Invoke(ctx context.Context, entry EntryPoint, fn FunctionHandle, param any,
	widthDp, heightDp int, density, fontScale float64, darkMode bool,
	locale string, rtl, inspectionMode bool, insetsWire string,
) (RawImage, error) {
	select {
	case <-u.exited:
		return RawImage{}, fmt.Errorf("%w: worker process has exited", ErrWorkerUnavailable)
	default:
	}

	args, err := previewkit.EncodeArgs(previewkit.Invocation{
		Function:       fn.ID,
		Param:          param,
		WidthDp:        widthDp,
		HeightDp:       heightDp,
		Density:        density,
		FontScale:      fontScale,
		DarkMode:       darkMode,
		Locale:         locale,
		RTL:            rtl,
		InspectionMode: inspectionMode,
		Insets:         insetsWire,
	})
	if err != nil {
		return RawImage{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	body, err := json.Marshal(previewkit.InvokeRequest{
		Version:    ProtocolVersion,
		EntryPoint: entry.Name,
		Args:       args,
	})
	if err != nil {
		return RawImage{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://worker/v1/invoke", bytes.NewReader(body))
	if err != nil {
		return RawImage{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return RawImage{}, fmt.Errorf("%w: %v", ErrWorkerUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return RawImage{}, fmt.Errorf("%w: read response: %v", ErrWorkerUnavailable, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		img, err := DecodePNG(data)
		if err != nil {
			return RawImage{}, &InvocationError{Message: "unexpected result shape: " + err.Error()}
		}
		return img, nil
	case http.StatusUnprocessableEntity:
		var e previewkit.ErrorResponse
		if err := json.Unmarshal(data, &e); err != nil {
			return RawImage{}, fmt.Errorf("%w: decode error response: %v", ErrProtocol, err)
		}
		return RawImage{}, &InvocationError{Message: e.Text()}
	default:
		// 400 (Protocol set), 409 and anything unexpected.
		var e previewkit.ErrorResponse
		_ = json.Unmarshal(data, &e)
		return RawImage{}, fmt.Errorf("%w: status %d: %s", ErrProtocol, resp.StatusCode, e.Message)
	}
}

// Close stops the worker: interrupt first, kill after a grace period.
func (u *processUnit) Close() error {
	var err error
	u.closeOnce.Do(func() {
		defer os.RemoveAll(u.dir)
		u.client.CloseIdleConnections()

		select {
		case <-u.exited:
			return
		default:
		}

		if sigErr := u.cmd.Process.Signal(os.Interrupt); sigErr != nil && !errors.Is(sigErr, os.ErrProcessDone) {
			u.logger.Debug("Interrupt failed, killing worker", zap.Error(sigErr))
		}
		select {
		case <-u.exited:
		case <-time.After(2 * time.Second):
			if killErr := u.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
				err = killErr
			}
			<-u.exited
		}
		u.logger.Info("Worker stopped")
	})
	return err
}
