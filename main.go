// Command previewd renders declared UI previews and serves them over HTTP.
//
// Usage:
//
//	previewd                     run the daemon in the foreground
//	previewd service <command>   manage the OS service
//	previewd hash-token [token]  print a bcrypt hash for PREVIEW_ACCESS_TOKEN_HASH
//	previewd version             print build information
//
// With PREVIEW_WORKER_SOCKET set, previewd runs as a render worker for the
// process backend instead.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"preview_engine/core"
	"preview_engine/core/validation"
	"preview_engine/logging"
	"preview_engine/previewkit"
	"preview_engine/previewkit/demo"
	"preview_engine/shutdown"
)

func main() {
	// Worker mode: the process backend re-executes this binary.
	if cfg, ok := previewkit.WorkerConfigFromEnv(); ok {
		os.Exit(runWorker(cfg))
	}

	if code, handled := runCommand(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); handled {
		os.Exit(code)
	}

	if handled, code := RunAsService(); handled {
		os.Exit(code)
	}

	os.Exit(runDaemon(context.Background(), daemonOptions{}))
}

// daemonOptions adjust runDaemon for the foreground and service cases.
type daemonOptions struct {
	// ServiceMode uses the platform data directory unless PREVIEW_DATA_DIR
	// is set, and disables console progress output.
	ServiceMode bool
	// Ready, when not nil, is called once the HTTP server is starting.
	Ready func()
}

// runDaemon runs previewd until a signal arrives or ctx is cancelled and
// returns the process exit code.
func runDaemon(ctx context.Context, opts daemonOptions) int {
	// Step 1: Environment and configuration
	if err := loadEnvFile(os.LookupEnv); err != nil {
		printConfigError(os.Stderr, err)
		return core.ExitCodeFor(err)
	}
	if opts.ServiceMode {
		if _, set := os.LookupEnv("PREVIEW_DATA_DIR"); !set {
			os.Setenv("PREVIEW_DATA_DIR", core.ServiceDataDirectory())
		}
	}
	cfg, err := core.LoadConfig()
	if err != nil {
		printConfigError(os.Stderr, err)
		return core.ExitCodeFor(err)
	}

	// Step 2: Startup validation
	suite := validation.NewSuite(cfg).WithShowProgress(!opts.ServiceMode)
	if result := suite.Run(ctx); !result.Success {
		printConfigError(os.Stderr, result.FirstError())
		return core.ExitCodeConfig
	}

	// Step 3: Logging
	logger, err := logging.NewLogger(cfg.LoggerOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return core.ExitCodeError
	}
	log := logger.Zap()
	log.Info("Configuration loaded",
		zap.String("version", core.GetVersionInfo().String()),
		zap.String("manifest_dir", cfg.ManifestDir),
		zap.String("data_dir", cfg.DataDir),
		zap.String("backend", cfg.Backend),
		zap.Int("cache_capacity", cfg.CacheCapacity),
		zap.String("addr", cfg.Addr()),
		zap.Bool("auth_enabled", cfg.AuthEnabled()),
		zap.Bool("dev_mode", cfg.DevMode),
	)

	// Step 4: Components
	manager := shutdown.NewManager(log.Named("shutdown"), shutdown.WithTimeout(cfg.ShutdownTimeout()))
	a, err := newApp(ctx, cfg, manager.Tracker(), log)
	if err != nil {
		log.Error("Startup failed", zap.Error(err))
		_ = logger.Sync()
		return core.ExitCodeFor(err)
	}
	a.registerShutdown(manager)
	a.startBackground(manager.Context())
	manager.Start()

	// Step 5: Serve until a signal, ctx or a server failure
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.server.Start(manager.Context())
	}()
	if opts.Ready != nil {
		opts.Ready()
	}

	exitCode := core.ExitCodeSuccess
	select {
	case <-manager.Context().Done():
	case <-ctx.Done():
		manager.Stop()
	case err := <-serveErr:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
			exitCode = core.ExitCodeError
		}
		manager.Stop()
	}

	// Step 6: Graceful stop
	if err := manager.Shutdown(); err != nil && exitCode == core.ExitCodeSuccess {
		exitCode = core.ExitCodeError
	}
	if sig := manager.Signal(); sig != nil && exitCode == core.ExitCodeSuccess {
		exitCode = core.ExitCodeForSignal(sig)
	}
	return exitCode
}

// loadEnvFile loads PREVIEW_ENV_FILE when set, which must exist, or else an
// optional .env in the working directory. Variables already set win.
func loadEnvFile(lookup core.LookupFunc) error {
	if path, ok := lookup("PREVIEW_ENV_FILE"); ok && path != "" {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return core.ErrEnvFileMissing(path)
			}
			return core.ErrConfigFile(path, err.Error())
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return core.ErrConfigFile(".env", err.Error())
	}
	return nil
}

// runWorker serves the built-in preview library for the process backend.
func runWorker(cfg previewkit.WorkerConfig) int {
	logger, err := logging.NewLogger(logging.Options{
		Development: core.ParseBoolEnv("DEV_MODE", false),
		Console:     os.Stderr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return core.ExitCodeError
	}
	defer logger.Sync()

	manager := shutdown.NewManager(logger.Zap().Named("shutdown"))
	manager.Start()
	if err := previewkit.ServeWorker(manager.Context(), demo.NewLibrary(), cfg, logger.Zap().Named("worker")); err != nil {
		logger.Error("Worker failed", zap.Error(err))
		return core.ExitCodeError
	}
	return core.ExitCodeForSignal(manager.Signal())
}

// printConfigError prints a configuration error with its suggested action.
func printConfigError(w io.Writer, err error) {
	if err == nil {
		return
	}
	red := color.New(color.FgRed, color.Bold)
	red.Fprint(w, "Error: ")
	fmt.Fprintln(w, err)
	if cfgErr, ok := core.IsConfigError(err); ok && cfgErr.Action != "" {
		color.New(color.FgYellow).Fprint(w, "Action: ")
		fmt.Fprintln(w, cfgErr.Action)
	}
}
