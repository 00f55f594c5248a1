// Package validation runs previewd's startup checks and prints a colored
// step report.
package validation

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"

	"preview_engine/core"
	"preview_engine/manifest"
)

// StepStatus represents the status of a validation step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

// String returns the string representation of a step status.
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// ValidationStep represents a single validation step with its status.
type ValidationStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// SuiteResult represents the complete result of validation suite execution.
type SuiteResult struct {
	Steps       []ValidationStep
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// FirstError returns the error of the first failed step, or nil.
func (r SuiteResult) FirstError() error {
	for _, step := range r.Steps {
		if step.Status == StepFailed && step.Error != nil {
			return step.Error
		}
	}
	return nil
}

// Summary returns a human-readable summary string.
func (r SuiteResult) Summary() string {
	var sb strings.Builder
	if r.Success {
		sb.WriteString("Validation Passed: ")
	} else {
		sb.WriteString("Validation Failed: ")
	}
	fmt.Fprintf(&sb, "%d/%d checks passed", r.PassedSteps, len(r.Steps))
	if r.FailedSteps > 0 {
		fmt.Fprintf(&sb, ", %d failed", r.FailedSteps)
	}
	if r.Warnings > 0 {
		fmt.Fprintf(&sb, ", %d warnings", r.Warnings)
	}
	return sb.String()
}

// check is one step: it reports a status, a short message and an error for
// failures.
type check struct {
	name string
	run  func(ctx context.Context) (StepStatus, string, error)
}

// Suite runs the startup checks for a configuration.
//
// This organism composes:
//   - core.Config.Validate for value ranges
//   - core.EnsureDataDirectory and GetDiskSpace for storage
//   - manifest.LoadDir for the preview declarations
//   - an executable check for the process backend
//
// Public API:
//   - NewSuite(): Create a suite
//   - Run(): Execute all checks with progress output
type Suite struct {
	cfg          *core.Config
	output       io.Writer
	showProgress bool
	failFast     bool
	minFreeBytes int64
}

// NewSuite creates a suite printing to stdout.
func NewSuite(cfg *core.Config) *Suite {
	return &Suite{
		cfg:          cfg,
		output:       os.Stdout,
		showProgress: true,
		minFreeBytes: DefaultMinFreeBytes,
	}
}

// WithOutput sets the output writer for progress messages.
func (s *Suite) WithOutput(w io.Writer) *Suite {
	s.output = w
	return s
}

// WithShowProgress enables or disables progress output.
func (s *Suite) WithShowProgress(show bool) *Suite {
	s.showProgress = show
	return s
}

// WithFailFast stops validation on first failure if enabled.
func (s *Suite) WithFailFast(failFast bool) *Suite {
	s.failFast = failFast
	return s
}

// WithMinFreeBytes sets the free space below which the disk check warns.
func (s *Suite) WithMinFreeBytes(n int64) *Suite {
	s.minFreeBytes = n
	return s
}

// Run executes every check in order. Steps after a failed configuration
// check are skipped because they depend on valid values.
func (s *Suite) Run(ctx context.Context) SuiteResult {
	start := time.Now()
	if s.showProgress {
		s.printHeader("previewd startup checks")
	}

	checks := []check{
		{"Configuration", s.checkConfig},
		{"Data Directory", s.checkDataDirectory},
		{"Disk Space", s.checkDiskSpace},
		{"Preview Manifests", s.checkManifests},
		{"Worker Executable", s.checkWorker},
	}

	steps := make([]ValidationStep, 0, len(checks))
	stop := false
	for i, c := range checks {
		if stop {
			step := ValidationStep{Name: c.name, Status: StepSkipped, Message: "Skipped after earlier failure"}
			s.printStep(step)
			steps = append(steps, step)
			continue
		}
		step := s.runStep(ctx, c)
		steps = append(steps, step)
		if step.Status == StepFailed && (s.failFast || i == 0) {
			stop = true
		}
	}

	result := buildResult(steps, start)
	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

func (s *Suite) checkConfig(context.Context) (StepStatus, string, error) {
	if err := s.cfg.Validate(); err != nil {
		return StepFailed, "Invalid configuration", err
	}
	return StepPassed, fmt.Sprintf("backend %s, listening on %s", s.cfg.Backend, s.cfg.Addr()), nil
}

func (s *Suite) checkDataDirectory(context.Context) (StepStatus, string, error) {
	if err := core.EnsureDataDirectory(s.cfg.DataDir); err != nil {
		return StepFailed, "Not writable", err
	}
	return StepPassed, s.cfg.DataDir, nil
}

func (s *Suite) checkDiskSpace(context.Context) (StepStatus, string, error) {
	info, err := GetDiskSpace(s.cfg.DataDir)
	if err != nil {
		return StepWarning, "Could not determine free space", err
	}
	msg := fmt.Sprintf("%s free of %s", core.FormatBytes(info.Free), core.FormatBytes(info.Total))
	if info.Free < s.minFreeBytes {
		return StepWarning, msg, fmt.Errorf("less than %s free at %s", core.FormatBytes(s.minFreeBytes), info.Path)
	}
	return StepPassed, msg, nil
}

func (s *Suite) checkManifests(ctx context.Context) (StepStatus, string, error) {
	m, err := manifest.LoadDir(ctx, s.cfg.ManifestDir)
	if err != nil {
		return StepFailed, "Cannot load manifests", core.ErrManifestDir(s.cfg.ManifestDir, err.Error())
	}
	msg := fmt.Sprintf("%d previews in %d files", len(m.Declarations), len(m.Files))
	if len(m.Declarations) == 0 {
		return StepWarning, msg, nil
	}
	return StepPassed, msg, nil
}

func (s *Suite) checkWorker(context.Context) (StepStatus, string, error) {
	if s.cfg.Backend != core.BackendProcess {
		return StepSkipped, "In-process backend", nil
	}
	path := s.cfg.WorkerExecutable
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return StepFailed, "Cannot locate own executable", core.ErrWorkerNotFound("previewd", err.Error())
		}
		path = exe
	}
	if err := CheckExecutable(path); err != nil {
		return StepFailed, "Worker not usable", core.ErrWorkerNotFound(path, err.Error())
	}
	return StepPassed, path, nil
}

// CheckExecutable reports whether path is a regular file that can be run.
func CheckExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

// runStep executes a validation step with timing and progress output.
func (s *Suite) runStep(ctx context.Context, c check) ValidationStep {
	if s.showProgress {
		fmt.Fprintf(s.output, "  ◌ %s...", c.name)
	}
	start := time.Now()
	status, msg, err := c.run(ctx)
	step := ValidationStep{
		Name:    c.name,
		Status:  status,
		Message: msg,
		Error:   err,
		Latency: time.Since(start),
	}
	s.printStep(step)
	return step
}

func buildResult(steps []ValidationStep, start time.Time) SuiteResult {
	result := SuiteResult{Steps: steps, Duration: time.Since(start), Success: true}
	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
	}
	return result
}

func (s *Suite) printHeader(title string) {
	fmt.Fprintln(s.output)
	color.New(color.FgCyan, color.Bold).Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

// printStep prints a completed validation step with status indicator.
func (s *Suite) printStep(step ValidationStep) {
	if !s.showProgress {
		return
	}
	var icon string
	var clr *color.Color
	switch step.Status {
	case StepPassed:
		icon, clr = "✓", color.New(color.FgGreen)
	case StepFailed:
		icon, clr = "✗", color.New(color.FgRed)
	case StepWarning:
		icon, clr = "!", color.New(color.FgYellow)
	case StepSkipped:
		icon, clr = "○", color.New(color.FgHiBlack)
	default:
		icon, clr = "?", color.New(color.FgWhite)
	}

	// Clear the "running" line
	fmt.Fprintf(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Error != nil && (step.Status == StepFailed || step.Status == StepWarning) {
		clr.Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

func (s *Suite) printSummary(result SuiteResult) {
	fmt.Fprintln(s.output)
	if result.Success {
		ok := color.New(color.FgGreen, color.Bold)
		ok.Fprintf(s.output, "━━━ Validation Passed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d/%d checks passed in %v)",
			result.PassedSteps, len(result.Steps), result.Duration.Round(time.Millisecond))
		ok.Fprintln(s.output, " ━━━")
	} else {
		fail := color.New(color.FgRed, color.Bold)
		fail.Fprintf(s.output, "━━━ Validation Failed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d failed)",
			result.PassedSteps, result.FailedSteps)
		fail.Fprintln(s.output, " ━━━")
	}
	fmt.Fprintln(s.output)
}
