package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kardianos/service"
)

// serviceStopTimeout bounds Stop; it exceeds the default shutdown budget so
// the daemon can finish its own graceful stop.
const serviceStopTimeout = 35 * time.Second

// program adapts runDaemon to service.Interface.
type program struct {
	cancel context.CancelFunc
	exit   chan struct{}
	code   int
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.exit = make(chan struct{})
	go func() {
		defer close(p.exit)
		p.code = runDaemon(ctx, daemonOptions{ServiceMode: true})
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	p.cancel()
	select {
	case <-p.exit:
		return nil
	case <-time.After(serviceStopTimeout):
		return errors.New("timeout waiting for previewd to stop")
	}
}

// ServiceConfig describes previewd to the service manager (systemd, launchd
// or the Windows SCM).
func ServiceConfig() *service.Config {
	return &service.Config{
		Name:        "previewd",
		DisplayName: "Preview Render Daemon",
		Description: "Renders declared UI previews and serves them over HTTP",
		Option: service.KeyValue{
			"StartType": "automatic",
			"Restart":   "on-failure",
		},
	}
}

// RunAsService runs previewd under the service manager when the process was
// started by one. handled is false for interactive sessions.
func RunAsService() (handled bool, code int) {
	if service.Interactive() {
		return false, 0
	}
	prg := &program{}
	s, err := service.New(prg, ServiceConfig())
	if err != nil {
		return true, 1
	}
	if err := s.Run(); err != nil {
		if logger, lerr := s.Logger(nil); lerr == nil {
			_ = logger.Error(err)
		}
		return true, 1
	}
	return true, prg.code
}

// serviceControl is the part of service.Service used by the service
// subcommands.
type serviceControl interface {
	Install() error
	Uninstall() error
	Start() error
	Stop() error
	Restart() error
	Status() (service.Status, error)
}

var newServiceControl = func() (serviceControl, error) {
	return service.New(&program{}, ServiceConfig())
}

// runServiceCommand handles "previewd service <command>".
func runServiceCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printServiceUsage(stderr)
		return 2
	}
	switch args[0] {
	case "help", "-h", "--help":
		printServiceUsage(stdout)
		return 0
	}

	ctl, err := newServiceControl()
	if err != nil {
		fmt.Fprintf(stderr, "Error: create service: %v\n", err)
		return 1
	}

	var done string
	switch args[0] {
	case "install":
		err, done = ctl.Install(), "installed"
	case "uninstall", "remove":
		err, done = ctl.Uninstall(), "uninstalled"
	case "start":
		err, done = ctl.Start(), "started"
	case "stop":
		err, done = ctl.Stop(), "stopped"
	case "restart":
		err, done = ctl.Restart(), "restarted"
	case "status":
		status, serr := ctl.Status()
		if serr != nil {
			fmt.Fprintf(stderr, "Error: service status: %v\n", serr)
			return 1
		}
		fmt.Fprintf(stdout, "Service is %s\n", statusName(status))
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown service command %q\n\n", args[0])
		printServiceUsage(stderr)
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: service %s: %v\n", args[0], err)
		return 1
	}
	fmt.Fprintf(stdout, "Service %s successfully\n", done)
	return 0
}

func statusName(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "in an unknown state"
	}
}

func printServiceUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: previewd service <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  install    Install previewd as a system service")
	fmt.Fprintln(w, "  uninstall  Remove the service (alias: remove)")
	fmt.Fprintln(w, "  start      Start the service")
	fmt.Fprintln(w, "  stop       Stop the service")
	fmt.Fprintln(w, "  restart    Restart the service")
	fmt.Fprintln(w, "  status     Show the service status")
}
