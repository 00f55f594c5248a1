package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"preview_engine/core"
	"preview_engine/server"
)

// runCommand dispatches subcommands. handled is false when args select the
// daemon.
func runCommand(args []string, stdin io.Reader, stdout, stderr io.Writer) (code int, handled bool) {
	if len(args) == 0 {
		return 0, false
	}
	switch args[0] {
	case "version", "--version", "-v":
		fmt.Fprintln(stdout, "previewd", core.GetVersionInfo())
		return core.ExitCodeSuccess, true
	case "hash-token":
		return runHashToken(args[1:], stdin, stdout, stderr), true
	case "service":
		return runServiceCommand(args[1:], stdout, stderr), true
	case "help", "-h", "--help":
		printUsage(stdout)
		return core.ExitCodeSuccess, true
	default:
		color.New(color.FgRed).Fprintf(stderr, "Unknown command %q\n\n", args[0])
		printUsage(stderr)
		return 2, true
	}
}

// runHashToken prints the bcrypt hash of the token given as argument or on
// the first line of stdin.
func runHashToken(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var token string
	if len(args) > 0 {
		token = args[0]
	} else {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			fmt.Fprintf(stderr, "Error: read token: %v\n", err)
			return core.ExitCodeError
		}
		token = strings.TrimSpace(line)
	}

	hash, err := server.HashToken(token)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return core.ExitCodeError
	}
	fmt.Fprintln(stdout, hash)
	return core.ExitCodeSuccess
}

func printUsage(w io.Writer) {
	bold := color.New(color.Bold)
	bold.Fprintln(w, "previewd: preview render daemon")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  previewd                     Run the daemon in the foreground")
	fmt.Fprintln(w, "  previewd service <command>   Manage the system service")
	fmt.Fprintln(w, "  previewd hash-token [token]  Print a hash for PREVIEW_ACCESS_TOKEN_HASH")
	fmt.Fprintln(w, "  previewd version             Print build information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configuration is read from PREVIEW_* environment variables, a .env file")
	fmt.Fprintln(w, "and the YAML file named by PREVIEW_CONFIG_FILE.")
}
