package main

import (
	"bytes"
	"strings"
	"testing"

	"preview_engine/core"
	"preview_engine/server"
)

func TestRunCommand(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantHandled bool
		wantCode    int
		wantOut     string
		wantErr     string
	}{
		{name: "no args runs the daemon", args: nil, wantHandled: false},
		{name: "version", args: []string{"version"}, wantHandled: true, wantOut: "previewd " + core.Version},
		{name: "--version", args: []string{"--version"}, wantHandled: true, wantOut: core.GitCommit},
		{name: "help", args: []string{"help"}, wantHandled: true, wantOut: "hash-token"},
		{name: "unknown", args: []string{"frobnicate"}, wantHandled: true, wantCode: 2, wantErr: `"frobnicate"`},
		{name: "service usage", args: []string{"service", "help"}, wantHandled: true, wantOut: "uninstall"},
		{name: "service without command", args: []string{"service"}, wantHandled: true, wantCode: 2, wantErr: "Usage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code, handled := runCommand(tt.args, strings.NewReader(""), &stdout, &stderr)
			if handled != tt.wantHandled {
				t.Fatalf("handled = %v, want %v", handled, tt.wantHandled)
			}
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if !strings.Contains(stdout.String(), tt.wantOut) {
				t.Errorf("stdout = %q, want it to contain %q", stdout.String(), tt.wantOut)
			}
			if !strings.Contains(stderr.String(), tt.wantErr) {
				t.Errorf("stderr = %q, want it to contain %q", stderr.String(), tt.wantErr)
			}
		})
	}
}

func TestRunHashToken(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		stdin    string
		token    string
		wantCode int
	}{
		{name: "argument", args: []string{"s3cret"}, token: "s3cret"},
		{name: "stdin", stdin: "from-stdin\n", token: "from-stdin"},
		{name: "stdin without newline", stdin: "  padded  ", token: "padded"},
		{name: "empty", stdin: "\n", wantCode: core.ExitCodeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := runHashToken(tt.args, strings.NewReader(tt.stdin), &stdout, &stderr)
			if code != tt.wantCode {
				t.Fatalf("code = %d, want %d (stderr %q)", code, tt.wantCode, stderr.String())
			}
			if tt.wantCode != 0 {
				return
			}
			hash := strings.TrimSpace(stdout.String())
			if err := server.VerifyToken(hash, tt.token); err != nil {
				t.Errorf("printed hash does not verify %q: %v", tt.token, err)
			}
		})
	}
}
