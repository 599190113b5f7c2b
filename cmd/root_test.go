package cmd

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"gosock/config"
)

// capture redirects stdout for one test and runs outside any .env in
// the working directory.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	old := stdout
	stdout = buf
	t.Cleanup(func() { stdout = old })

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) }) //nolint:errcheck
	return buf
}

// TestExecute_Version verifies --version prints a version string.
func TestExecute_Version(t *testing.T) {
	out := capture(t)
	if err := Execute(context.Background(), []string{"--version"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "gosock ") {
		t.Errorf("output = %q", out.String())
	}
}

// TestExecute_Help verifies --help (and no args) returns without error.
func TestExecute_Help(t *testing.T) {
	capture(t)
	for _, args := range [][]string{{"--help"}, {}} {
		name := "no-args"
		if len(args) > 0 {
			name = args[0]
		}
		t.Run(name, func(t *testing.T) {
			if err := Execute(context.Background(), args); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

// TestExecute_DryRun verifies --dry-run validates and exits cleanly,
// with flags layered over the environment.
func TestExecute_DryRun(t *testing.T) {
	out := capture(t)
	t.Setenv("GOSOCK_MAX_CLIENTS", "500")
	t.Setenv("GOSOCK_SEND_BUFF_SIZE", "2048")

	err := Execute(context.Background(), []string{
		"-l", "-p", "8080", "--send-buf", "4096", "--flush-time", "50ms", "--dry-run",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"500 clients", "send 4096 bytes", "flush after 50ms"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("summary %q missing %q", out.String(), want)
		}
	}
}

// TestExecute_DryRunInvalid verifies --dry-run still catches bad configs.
func TestExecute_DryRunInvalid(t *testing.T) {
	capture(t)
	tests := []struct {
		name string
		args []string
	}{
		{"listen without port", []string{"-l", "--dry-run"}},
		{"tiny receive buffer", []string{"-l", "-p", "1", "--recv-buf", "4", "--dry-run"}},
		{"connect without port", []string{"localhost", "--dry-run"}},
		{"bad port", []string{"localhost", "http", "--dry-run"}},
		{"too many args", []string{"-l", "-p", "1", "a", "b", "--dry-run"}},
		{"bad log format", []string{"-l", "-p", "1", "--log-format", "xml", "--dry-run"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Execute(context.Background(), tt.args); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

// TestExecute_InvalidFlags verifies unknown flags produce an error.
func TestExecute_InvalidFlags(t *testing.T) {
	capture(t)
	if err := Execute(context.Background(), []string{"--nonexistent-flag"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

// TestExecute_BadEnvironment verifies env parse errors surface.
func TestExecute_BadEnvironment(t *testing.T) {
	capture(t)
	t.Setenv("GOSOCK_MAX_CLIENTS", "lots")
	if err := Execute(context.Background(), []string{"-l", "-p", "1", "--dry-run"}); err == nil {
		t.Fatal("expected error for unparsable GOSOCK_MAX_CLIENTS")
	}
}

// TestParsePositional covers both modes' argument shapes.
func TestParsePositional(t *testing.T) {
	cfg := configFor(t, true)
	if err := parsePositional(cfg, []string{"127.0.0.1"}); err != nil || cfg.Host != "127.0.0.1" {
		t.Errorf("listen bind host: err=%v host=%q", err, cfg.Host)
	}

	cfg = configFor(t, false)
	if err := parsePositional(cfg, []string{"example.com", "9000"}); err != nil {
		t.Fatal(err)
	}
	if cfg.Host != "example.com" || cfg.Port != 9000 {
		t.Errorf("got %s:%d", cfg.Host, cfg.Port)
	}
}

func configFor(t *testing.T, listen bool) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Listen = listen
	return cfg
}
