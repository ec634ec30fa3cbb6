package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ncerr "drinksync/internal/errors"
)

// capture isolates Execute from any real config and collects stdout.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DRINKSYNC_CONFIG", "")

	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

// TestExecute_Version verifies --version prints a version string.
func TestExecute_Version(t *testing.T) {
	out := capture(t)
	if err := Execute(context.Background(), []string{"--version"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "drinksync ") {
		t.Errorf("version output = %q", out.String())
	}
}

// TestExecute_Help verifies --help (and no args) returns without error.
func TestExecute_Help(t *testing.T) {
	capture(t)
	for _, args := range [][]string{{"--help"}, {"-h"}, {}} {
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

// TestExecute_DryRun verifies --dry-run validates and describes the run.
func TestExecute_DryRun(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "connect rfcomm",
			args: []string{"--dry-run", "AA:BB:CC:DD:EE:FF"},
			want: "connect to AA:BB:CC:DD:EE:FF over rfcomm (channel 1)",
		},
		{
			name: "listen tcp",
			args: []string{"-l", "-k", "-t", "tcp", "--bind", ":9000", "--reply", "echo", "--dry-run"},
			want: "listen as DrinkSyncApp (94f39d29-7d6d-437d-973b-fba39e49d4ee) over tcp on :9000, reply echo, keep open",
		},
		{
			name: "watch",
			args: []string{"--watch", "data.txt", "-t", "tcp", "-r", "--dry-run", "10.0.0.5:7777"},
			want: "stream data.txt to 10.0.0.5:7777 over tcp, reconnecting",
		},
		{
			name: "gateway",
			args: []string{"-T", "pi@scale-gw:2222", "--dry-run", "127.0.0.1:7777"},
			want: "connect to 127.0.0.1:7777 over ssh via pi@scale-gw:2222",
		},
		{
			name: "status",
			args: []string{"--status", "--state", "/tmp/state.cbor", "--dry-run"},
			want: "show hydration status from /tmp/state.cbor",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := capture(t)
			if err := Execute(context.Background(), tt.args); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := strings.TrimSpace(out.String()); got != tt.want {
				t.Errorf("summary:\n got  %q\n want %q", got, tt.want)
			}
		})
	}
}

// TestExecute_Status verifies --status reports the stored state without
// needing a peer.
func TestExecute_Status(t *testing.T) {
	out := capture(t)
	state := filepath.Join(t.TempDir(), "state.cbor")
	args := []string{"--status", "--state", state, "--goal", "8", "--notifications=false", "-q"}
	if err := Execute(context.Background(), args); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := out.String()
	for _, want := range []string{"intake:        0/8 oz (0%)", "streak:        0 days", "achievements:  none", "reminders:     off"} {
		if !strings.Contains(got, want) {
			t.Errorf("status output missing %q:\n%s", want, got)
		}
	}
}

// TestExecute_DryRunInvalid verifies --dry-run still catches bad configs.
func TestExecute_DryRunInvalid(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		field string
	}{
		{"no peer", []string{"--dry-run"}, "peer"},
		{"listen and watch", []string{"-l", "--watch", "f", "--dry-run"}, "watch"},
		{"bad channel", []string{"--channel", "31", "--dry-run", "AA:BB:CC:DD:EE:FF"}, "channel"},
		{"bad reply", []string{"-l", "--reply", "loud", "--dry-run"}, "reply"},
		{"bad gateway", []string{"-T", "pi@gw:0", "--dry-run", "x"}, "tunnel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capture(t)
			err := Execute(context.Background(), tt.args)
			var ce *ncerr.ConfigError
			if !ncerr.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Errorf("field = %q, want %q", ce.Field, tt.field)
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

// TestExecute_Positional verifies the peer argument rules.
func TestExecute_Positional(t *testing.T) {
	capture(t)
	if err := Execute(context.Background(), []string{"--dry-run", "a", "b"}); err == nil ||
		!strings.Contains(err.Error(), "too many arguments") {
		t.Errorf("two peers: got %v", err)
	}
	if err := Execute(context.Background(), []string{"-l", "--dry-run", "a"}); err == nil ||
		!strings.Contains(err.Error(), "listen mode") {
		t.Errorf("peer with -l: got %v", err)
	}
}

// TestExecute_ConfigFile verifies file values apply and flags win.
func TestExecute_ConfigFile(t *testing.T) {
	out := capture(t)
	path := filepath.Join(t.TempDir(), "drinksync.yaml")
	body := "peer: \"10.0.0.5:7777\"\ntransport: tcp\nreconnect: true\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := Execute(context.Background(), []string{"--config", path, "--dry-run"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := strings.TrimSpace(out.String()), "connect to 10.0.0.5:7777 over tcp, reconnecting"; got != want {
		t.Errorf("from file: got %q, want %q", got, want)
	}

	out.Reset()
	if err := Execute(context.Background(), []string{"--config=" + path, "--dry-run", "10.0.0.6:7777"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out.String(); !strings.Contains(got, "connect to 10.0.0.6:7777") {
		t.Errorf("positional peer should override the file: %q", got)
	}
}

// TestExecute_MissingConfigFile verifies an explicit --config must exist.
func TestExecute_MissingConfigFile(t *testing.T) {
	capture(t)
	err := Execute(context.Background(), []string{"--config", "/nonexistent/drinksync.yaml", "--dry-run", "x"})
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}
