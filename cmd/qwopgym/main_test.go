package main

import (
	"errors"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestExitErrHandler_NilError(t *testing.T) {
	// Must not exit on nil.
	exitErrHandler(nil, nil)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", cli.Exit("", 0), 0},
		{"error", cli.Exit("episode not found", 1), 1},
		{"transport failure", cli.Exit("connect: refused", 2), 2},
		{"config error", cli.Exit("invalid config", 3), 3},
		{"wrapped", errors.Join(errors.New("context"), cli.Exit("inner", 42)), 42},
		{"plain error", errors.New("boom"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewApp_Commands(t *testing.T) {
	app := newApp()
	want := []string{"client", "relay", "bench", "record", "replay", "episodes", "version"}
	if len(app.Commands) != len(want) {
		t.Fatalf("len(Commands) = %d, want %d", len(app.Commands), len(want))
	}
	for i, name := range want {
		if app.Commands[i].Name != name {
			t.Errorf("Commands[%d] = %q, want %q", i, app.Commands[i].Name, name)
		}
	}
}
