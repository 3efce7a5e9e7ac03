package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigError(t *testing.T) {
	err := NewConfigError("server.listen_address", "missing required field")

	expected := "config error in server.listen_address: missing required field"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestCommandError(t *testing.T) {
	inner := errors.New("file not found")
	err := NewCommandError("lint", inner)

	if err.Error() != "command lint failed: file not found" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("CommandError should unwrap to its cause")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"verdict", &ExitError{Code: 3}, 3},
		{"wrapped verdict", fmt.Errorf("enforce: %w", &ExitError{Code: 2}), 2},
		{"config", NewConfigError("engine.timeout", "negative"), 2},
		{"command", NewCommandError("sign", errors.New("no key")), 1},
		{"plain", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsSilent(t *testing.T) {
	if !IsSilent(&ExitError{Code: 1}) {
		t.Error("ExitError should be silent")
	}
	if IsSilent(errors.New("boom")) {
		t.Error("plain errors should be printed")
	}
}
