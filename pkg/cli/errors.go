package cli

import (
	"errors"
	"fmt"
)

// Process exit statuses. Verdict codes from the enforce command pass
// through ExitError unchanged.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
)

// ConfigError reports an unusable configuration value.
type ConfigError struct {
	Field   string
	Message string
}

// NewConfigError returns a ConfigError for field.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError wraps the failure of a subcommand.
type CommandError struct {
	Command string
	Err     error
}

// NewCommandError wraps err as the failure of command.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}

func (e *CommandError) Error() string { return fmt.Sprintf("command %s failed: %v", e.Command, e.Err) }

func (e *CommandError) Unwrap() error { return e.Err }

// ExitError ends the process with Code and prints nothing further.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	var (
		exit   *ExitError
		config *ConfigError
	)
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &exit):
		return exit.Code
	case errors.As(err, &config):
		return ExitConfig
	default:
		return ExitFailure
	}
}

// IsSilent reports whether err ends the process without a message.
func IsSilent(err error) bool {
	var exit *ExitError
	return errors.As(err, &exit)
}
