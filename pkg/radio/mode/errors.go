package mode

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy indicates another transition is in flight.
	ErrBusy = errors.New("mode transition in progress")
	// ErrAlreadyCommand indicates the radio is already in command mode.
	ErrAlreadyCommand = errors.New("already in command mode")
	// ErrNotCommand indicates the operation requires command mode.
	ErrNotCommand = errors.New("not in command mode")
	// ErrCommandPending indicates a command is still waiting for its reply.
	ErrCommandPending = errors.New("command pending")
	// ErrTimeout indicates no final reply arrived before the deadline.
	ErrTimeout = errors.New("timeout")
	// ErrNoAck indicates the radio refused the escape sequence.
	ErrNoAck = errors.New("escape not acknowledged")
	// ErrInvalidCommand indicates empty command text or text with a line break.
	ErrInvalidCommand = errors.New("invalid command text")
)

// CommandError is the negative reply to a command.
type CommandError struct {
	Command  string
	Response string
}

// Error implements error.
func (e *CommandError) Error() string {
	if e.Response == "" {
		return fmt.Sprintf("command %q failed", e.Command)
	}
	return fmt.Sprintf("command %q failed: %s", e.Command, e.Response)
}
