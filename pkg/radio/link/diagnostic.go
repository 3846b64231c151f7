package link

import (
	"fmt"

	"github.com/robotalks/radiolink/pkg/radio/mode"
)

// Diagnostic is a transport level event. It is one of ResyncDiscard,
// OversizeClear, ModeTransition, CommandResult or TransportFailure.
type Diagnostic interface {
	fmt.Stringer
	// Type is a short stable name of the event type.
	Type() string
	diagnostic()
}

// ResyncDiscard reports bytes skipped to realign on a frame.
type ResyncDiscard struct {
	Bytes int
}

// OversizeClear reports a buffer dropped because no frame could be found.
type OversizeClear struct {
	Bytes int
}

// ModeTransition reports a change of the radio mode. Err is set when the
// change is the outcome of a failed request.
type ModeTransition struct {
	From mode.Mode
	To   mode.Mode
	Err  error
}

// CommandResult reports the outcome of a command.
type CommandResult struct {
	Command  string
	Response string
	Err      error
}

// TransportFailure is the terminal event of a session whose port failed.
type TransportFailure struct {
	Err error
}

func (ResyncDiscard) diagnostic()    {}
func (OversizeClear) diagnostic()    {}
func (ModeTransition) diagnostic()   {}
func (CommandResult) diagnostic()    {}
func (TransportFailure) diagnostic() {}

// Type implements Diagnostic.
func (ResyncDiscard) Type() string { return "resync" }

// Type implements Diagnostic.
func (OversizeClear) Type() string { return "oversize" }

// Type implements Diagnostic.
func (ModeTransition) Type() string { return "mode" }

// Type implements Diagnostic.
func (CommandResult) Type() string { return "command" }

// Type implements Diagnostic.
func (TransportFailure) Type() string { return "transport" }

func (d ResyncDiscard) String() string {
	return fmt.Sprintf("resync discarded %d bytes", d.Bytes)
}

func (d OversizeClear) String() string {
	return fmt.Sprintf("oversize buffer cleared, %d bytes lost", d.Bytes)
}

func (d ModeTransition) String() string {
	if d.Err != nil {
		return fmt.Sprintf("mode %s -> %s: %v", d.From, d.To, d.Err)
	}
	return fmt.Sprintf("mode %s -> %s", d.From, d.To)
}

func (d CommandResult) String() string {
	if d.Err != nil {
		return fmt.Sprintf("%s: %v", d.Command, d.Err)
	}
	return fmt.Sprintf("%s: OK", d.Command)
}

func (d TransportFailure) String() string {
	return fmt.Sprintf("transport failure: %v", d.Err)
}
