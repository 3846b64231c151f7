// Package mode arbitrates the two operating modes of the radio.
//
// The Controller is a pure state machine. It never touches the port or a
// clock: callers pass the current time in and apply the returned Action,
// which may ask them to write bytes, drop buffered input, report a mode
// change or deliver the result of a finished operation. Deadline tells the
// caller when Timeout must be invoked next.
package mode

import (
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/radiolink/pkg/radio/at"
	"github.com/robotalks/radiolink/pkg/radio/framing"
)

// Mode is the operating mode of the radio.
type Mode int32

const (
	// Data relays telemetry frames.
	Data Mode = iota
	// EnteringCommand waits for the escape sequence to be acknowledged.
	EnteringCommand
	// Command exchanges AT command lines.
	Command
	// ExitingCommand waits for the exit command to be acknowledged.
	ExitingCommand
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case Data:
		return "DATA"
	case EnteringCommand:
		return "ENTERING_COMMAND"
	case Command:
		return "COMMAND"
	case ExitingCommand:
		return "EXITING_COMMAND"
	}
	return "UNKNOWN"
}

// Op identifies a caller request.
type Op int

const (
	// OpEnter enters command mode.
	OpEnter Op = iota + 1
	// OpExit leaves command mode.
	OpExit
	// OpCommand runs one AT command.
	OpCommand
	// OpReboot restarts the radio.
	OpReboot
)

// String implements fmt.Stringer.
func (o Op) String() string {
	switch o {
	case OpEnter:
		return "enter"
	case OpExit:
		return "exit"
	case OpCommand:
		return "command"
	case OpReboot:
		return "reboot"
	}
	return "unknown"
}

// Default timing.
const (
	DefaultGuardTime      = time.Second
	DefaultEnterTimeout   = 3 * time.Second
	DefaultExitTimeout    = time.Second
	DefaultCommandTimeout = 2 * time.Second
)

// MaxLineLength bounds a response line. Longer runs without a line
// terminator are dropped.
const MaxLineLength = 512

// Transition is a mode change.
type Transition struct {
	From Mode
	To   Mode
}

// Result is the outcome of a finished operation.
type Result struct {
	Op       Op
	Command  string
	Response string
	Err      error
}

// Action tells the caller what to do after a Controller step, in field
// order: drop buffered input, note the mode change, write bytes, then
// deliver the result.
type Action struct {
	Clear      bool
	Transition *Transition
	Write      []byte
	Done       *Result
}

// Controller tracks the radio mode and the single operation in flight.
type Controller struct {
	// GuardTime is the silence kept before the escape sequence.
	// Zero sends the escape immediately.
	GuardTime time.Duration
	// EnterTimeout bounds the wait for the escape acknowledgment.
	EnterTimeout time.Duration
	// ExitTimeout bounds the wait for the exit acknowledgment.
	ExitTimeout time.Duration
	// CommandTimeout is used for commands issued without a timeout.
	CommandTimeout time.Duration

	mode Mode
	op   *operation
}

type operation struct {
	op       Op
	text     string
	deadline time.Time
	guard    bool
	echoed   bool
	lines    []string
}

// NewController creates a Controller in Data mode with default timing.
func NewController() *Controller {
	return &Controller{
		GuardTime:      DefaultGuardTime,
		EnterTimeout:   DefaultEnterTimeout,
		ExitTimeout:    DefaultExitTimeout,
		CommandTimeout: DefaultCommandTimeout,
	}
}

// Mode gets the current mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

// Pending tells whether an operation is in flight.
func (c *Controller) Pending() bool {
	return c.op != nil
}

// Deadline returns when Timeout must be called, if an operation is in flight.
func (c *Controller) Deadline() (time.Time, bool) {
	if c.op == nil {
		return time.Time{}, false
	}
	return c.op.deadline, true
}

// Enter starts the escape into command mode.
func (c *Controller) Enter(now time.Time) (act Action, err error) {
	switch c.mode {
	case EnteringCommand, ExitingCommand:
		return act, ErrBusy
	case Command:
		return act, ErrAlreadyCommand
	}
	c.op = &operation{op: OpEnter, text: at.Escape}
	act.Clear = true
	act.Transition = c.switchTo(EnteringCommand)
	if c.GuardTime > 0 {
		c.op.guard = true
		c.op.deadline = now.Add(c.GuardTime)
		return
	}
	act.Write = c.escape(now)
	return
}

// Exit requests the return to Data mode.
func (c *Controller) Exit(now time.Time) (act Action, err error) {
	if err = c.mustBeIdleCommand(); err != nil {
		return
	}
	c.op = &operation{
		op:       OpExit,
		text:     at.CmdExit,
		deadline: now.Add(orDefault(c.ExitTimeout, DefaultExitTimeout)),
	}
	act.Transition = c.switchTo(ExitingCommand)
	act.Write = at.Line(at.CmdExit)
	return
}

// Issue sends one command. A non-positive timeout uses CommandTimeout.
func (c *Controller) Issue(text string, timeout time.Duration, now time.Time) (act Action, err error) {
	if c.mode != Command {
		return act, ErrNotCommand
	}
	if c.op != nil {
		return act, ErrCommandPending
	}
	if text == "" || strings.ContainsAny(text, "\r\n") {
		return act, ErrInvalidCommand
	}
	if timeout <= 0 {
		timeout = orDefault(c.CommandTimeout, DefaultCommandTimeout)
	}
	c.op = &operation{op: OpCommand, text: text, deadline: now.Add(timeout)}
	act.Write = at.Line(text)
	return
}

// Reboot restarts the radio. The radio does not reply and comes back in
// relay mode, so the operation completes immediately.
func (c *Controller) Reboot() (act Action, err error) {
	if err = c.mustBeIdleCommand(); err != nil {
		return
	}
	act.Clear = true
	act.Transition = c.switchTo(Data)
	act.Write = at.Line(at.CmdReboot)
	act.Done = &Result{Op: OpReboot, Command: at.CmdReboot}
	return
}

// Feed consumes complete response lines from acc. It must not be called
// in Data mode, where the bytes belong to the frame decoder.
func (c *Controller) Feed(acc *framing.Accumulator) (act Action) {
	if c.op != nil && c.op.guard {
		acc.Clear()
		return
	}
	for c.mode != Data {
		n := acc.IndexByte('\n')
		if n < 0 {
			if acc.Len() > MaxLineLength {
				glog.Warningf("drop %d bytes without line terminator", acc.Len())
				acc.Clear()
			}
			break
		}
		line := strings.TrimRight(string(acc.Consume(n+1)), "\r\n")
		if a := c.line(line); a.Done != nil {
			act = a
		}
	}
	return
}

// Timeout advances time. It fires the escape after the guard time or fails
// the operation whose deadline passed. A timed out exit still returns to
// Data mode so the link cannot be left stuck in command mode.
func (c *Controller) Timeout(now time.Time) (act Action) {
	op := c.op
	if op == nil || now.Before(op.deadline) {
		return
	}
	if op.guard {
		act.Write = c.escape(now)
		return
	}
	c.op = nil
	act.Done = op.result(ErrTimeout)
	if op.op != OpCommand {
		act.Clear = true
		act.Transition = c.switchTo(Data)
	}
	return
}

// Abort fails the operation in flight with err and forces Data mode.
func (c *Controller) Abort(err error) (act Action) {
	if op := c.op; op != nil {
		c.op = nil
		act.Done = op.result(err)
	}
	act.Clear = true
	act.Transition = c.switchTo(Data)
	return
}

func (c *Controller) mustBeIdleCommand() error {
	switch c.mode {
	case EnteringCommand, ExitingCommand:
		return ErrBusy
	case Data:
		return ErrNotCommand
	}
	if c.op != nil {
		return ErrBusy
	}
	return nil
}

func (c *Controller) escape(now time.Time) []byte {
	c.op.guard = false
	c.op.deadline = now.Add(orDefault(c.EnterTimeout, DefaultEnterTimeout))
	return []byte(at.Escape)
}

func (c *Controller) switchTo(mode Mode) *Transition {
	if c.mode == mode {
		return nil
	}
	t := &Transition{From: c.mode, To: mode}
	c.mode = mode
	return t
}

func (c *Controller) line(line string) (act Action) {
	op := c.op
	if op == nil {
		if line != "" && glog.V(2) {
			glog.Infof("unsolicited line %q", line)
		}
		return
	}
	if !op.echoed && op.op != OpEnter && strings.TrimSpace(line) == op.text {
		op.echoed = true
		return
	}
	code, rest := at.Classify(line)
	if rest != "" && op.op == OpCommand {
		op.lines = append(op.lines, rest)
	}
	if code == at.ResultNone {
		return
	}
	c.op = nil
	ok := code == at.ResultOK
	switch op.op {
	case OpEnter:
		act.Clear = true
		if ok {
			act.Done = op.result(nil)
			act.Transition = c.switchTo(Command)
		} else {
			act.Done = op.result(ErrNoAck)
			act.Transition = c.switchTo(Data)
		}
	case OpExit:
		if ok {
			act.Clear = true
			act.Done = op.result(nil)
			act.Transition = c.switchTo(Data)
		} else {
			act.Done = op.result(&CommandError{Command: op.text})
			act.Transition = c.switchTo(Command)
		}
	default:
		if ok {
			act.Done = op.result(nil)
		} else {
			act.Done = op.result(&CommandError{Command: op.text, Response: strings.Join(op.lines, "\n")})
		}
	}
	return
}

func (op *operation) result(err error) *Result {
	return &Result{
		Op:       op.op,
		Command:  op.text,
		Response: strings.Join(op.lines, "\n"),
		Err:      err,
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
