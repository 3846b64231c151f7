package link

import (
	"time"

	"github.com/robotalks/radiolink/pkg/radio/framing"
	"github.com/robotalks/radiolink/pkg/radio/mode"
)

// Baud rates used by the radios.
const (
	DefaultBaudRate = 57600
	AltBaudRate     = 115200
)

// Config configures a Session.
type Config struct {
	PortName string
	BaudRate int
	Opener   Opener

	// Lookahead and Oversize configure the frame decoder.
	Lookahead int
	Oversize  int

	GuardTime      time.Duration
	EnterTimeout   time.Duration
	ExitTimeout    time.Duration
	CommandTimeout time.Duration

	// FrameBuffer is the capacity of the Frames channel.
	FrameBuffer int
	// DiagnosticBuffer is the capacity of the Diagnostics channel.
	DiagnosticBuffer int
	// ReadSize is the size of a single port read.
	ReadSize int
}

// DefaultConfig returns the configuration for a SiK radio on a serial port.
func DefaultConfig() Config {
	return Config{
		BaudRate:         DefaultBaudRate,
		Opener:           SerialOpener,
		Lookahead:        framing.DefaultLookahead,
		Oversize:         framing.DefaultOversize,
		GuardTime:        mode.DefaultGuardTime,
		EnterTimeout:     mode.DefaultEnterTimeout,
		ExitTimeout:      mode.DefaultExitTimeout,
		CommandTimeout:   mode.DefaultCommandTimeout,
		FrameBuffer:      64,
		DiagnosticBuffer: 16,
		ReadSize:         256,
	}
}
