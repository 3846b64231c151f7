package link

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Port is the duplex byte stream to the radio. Closing it must unblock a
// pending Read.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens the named port at the given baud rate.
type Opener func(name string, baudRate int) (Port, error)

// SerialOpener opens a serial device with 8N1 framing.
func SerialOpener(name string, baudRate int) (Port, error) {
	if name == "" {
		return nil, fmt.Errorf("no serial device specified")
	}
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	return port, nil
}
