// Package at holds the command-mode vocabulary of SiK telemetry radios.
//
// In command mode the radio speaks a Hayes-style line protocol: every
// command is a single CRLF terminated line and the reply is zero or more
// information lines closed by a final result code, OK or ERROR. The escape
// token is the exception: it is written without a terminator and must be
// surrounded by a guard time of silence on the link.
package at

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// CRLF terminates command lines and response lines.
	CRLF = "\r\n"
	// Escape switches the radio from transparent relay into command mode.
	Escape = "+++"

	// OK is the affirmative final result code.
	OK = "OK"
	// ERROR is the negative final result code.
	ERROR = "ERROR"

	// CmdExit returns the radio to transparent relay.
	CmdExit = "ATO"
	// CmdInfo prints the firmware banner.
	CmdInfo = "ATI"
	// CmdParams lists all EEPROM parameters.
	CmdParams = "ATI5"
	// CmdSave writes current parameters to EEPROM.
	CmdSave = "AT&W"
	// CmdFactoryReset restores default parameters.
	CmdFactoryReset = "AT&F"
	// CmdReboot restarts the radio, which comes back in relay mode.
	CmdReboot = "ATZ"
)

// Line renders a command as it is written to the link.
func Line(cmd string) []byte {
	return []byte(cmd + CRLF)
}

// SetParam renders the command setting register reg to value.
func SetParam(reg, value int) string {
	return fmt.Sprintf("ATS%d=%d", reg, value)
}

// GetParam renders the command querying register reg.
func GetParam(reg int) string {
	return fmt.Sprintf("ATS%d?", reg)
}

// ResultCode classifies a response line.
type ResultCode int

const (
	// ResultNone is an information line.
	ResultNone ResultCode = iota
	// ResultOK closes a successful reply.
	ResultOK
	// ResultError closes a failed reply.
	ResultError
)

// Classify tells whether line carries a final result code. A radio may glue
// the result code to the end of the last information line, so a code is
// also recognized as a suffix; the text before it is returned as rest.
func Classify(line string) (code ResultCode, rest string) {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasSuffix(line, ERROR):
		return ResultError, strings.TrimSpace(strings.TrimSuffix(line, ERROR))
	case strings.HasSuffix(line, OK):
		return ResultOK, strings.TrimSpace(strings.TrimSuffix(line, OK))
	}
	return ResultNone, line
}

// Param is one radio register as listed by CmdParams.
type Param struct {
	Register int    `json:"register"`
	Name     string `json:"name"`
	Value    int    `json:"value"`
}

// String implements fmt.Stringer using the radio's own listing format.
func (p Param) String() string {
	return fmt.Sprintf("S%d:%s=%d", p.Register, p.Name, p.Value)
}

// ParseParams parses the reply of CmdParams. Lines which are not register
// listings, like the command echo, are ignored.
func ParseParams(text string) ([]Param, error) {
	var params []Param
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 2 || line[0] != 'S' || line[1] < '0' || line[1] > '9' {
			continue
		}
		reg, rest, ok := strings.Cut(line[1:], ":")
		if !ok {
			return nil, fmt.Errorf("invalid parameter line %q", line)
		}
		name, value, ok := strings.Cut(rest, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter line %q", line)
		}
		var p Param
		var err error
		if p.Register, err = strconv.Atoi(reg); err != nil {
			return nil, fmt.Errorf("invalid register in %q: %v", line, err)
		}
		if p.Value, err = strconv.Atoi(strings.TrimSpace(value)); err != nil {
			return nil, fmt.Errorf("invalid value in %q: %v", line, err)
		}
		p.Name = strings.TrimSpace(name)
		params = append(params, p)
	}
	return params, nil
}
