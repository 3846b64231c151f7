package link

import (
	"context"
	"sync"
	"time"

	"github.com/robotalks/radiolink/pkg/radio/mode"
)

// Result is the outcome of a Command.
type Result struct {
	Response string
	Err      error
}

// Command is a request submitted to the session loop: a mode transition or
// an AT command. It is resolved exactly once.
type Command struct {
	op      mode.Op
	text    string
	timeout time.Duration

	resultCh chan Result
	once     sync.Once
}

func newCommand(op mode.Op, text string, timeout time.Duration) *Command {
	return &Command{
		op:       op,
		text:     text,
		timeout:  timeout,
		resultCh: make(chan Result, 1),
	}
}

// Op returns the requested operation.
func (c *Command) Op() mode.Op {
	return c.op
}

// Text returns the command line, empty for mode transitions.
func (c *Command) Text() string {
	return c.text
}

// ResultChan returns the chan to retrieve result.
func (c *Command) ResultChan() <-chan Result {
	return c.resultCh
}

// Wait blocks until the command is resolved or ctx is done.
func (c *Command) Wait(ctx context.Context) (string, error) {
	select {
	case res := <-c.resultCh:
		return res.Response, res.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Command) resolve(res Result) {
	c.once.Do(func() {
		c.resultCh <- res
	})
}
