package link

import "errors"

var (
	// ErrNotOpen indicates the port has not been opened.
	ErrNotOpen = errors.New("port not open")
	// ErrAlreadyOpen indicates Open was called twice.
	ErrAlreadyOpen = errors.New("port already open")
	// ErrClosed indicates the session has been closed.
	ErrClosed = errors.New("session closed")
	// ErrRunning indicates Run was called twice.
	ErrRunning = errors.New("session already running")
	// ErrNotDataMode indicates raw writes are refused outside Data mode.
	ErrNotDataMode = errors.New("radio not in data mode")
	// ErrQueueFull indicates too many requests are waiting for the session loop.
	ErrQueueFull = errors.New("request queue full")
)
