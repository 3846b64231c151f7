// Package link drives a telemetry radio over a serial port.
//
// A Session owns the port. Its Run loop is the only goroutine that touches
// the receive buffer, the frame decoder and the mode controller: received
// chunks, caller requests and the controller deadline are all serialized
// through it. Decoded frames and transport diagnostics leave the session
// over channels which are closed when the session terminates.
package link

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/radiolink/pkg/framework"
	"github.com/robotalks/radiolink/pkg/radio/framing"
	"github.com/robotalks/radiolink/pkg/radio/mode"
	"github.com/robotalks/radiolink/pkg/radio/wire"
)

const requestQueueSize = 4

// Session is one open link to a radio.
type Session struct {
	config  Config
	decoder *framing.Decoder
	ctrl    *mode.Controller
	acc     framing.Accumulator

	// inflight is owned by the Run loop.
	inflight *Command

	mode      atomic.Int32
	writeLock sync.Mutex

	lock    sync.Mutex
	port    Port
	running bool
	closed  bool

	reqCh     chan *Command
	failCh    chan error
	closeCh   chan struct{}
	closeOnce sync.Once
	doneCh    chan struct{}
	closeErr  error

	frameCh chan *wire.Frame
	diagCh  chan Diagnostic
}

// New creates a Session. The port is not opened until Open.
func New(config Config) *Session {
	if config.Opener == nil {
		config.Opener = SerialOpener
	}
	if config.BaudRate <= 0 {
		config.BaudRate = DefaultBaudRate
	}
	if config.ReadSize <= 0 {
		config.ReadSize = 256
	}
	if config.FrameBuffer < 0 {
		config.FrameBuffer = 0
	}
	if config.DiagnosticBuffer < 1 {
		config.DiagnosticBuffer = 1
	}
	return &Session{
		config:  config,
		decoder: &framing.Decoder{Lookahead: config.Lookahead, Oversize: config.Oversize},
		ctrl: &mode.Controller{
			GuardTime:      config.GuardTime,
			EnterTimeout:   config.EnterTimeout,
			ExitTimeout:    config.ExitTimeout,
			CommandTimeout: config.CommandTimeout,
		},
		reqCh:   make(chan *Command, requestQueueSize),
		failCh:  make(chan error, 1),
		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
		frameCh: make(chan *wire.Frame, config.FrameBuffer),
		diagCh:  make(chan Diagnostic, config.DiagnosticBuffer),
	}
}

// Config returns the effective configuration.
func (s *Session) Config() Config {
	return s.config
}

// Open opens the port. A non-positive baudRate uses the configured one.
func (s *Session) Open(baudRate int) error {
	if baudRate <= 0 {
		baudRate = s.config.BaudRate
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.port != nil {
		return ErrAlreadyOpen
	}
	port, err := s.config.Opener(s.config.PortName, baudRate)
	if err != nil {
		return err
	}
	s.port = port
	glog.Infof("opened %s at %d baud", s.config.PortName, baudRate)
	return nil
}

// Mode gets the current radio mode.
func (s *Session) Mode() mode.Mode {
	return mode.Mode(s.mode.Load())
}

// Frames returns the chan of decoded frames. The session blocks when
// it is full.
func (s *Session) Frames() <-chan *wire.Frame {
	return s.frameCh
}

// Diagnostics returns the chan of transport events. Events are dropped
// when it is full, except the terminal TransportFailure.
func (s *Session) Diagnostics() <-chan Diagnostic {
	return s.diagCh
}

// Write sends raw bytes to the remote end. It is refused unless the radio
// is in Data mode. A write error terminates the session.
func (s *Session) Write(p []byte) (int, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	port, err := s.currentPort()
	if err != nil {
		return 0, err
	}
	if s.Mode() != mode.Data {
		return 0, ErrNotDataMode
	}
	n, err := port.Write(p)
	if err != nil {
		err = fmt.Errorf("write: %w", err)
		select {
		case s.failCh <- err:
		default:
		}
	}
	return n, err
}

// IssueCommand sends an AT command line. The radio must be in command mode
// with no other command pending. A non-positive timeout uses the configured
// command timeout.
func (s *Session) IssueCommand(text string, timeout time.Duration) *Command {
	return s.submit(newCommand(mode.OpCommand, text, timeout))
}

// EnterCommandMode sends the escape sequence.
func (s *Session) EnterCommandMode() *Command {
	return s.submit(newCommand(mode.OpEnter, "", 0))
}

// ExitCommandMode returns the radio to Data mode.
func (s *Session) ExitCommandMode() *Command {
	return s.submit(newCommand(mode.OpExit, "", 0))
}

// Close terminates the session. It closes the port, which cancels a
// pending read, and fails the command in flight with ErrClosed. It is safe
// to call multiple times and from any mode.
func (s *Session) Close() error {
	s.lock.Lock()
	if s.closed {
		running := s.running
		s.lock.Unlock()
		if running {
			<-s.doneCh
		}
		return nil
	}
	s.closed = true
	running := s.running
	port := s.port
	s.port = nil
	s.lock.Unlock()
	s.closeOnce.Do(func() { close(s.closeCh) })

	var errs fx.AggregatedError
	if port != nil {
		errs.Add(port.Close())
	}
	if running {
		<-s.doneCh
		return errs.Add(s.closeErr).Aggregate()
	}
	s.drainRequests()
	close(s.frameCh)
	close(s.diagCh)
	return errs.Aggregate()
}

// Run implements Runnable. It processes the link until the session is
// closed, ctx is done or the port fails, and always leaves the session
// closed.
func (s *Session) Run(ctx context.Context) error {
	s.lock.Lock()
	switch {
	case s.closed:
		s.lock.Unlock()
		return ErrClosed
	case s.port == nil:
		s.lock.Unlock()
		return ErrNotOpen
	case s.running:
		s.lock.Unlock()
		return ErrRunning
	}
	s.running = true
	port := s.port
	s.lock.Unlock()
	defer close(s.doneCh)

	chunkCh, errCh := make(chan []byte), make(chan error, 1)
	go s.readLoop(port, chunkCh, errCh)

	var (
		timer    <-chan time.Time
		deadline time.Time
	)
	for {
		var err error
		select {
		case <-ctx.Done():
			s.teardown(nil)
			return ctx.Err()
		case <-s.closeCh:
			s.teardown(nil)
			return nil
		case chunk := <-chunkCh:
			err = s.receive(ctx, chunk)
		case err = <-errCh:
			if s.isClosed() {
				// the port was closed under the pending read
				s.teardown(nil)
				return nil
			}
			err = fmt.Errorf("read: %w", err)
		case err = <-s.failCh:
		case cmd := <-s.reqCh:
			err = s.handle(cmd)
		case now := <-timer:
			timer, deadline = nil, time.Time{}
			err = s.apply(s.ctrl.Timeout(now))
		}
		if err != nil {
			s.teardown(err)
			return err
		}
		if d, ok := s.ctrl.Deadline(); !ok {
			timer, deadline = nil, time.Time{}
		} else if timer == nil || !d.Equal(deadline) {
			timer, deadline = time.After(time.Until(d)), d
		}
	}
}

func (s *Session) readLoop(port Port, chunkCh chan<- []byte, errCh chan<- error) {
	for {
		buf := make([]byte, s.config.ReadSize)
		n, err := port.Read(buf)
		if n > 0 {
			select {
			case chunkCh <- buf[:n]:
			case <-s.closeCh:
				return
			}
		}
		if err != nil {
			errCh <- err
			return
		}
	}
}

func (s *Session) receive(ctx context.Context, chunk []byte) error {
	s.acc.Append(chunk)
	if s.ctrl.Mode() != mode.Data {
		return s.apply(s.ctrl.Feed(&s.acc))
	}
	res := s.decoder.Decode(&s.acc)
	for _, ev := range res.Events {
		if ev.Kind == framing.EventOversize {
			glog.Warningf("no frame found, %s", ev)
			s.emit(OversizeClear{Bytes: ev.Bytes})
		} else {
			glog.V(1).Infof("%s", ev)
			s.emit(ResyncDiscard{Bytes: ev.Bytes})
		}
	}
	for _, frame := range res.Frames {
		if glog.V(2) {
			glog.Infof("frame %s seq=%d", frame.Kind(), frame.Sequence)
		}
		select {
		case s.frameCh <- frame:
		case <-ctx.Done():
			return nil
		case <-s.closeCh:
			return nil
		}
	}
	return nil
}

func (s *Session) handle(cmd *Command) error {
	now := time.Now()
	var (
		act mode.Action
		err error
	)
	switch cmd.op {
	case mode.OpEnter:
		act, err = s.ctrl.Enter(now)
	case mode.OpExit:
		act, err = s.ctrl.Exit(now)
	case mode.OpReboot:
		act, err = s.ctrl.Reboot()
	default:
		act, err = s.ctrl.Issue(cmd.text, cmd.timeout, now)
	}
	if err != nil {
		glog.V(1).Infof("%s %q rejected: %v", cmd.op, cmd.text, err)
		cmd.resolve(Result{Err: err})
		return nil
	}
	s.inflight = cmd
	return s.apply(act)
}

func (s *Session) apply(act mode.Action) error {
	if act.Clear {
		s.acc.Clear()
	}
	if t := act.Transition; t != nil {
		s.writeLock.Lock()
		s.mode.Store(int32(t.To))
		s.writeLock.Unlock()
		glog.Infof("radio mode %s -> %s", t.From, t.To)
	}
	if len(act.Write) > 0 {
		if err := s.writePort(act.Write); err != nil {
			return err
		}
	}
	res := act.Done
	if t := act.Transition; t != nil {
		d := ModeTransition{From: t.From, To: t.To}
		if res != nil && res.Op != mode.OpCommand {
			d.Err = res.Err
		}
		s.emit(d)
	}
	if res == nil {
		return nil
	}
	if res.Op == mode.OpCommand {
		if res.Err != nil {
			glog.Warningf("command %q: %v", res.Command, res.Err)
		}
		s.emit(CommandResult{Command: res.Command, Response: res.Response, Err: res.Err})
	}
	if cmd := s.inflight; cmd != nil {
		s.inflight = nil
		cmd.resolve(Result{Response: res.Response, Err: res.Err})
	}
	return nil
}

func (s *Session) writePort(p []byte) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	port, err := s.currentPort()
	if err != nil {
		return err
	}
	if _, err = port.Write(p); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (s *Session) currentPort() (Port, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.port == nil {
		return nil, ErrNotOpen
	}
	return s.port, nil
}

func (s *Session) isClosed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.closed
}

func (s *Session) submit(cmd *Command) *Command {
	s.lock.Lock()
	defer s.lock.Unlock()
	switch {
	case s.closed:
		cmd.resolve(Result{Err: ErrClosed})
	case s.port == nil:
		cmd.resolve(Result{Err: ErrNotOpen})
	default:
		select {
		case s.reqCh <- cmd:
		default:
			cmd.resolve(Result{Err: ErrQueueFull})
		}
	}
	return cmd
}

func (s *Session) drainRequests() {
	for {
		select {
		case cmd := <-s.reqCh:
			cmd.resolve(Result{Err: ErrClosed})
		default:
			return
		}
	}
}

func (s *Session) emit(d Diagnostic) {
	select {
	case s.diagCh <- d:
	default:
		glog.Warningf("diagnostic dropped: %s", d)
	}
}

// emitTerminal makes room for d by dropping the oldest event.
func (s *Session) emitTerminal(d Diagnostic) {
	for {
		select {
		case s.diagCh <- d:
			return
		default:
		}
		select {
		case old := <-s.diagCh:
			glog.Warningf("diagnostic dropped: %s", old)
		default:
		}
	}
}

func (s *Session) teardown(cause error) {
	s.lock.Lock()
	s.closed = true
	port := s.port
	s.port = nil
	s.lock.Unlock()
	s.closeOnce.Do(func() { close(s.closeCh) })

	var errs fx.AggregatedError
	if port != nil {
		errs.Add(port.Close())
	}
	s.apply(s.ctrl.Abort(ErrClosed))
	s.drainRequests()
	if cause != nil {
		glog.Errorf("link terminated: %v", cause)
		s.emitTerminal(TransportFailure{Err: cause})
	}
	close(s.frameCh)
	close(s.diagCh)
	s.closeErr = errs.Aggregate()
}
