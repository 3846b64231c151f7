package mode

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/radiolink/pkg/radio/framing"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type controllerTestCtx struct {
	t   *testing.T
	c   *Controller
	acc framing.Accumulator
	now time.Time
}

func newControllerTest(t *testing.T) *controllerTestCtx {
	return &controllerTestCtx{
		t: t,
		c: &Controller{
			EnterTimeout:   time.Second,
			ExitTimeout:    time.Second,
			CommandTimeout: time.Second,
		},
		now: t0,
	}
}

func (x *controllerTestCtx) feed(in string) Action {
	x.acc.Append([]byte(in))
	return x.c.Feed(&x.acc)
}

func (x *controllerTestCtx) after(d time.Duration) Action {
	x.now = x.now.Add(d)
	return x.c.Timeout(x.now)
}

func (x *controllerTestCtx) enter() *controllerTestCtx {
	act, err := x.c.Enter(x.now)
	require.NoError(x.t, err)
	require.Equal(x.t, []byte("+++"), act.Write)
	act = x.feed("OK\r\n")
	require.NotNil(x.t, act.Done)
	require.NoError(x.t, act.Done.Err)
	require.Equal(x.t, Command, x.c.Mode())
	return x
}

func TestModeString(t *testing.T) {
	require.Equal(t, "DATA", Data.String())
	require.Equal(t, "ENTERING_COMMAND", EnteringCommand.String())
	require.Equal(t, "COMMAND", Command.String())
	require.Equal(t, "EXITING_COMMAND", ExitingCommand.String())
	require.Equal(t, "UNKNOWN", Mode(9).String())
	require.Equal(t, "reboot", OpReboot.String())
}

func TestEnterCommand(t *testing.T) {
	x := newControllerTest(t)
	act, err := x.c.Enter(x.now)
	require.NoError(t, err)
	require.Equal(t, Action{
		Clear:      true,
		Transition: &Transition{From: Data, To: EnteringCommand},
		Write:      []byte("+++"),
	}, act)
	deadline, ok := x.c.Deadline()
	require.True(t, ok)
	require.Equal(t, t0.Add(time.Second), deadline)

	act = x.feed("O")
	require.Equal(t, Action{}, act)
	act = x.feed("K\r\n")
	require.Equal(t, Action{
		Clear:      true,
		Transition: &Transition{From: EnteringCommand, To: Command},
		Done:       &Result{Op: OpEnter, Command: "+++"},
	}, act)
	require.Equal(t, Command, x.c.Mode())
	require.False(t, x.c.Pending())
	_, ok = x.c.Deadline()
	require.False(t, ok)
}

func TestEnterAfterTelemetryResidue(t *testing.T) {
	x := newControllerTest(t)
	_, err := x.c.Enter(x.now)
	require.NoError(t, err)
	act := x.feed("\x08\x01\x2a\x05\r\nOK\r\n")
	require.NotNil(t, act.Done)
	require.NoError(t, act.Done.Err)
	require.Equal(t, Command, x.c.Mode())
}

func TestEnterGuardTime(t *testing.T) {
	x := newControllerTest(t)
	x.c.GuardTime = 500 * time.Millisecond
	act, err := x.c.Enter(x.now)
	require.NoError(t, err)
	require.Nil(t, act.Write)
	require.Equal(t, EnteringCommand, x.c.Mode())

	// input during the guard time is not an acknowledgment
	require.Equal(t, Action{}, x.feed("OK\r\n"))
	require.Equal(t, 0, x.acc.Len())

	require.Equal(t, Action{}, x.after(100*time.Millisecond))
	act = x.after(400 * time.Millisecond)
	require.Equal(t, Action{Write: []byte("+++")}, act)
	deadline, ok := x.c.Deadline()
	require.True(t, ok)
	require.Equal(t, t0.Add(1500*time.Millisecond), deadline)

	act = x.feed("OK\r\n")
	require.NotNil(t, act.Done)
	require.Equal(t, Command, x.c.Mode())
}

func TestEnterFailures(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		x := newControllerTest(t)
		_, err := x.c.Enter(x.now)
		require.NoError(t, err)
		require.Equal(t, Action{}, x.after(999*time.Millisecond))
		act := x.after(time.Millisecond)
		require.Equal(t, Action{
			Clear:      true,
			Transition: &Transition{From: EnteringCommand, To: Data},
			Done:       &Result{Op: OpEnter, Command: "+++", Err: ErrTimeout},
		}, act)
		require.Equal(t, Data, x.c.Mode())
	})

	t.Run("negative acknowledgment", func(t *testing.T) {
		x := newControllerTest(t)
		_, err := x.c.Enter(x.now)
		require.NoError(t, err)
		act := x.feed("ERROR\r\n")
		require.True(t, act.Clear)
		require.Equal(t, ErrNoAck, act.Done.Err)
		require.Equal(t, Data, x.c.Mode())
	})

	t.Run("busy", func(t *testing.T) {
		x := newControllerTest(t)
		_, err := x.c.Enter(x.now)
		require.NoError(t, err)
		act, err := x.c.Enter(x.now)
		require.Equal(t, ErrBusy, err)
		require.Equal(t, Action{}, act)
		_, err = x.c.Exit(x.now)
		require.Equal(t, ErrBusy, err)
		_, err = x.c.Issue("ATI", 0, x.now)
		require.Equal(t, ErrNotCommand, err)
	})

	t.Run("already in command mode", func(t *testing.T) {
		x := newControllerTest(t).enter()
		act, err := x.c.Enter(x.now)
		require.Equal(t, ErrAlreadyCommand, err)
		require.Nil(t, act.Write)
		require.Equal(t, Command, x.c.Mode())
	})
}

func TestIssueCommand(t *testing.T) {
	testCases := []struct {
		name     string
		replies  []string
		response string
		err      error
	}{
		{"info", []string{"ATI\r\nSiK 1.9 on HM-TRP\r\nOK\r\n"}, "SiK 1.9 on HM-TRP", nil},
		{"suffix result", []string{"SiK 1.9 on HM-TRP", "OK\r\n"}, "SiK 1.9 on HM-TRP", nil},
		{"no echo", []string{"\r\nSiK\r\n\r\nOK\r\n"}, "SiK", nil},
		{"multi line", []string{"ATI\r\nS0:FORMAT=25\r\nS1:SERIAL_SPEED=57\r\n", "OK\r\n"}, "S0:FORMAT=25\nS1:SERIAL_SPEED=57", nil},
		{"error", []string{"ATI\r\nERROR\r\n"}, "", &CommandError{Command: "ATI"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			x := newControllerTest(t).enter()
			act, err := x.c.Issue("ATI", 0, x.now)
			require.NoError(t, err)
			require.Equal(t, Action{Write: []byte("ATI\r\n")}, act)
			for _, reply := range tc.replies {
				act = x.feed(reply)
			}
			require.NotNil(t, act.Done)
			require.Nil(t, act.Transition)
			require.Equal(t, OpCommand, act.Done.Op)
			require.Equal(t, "ATI", act.Done.Command)
			require.Equal(t, tc.response, act.Done.Response)
			require.Equal(t, tc.err, act.Done.Err)
			require.Equal(t, Command, x.c.Mode())
			require.False(t, x.c.Pending())
		})
	}
}

func TestIssueRejected(t *testing.T) {
	x := newControllerTest(t)
	act, err := x.c.Issue("ATI", 0, x.now)
	require.Equal(t, ErrNotCommand, err)
	require.Nil(t, act.Write)

	x.enter()
	_, err = x.c.Issue("", 0, x.now)
	require.Equal(t, ErrInvalidCommand, err)
	_, err = x.c.Issue("ATI\r\nATZ", 0, x.now)
	require.Equal(t, ErrInvalidCommand, err)

	_, err = x.c.Issue("ATI5", 0, x.now)
	require.NoError(t, err)
	act, err = x.c.Issue("ATI", 0, x.now)
	require.Equal(t, ErrCommandPending, err)
	require.Equal(t, Action{}, act)

	_, err = x.c.Exit(x.now)
	require.Equal(t, ErrBusy, err)
	_, err = x.c.Reboot()
	require.Equal(t, ErrBusy, err)
}

func TestCommandTimeout(t *testing.T) {
	x := newControllerTest(t).enter()
	_, err := x.c.Issue("ATS3=25", 200*time.Millisecond, x.now)
	require.NoError(t, err)
	x.feed("ATS3=25\r\npartial")
	act := x.after(200 * time.Millisecond)
	require.Equal(t, Action{Done: &Result{Op: OpCommand, Command: "ATS3=25", Err: ErrTimeout}}, act)
	require.Equal(t, Command, x.c.Mode())

	// the late reply is dropped
	require.Equal(t, Action{}, x.feed("OK\r\n"))
	_, err = x.c.Issue("ATI", 0, x.now)
	require.NoError(t, err)
}

func TestExitCommand(t *testing.T) {
	t.Run("acknowledged", func(t *testing.T) {
		x := newControllerTest(t).enter()
		act, err := x.c.Exit(x.now)
		require.NoError(t, err)
		require.Equal(t, Action{
			Transition: &Transition{From: Command, To: ExitingCommand},
			Write:      []byte("ATO\r\n"),
		}, act)
		act = x.feed("ATO\r\nOK\r\n\x08\x01")
		require.Equal(t, Action{
			Clear:      true,
			Transition: &Transition{From: ExitingCommand, To: Data},
			Done:       &Result{Op: OpExit, Command: "ATO"},
		}, act)
		require.Equal(t, Data, x.c.Mode())
	})

	t.Run("timeout forces data mode", func(t *testing.T) {
		x := newControllerTest(t).enter()
		_, err := x.c.Exit(x.now)
		require.NoError(t, err)
		act := x.after(time.Second)
		require.True(t, act.Clear)
		require.Equal(t, &Transition{From: ExitingCommand, To: Data}, act.Transition)
		require.Equal(t, ErrTimeout, act.Done.Err)
	})

	t.Run("refused", func(t *testing.T) {
		x := newControllerTest(t).enter()
		_, err := x.c.Exit(x.now)
		require.NoError(t, err)
		act := x.feed("ERROR\r\n")
		require.False(t, act.Clear)
		require.Equal(t, &Transition{From: ExitingCommand, To: Command}, act.Transition)
		var cmdErr *CommandError
		require.True(t, errors.As(act.Done.Err, &cmdErr))
		require.Equal(t, "ATO", cmdErr.Command)
	})

	t.Run("not in command mode", func(t *testing.T) {
		x := newControllerTest(t)
		_, err := x.c.Exit(x.now)
		require.Equal(t, ErrNotCommand, err)
	})
}

func TestReboot(t *testing.T) {
	x := newControllerTest(t).enter()
	act, err := x.c.Reboot()
	require.NoError(t, err)
	require.Equal(t, Action{
		Clear:      true,
		Transition: &Transition{From: Command, To: Data},
		Write:      []byte("ATZ\r\n"),
		Done:       &Result{Op: OpReboot, Command: "ATZ"},
	}, act)
	require.False(t, x.c.Pending())
}

func TestAbort(t *testing.T) {
	errClosed := errors.New("closed")
	x := newControllerTest(t).enter()
	_, err := x.c.Issue("ATI", 0, x.now)
	require.NoError(t, err)
	act := x.c.Abort(errClosed)
	require.True(t, act.Clear)
	require.Equal(t, &Transition{From: Command, To: Data}, act.Transition)
	require.Equal(t, errClosed, act.Done.Err)
	require.False(t, x.c.Pending())

	act = x.c.Abort(errClosed)
	require.Equal(t, Action{Clear: true}, act)
}

func TestLongLineDropped(t *testing.T) {
	x := newControllerTest(t).enter()
	x.feed(string(bytes.Repeat([]byte{0xaa}, MaxLineLength)))
	require.Equal(t, MaxLineLength, x.acc.Len())
	x.feed("x")
	require.Equal(t, 0, x.acc.Len())
}

func TestCommandErrorMessage(t *testing.T) {
	require.Equal(t, `command "ATI" failed`, (&CommandError{Command: "ATI"}).Error())
	require.Equal(t, `command "ATS99=1" failed: bad register`, (&CommandError{Command: "ATS99=1", Response: "bad register"}).Error())
}
