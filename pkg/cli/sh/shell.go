package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/radiolink/pkg/config"
	"github.com/robotalks/radiolink/pkg/radio/link"
)

// Shell provides ishell backed interactive radio console.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoOpen    bool

	Shell  *ishell.Shell
	Config *config.Config
	Link   *Link
}

// Link is an open session with its loop running.
type Link struct {
	Session *link.Session
	Cancel  func()

	frames atomic.Int64
	doneCh chan struct{}
}

// Frames returns the number of frames received since the link was opened.
func (l *Link) Frames() int64 {
	return l.frames.Load()
}

const (
	shellKey       = "$shell"
	closedPrompt   = "[closed] > "
	commandTimeout = 10 * time.Second
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&OpenCmd,
		&CloseCmd,
		&ModeCmd,
		&SendCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *config.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(closedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpen wraps command func requires an open link.
func MustBeOpen(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Link == nil {
			c.Err(fmt.Errorf("link not open"))
			return
		}
		fn(c)
	}
}

// Session returns the session of the open link.
func Session(c *ishell.Context) *link.Session {
	return ShellFrom(c).Link.Session
}

// Await waits for a submitted command and reports failures.
func Await(c *ishell.Context, cmd *link.Command) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	resp, err := cmd.Wait(ctx)
	if err != nil {
		c.Err(err)
	}
	return resp, err
}

// Print prints v as JSON when requested, or text otherwise.
func Print(c *ishell.Context, v interface{}, text string) {
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text)
}

// WithAutoOpen sets AutoOpen.
func (s *Shell) WithAutoOpen(en bool) *Shell {
	s.AutoOpen = en
	return s
}

// Open opens the radio on port, replacing any open link.
func (s *Shell) Open(port string, baud int) error {
	conf := s.Config.LinkConfig()
	if port != "" {
		conf.PortName = port
	}
	if conf.PortName == "" {
		return fmt.Errorf("serial port must be specified")
	}
	session := link.New(conf)
	if err := session.Open(baud); err != nil {
		return err
	}
	s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	l := &Link{Session: session, Cancel: cancel, doneCh: make(chan struct{})}
	go func() {
		if err := session.Run(ctx); err != nil {
			glog.Errorf("link stopped: %v", err)
		}
		close(l.doneCh)
	}()
	go func() {
		for range session.Frames() {
			l.frames.Add(1)
		}
	}()
	go func() {
		for d := range session.Diagnostics() {
			glog.Info(d.String())
		}
	}()
	s.Link = l
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", conf.PortName))
	return nil
}

// Close closes the open link.
func (s *Shell) Close() {
	if l := s.Link; l != nil {
		s.Link = nil
		if err := l.Session.Close(); err != nil {
			glog.Warningf("close link: %v", err)
		}
		l.Cancel()
		<-l.doneCh
		s.Shell.SetPrompt(closedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoOpen && s.Config.Link.Port != "" {
		if s.Interactive {
			s.Shell.Printf("Opening %s ...\n", s.Config.Link.Port)
		}
		if err := s.Open("", 0); err != nil {
			log.Fatalf("open %q failed: %v", s.Config.Link.Port, err)
		}
	}
	defer s.Close()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

type modeStatus struct {
	Mode   string `json:"mode"`
	Frames int64  `json:"frames"`
}

var (
	// OpenCmd opens the radio.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "[PORT [BAUD]]",
		Func: func(c *ishell.Context) {
			var port string
			var baud int
			if len(c.Args) > 0 {
				port = c.Args[0]
			}
			if len(c.Args) > 1 {
				val, err := strconv.Atoi(c.Args[1])
				if err != nil || val <= 0 {
					c.Err(fmt.Errorf("Invalid BAUD: %q", c.Args[1]))
					return
				}
				baud = val
			}
			if err := ShellFrom(c).Open(port, baud); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes the radio.
	CloseCmd = ishell.Cmd{
		Name: "close",
		Help: "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Close()
		},
	}

	// ModeCmd shows the current radio mode.
	ModeCmd = ishell.Cmd{
		Name:    "mode",
		Aliases: []string{"m"},
		Help:    "",
		Func: MustBeOpen(func(c *ishell.Context) {
			l := ShellFrom(c).Link
			st := modeStatus{Mode: l.Session.Mode().String(), Frames: l.Frames()}
			Print(c, st, fmt.Sprintf("%s (%d frames received)", st.Mode, st.Frames))
		}),
	}

	// SendCmd writes raw text to the radio in data mode.
	SendCmd = ishell.Cmd{
		Name: "send",
		Help: "TEXT...",
		Func: MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("TEXT required"))
				return
			}
			if _, err := Session(c).Write([]byte(strings.Join(c.Args, " "))); err != nil {
				c.Err(err)
			}
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	conf, err := config.FromFlags()
	if err != nil {
		log.Fatalln(err)
	}
	New(conf).WithAutoOpen(true).Run(flag.Args()...)
}
