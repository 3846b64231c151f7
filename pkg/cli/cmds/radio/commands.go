// Package radio provides console commands operating the radio.
package radio

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/radiolink/pkg/cli/sh"
	"github.com/robotalks/radiolink/pkg/radio/at"
)

// inCommandMode runs fn with the radio in command mode, entering and
// leaving it when the user has not done so.
func inCommandMode(c *ishell.Context, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sh.Session(c).InCommandMode(ctx, fn); err != nil {
		c.Err(err)
	}
}

func ok(c *ishell.Context) {
	sh.Print(c, map[string]bool{"ok": true}, "OK")
}

func parseInt(c *ishell.Context, name, arg string) (int, bool) {
	val, err := strconv.Atoi(arg)
	if err != nil {
		c.Err(fmt.Errorf("Invalid %s: %v", name, err))
		return 0, false
	}
	return val, true
}

var (
	// EnterCmd switches the radio to command mode.
	EnterCmd = ishell.Cmd{
		Name:    "enter",
		Aliases: []string{"+++"},
		Help:    "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if _, err := sh.Await(c, sh.Session(c).EnterCommandMode()); err == nil {
				ok(c)
			}
		}),
	}

	// ExitCmd returns the radio to data mode.
	ExitCmd = ishell.Cmd{
		Name:    "exit-command",
		Aliases: []string{"ato"},
		Help:    "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if _, err := sh.Await(c, sh.Session(c).ExitCommandMode()); err == nil {
				ok(c)
			}
		}),
	}

	// ATCmd issues a raw AT command in command mode.
	ATCmd = ishell.Cmd{
		Name: "at",
		Help: "COMMAND (e.g. ATI2)",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("COMMAND required"))
				return
			}
			text := strings.Join(c.Args, " ")
			if !strings.HasPrefix(strings.ToUpper(text), "AT") {
				text = "AT" + text
			}
			resp, err := sh.Await(c, sh.Session(c).IssueCommand(text, 0))
			if err != nil {
				return
			}
			sh.Print(c, map[string]string{"command": text, "response": resp}, resp)
		}),
	}

	// InfoCmd shows the firmware banner.
	InfoCmd = ishell.Cmd{
		Name:    "info",
		Aliases: []string{"ati"},
		Help:    "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			inCommandMode(c, func(ctx context.Context) error {
				info, err := sh.Session(c).Info(ctx)
				if err == nil {
					sh.Print(c, map[string]string{"info": info}, info)
				}
				return err
			})
		}),
	}

	// ParamsCmd lists the radio registers.
	ParamsCmd = ishell.Cmd{
		Name:    "params",
		Aliases: []string{"ati5"},
		Help:    "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			inCommandMode(c, func(ctx context.Context) error {
				params, err := sh.Session(c).Params(ctx)
				if err != nil {
					return err
				}
				if params == nil {
					params = []at.Param{}
				}
				lines := make([]string, len(params))
				for n, p := range params {
					lines[n] = p.String()
				}
				sh.Print(c, params, strings.Join(lines, "\n"))
				return nil
			})
		}),
	}

	// SetCmd sets a register.
	SetCmd = ishell.Cmd{
		Name:    "set",
		Aliases: []string{"ats"},
		Help:    "REGISTER VALUE",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("REGISTER and VALUE required"))
				return
			}
			reg, valid := parseInt(c, "REGISTER", strings.TrimPrefix(strings.ToUpper(c.Args[0]), "S"))
			if !valid {
				return
			}
			val, valid := parseInt(c, "VALUE", c.Args[1])
			if !valid {
				return
			}
			inCommandMode(c, func(ctx context.Context) error {
				err := sh.Session(c).SetParam(ctx, reg, val)
				if err == nil {
					ok(c)
				}
				return err
			})
		}),
	}

	// SaveCmd writes registers to EEPROM.
	SaveCmd = ishell.Cmd{
		Name:    "save",
		Aliases: []string{"at&w"},
		Help:    "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			inCommandMode(c, func(ctx context.Context) error {
				err := sh.Session(c).Save(ctx)
				if err == nil {
					ok(c)
				}
				return err
			})
		}),
	}

	// ResetCmd restores factory registers.
	ResetCmd = ishell.Cmd{
		Name:    "factory-reset",
		Aliases: []string{"at&f"},
		Help:    "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			inCommandMode(c, func(ctx context.Context) error {
				err := sh.Session(c).FactoryReset(ctx)
				if err == nil {
					ok(c)
				}
				return err
			})
		}),
	}

	// RebootCmd restarts the radio.
	RebootCmd = ishell.Cmd{
		Name:    "reboot",
		Aliases: []string{"atz"},
		Help:    "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			inCommandMode(c, func(ctx context.Context) error {
				err := sh.Session(c).Reboot(ctx)
				if err == nil {
					ok(c)
				}
				return err
			})
		}),
	}
)

func init() {
	sh.AddCmds(
		&EnterCmd,
		&ExitCmd,
		&ATCmd,
		&InfoCmd,
		&ParamsCmd,
		&SetCmd,
		&SaveCmd,
		&ResetCmd,
		&RebootCmd,
	)
}
