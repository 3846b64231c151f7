package link

import (
	"context"
	"errors"

	"github.com/robotalks/radiolink/pkg/radio/at"
	"github.com/robotalks/radiolink/pkg/radio/mode"
)

// Info returns the firmware banner.
func (s *Session) Info(ctx context.Context) (string, error) {
	return s.IssueCommand(at.CmdInfo, 0).Wait(ctx)
}

// Params lists the radio registers.
func (s *Session) Params(ctx context.Context) ([]at.Param, error) {
	text, err := s.IssueCommand(at.CmdParams, 0).Wait(ctx)
	if err != nil {
		return nil, err
	}
	return at.ParseParams(text)
}

// SetParam sets a register. The value is volatile until Save.
func (s *Session) SetParam(ctx context.Context, reg, value int) error {
	_, err := s.IssueCommand(at.SetParam(reg, value), 0).Wait(ctx)
	return err
}

// Save writes the current registers to EEPROM.
func (s *Session) Save(ctx context.Context) error {
	_, err := s.IssueCommand(at.CmdSave, 0).Wait(ctx)
	return err
}

// FactoryReset restores default registers.
func (s *Session) FactoryReset(ctx context.Context) error {
	_, err := s.IssueCommand(at.CmdFactoryReset, 0).Wait(ctx)
	return err
}

// Reboot restarts the radio, which leaves command mode.
func (s *Session) Reboot(ctx context.Context) error {
	_, err := s.submit(newCommand(mode.OpReboot, at.CmdReboot, 0)).Wait(ctx)
	return err
}

// InCommandMode runs fn with the radio in command mode. The radio is
// returned to Data mode afterwards unless it was already in command mode
// or fn left it.
func (s *Session) InCommandMode(ctx context.Context, fn func(context.Context) error) error {
	_, err := s.EnterCommandMode().Wait(ctx)
	entered := err == nil
	if err != nil && !errors.Is(err, mode.ErrAlreadyCommand) {
		return err
	}
	err = fn(ctx)
	if entered && s.Mode() == mode.Command {
		if _, exitErr := s.ExitCommandMode().Wait(ctx); err == nil {
			err = exitErr
		}
	}
	return err
}
