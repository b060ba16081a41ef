// Package power abstracts board power control. The concrete mechanism
// (relay board, PDU outlet, lab-host script) lives behind the Controller
// interface; errors from it are fatal to session construction or teardown.
package power

import (
	"context"
	"fmt"
	"os/exec"
)

// Controller switches a single board's power domain. Calls are externally
// serialized per board; implementations need not be concurrency-safe.
type Controller interface {
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
}

// CommandController drives power through external commands, the common
// case for lab PDUs exposed via vendor CLIs.
type CommandController struct {
	OnCmd  []string
	OffCmd []string
}

// PowerOn runs the configured power-on command.
func (c *CommandController) PowerOn(ctx context.Context) error {
	return c.run(ctx, c.OnCmd, "power on")
}

// PowerOff runs the configured power-off command.
func (c *CommandController) PowerOff(ctx context.Context) error {
	return c.run(ctx, c.OffCmd, "power off")
}

func (c *CommandController) run(ctx context.Context, argv []string, what string) error {
	if len(argv) == 0 {
		return fmt.Errorf("%s: no command configured", what)
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s %q: %w (output: %s)", what, argv[0], err, out)
	}
	return nil
}

// NullController is for boards that are permanently powered (or powered
// by hand); both transitions succeed without doing anything.
type NullController struct{}

func (NullController) PowerOn(context.Context) error  { return nil }
func (NullController) PowerOff(context.Context) error { return nil }
