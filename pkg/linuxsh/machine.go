// Package linuxsh drives a Linux login shell over the same channel
// contract as the boot-loader machine: it performs the login handshake
// (username/password prompts, possibly preceded by noisy boot text), sets
// a distinctive prompt, and then exposes the usual command protocol.
package linuxsh

import (
	"fmt"
	"io"
	"strings"
	"time"

	"boardlab/pkg/channel"
	"boardlab/pkg/cmdline"
	"boardlab/pkg/console"
	"boardlab/pkg/logx"
	"boardlab/pkg/uboot"
)

// Config describes the login handshake and shell behavior.
type Config struct {
	Username string
	Password string // empty skips the password prompt wait

	// LoginPrompt and PasswordPrompt are regular expressions matched
	// against the console stream; they tolerate arbitrary noisy boot
	// text before them and prompts split across reads.
	LoginPrompt    string
	PasswordPrompt string

	// Prompt is the distinctive shell prompt installed after login.
	Prompt string

	LoginTimeout   time.Duration
	CommandTimeout time.Duration
}

// DefaultConfig matches a stock getty/agetty login sequence.
func DefaultConfig() Config {
	return Config{
		LoginPrompt:    `login:\s*$`,
		PasswordPrompt: `Password:\s*$`,
		Prompt:         "boardlab-linux> ",
		LoginTimeout:   2 * time.Minute,
		CommandTimeout: 30 * time.Second,
	}
}

// Machine is a synchronized Linux shell.
type Machine struct {
	console.Shell

	cfg Config
}

// Boot starts Linux from a synchronized U-Boot machine by issuing the
// given boot command, then performs the login handshake on the same
// channel. The boot command never returns to the U-Boot prompt, so it is
// sent raw rather than through Exec.
func Boot(ub *uboot.Machine, cfg Config, sink io.Writer, bootArgs ...any) (*Machine, error) {
	command, err := ub.BuildCommand(bootArgs...)
	if err != nil {
		return nil, fmt.Errorf("%s: build boot command: %w", ub.Name, err)
	}
	if err := ub.Ch.SendString(command + "\n"); err != nil {
		return nil, fmt.Errorf("%s: send boot command: %w", ub.Name, err)
	}

	name := strings.TrimSuffix(ub.Name, "-uboot") + "-linux"
	return Attach(name, ub.Ch, cfg, sink)
}

// Attach performs the login handshake directly on a channel. A timeout
// during any wait is fatal; no machine is returned.
func Attach(name string, ch *channel.Channel, cfg Config, sink io.Writer) (*Machine, error) {
	def := DefaultConfig()
	if cfg.LoginPrompt == "" {
		cfg.LoginPrompt = def.LoginPrompt
	}
	if cfg.PasswordPrompt == "" {
		cfg.PasswordPrompt = def.PasswordPrompt
	}
	if cfg.Prompt == "" {
		cfg.Prompt = def.Prompt
	}
	if cfg.LoginTimeout <= 0 {
		cfg.LoginTimeout = def.LoginTimeout
	}

	m := &Machine{
		Shell: console.Shell{
			Name:    name,
			Ch:      ch,
			Prompt:  cfg.Prompt,
			Opts:    cmdline.Opts{PathRoot: "/"},
			Timeout: cfg.CommandTimeout,
			Sink:    sink,
			Logger:  logx.NewLogger(name),
		},
		cfg: cfg,
	}

	if err := m.login(sink); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Machine) login(sink io.Writer) error {
	loginPat, err := channel.Regex(m.cfg.LoginPrompt)
	if err != nil {
		return fmt.Errorf("%s: login prompt: %w", m.Name, err)
	}
	if _, err := m.Ch.ReadUntilPrompt(loginPat, m.cfg.LoginTimeout, sink); err != nil {
		return fmt.Errorf("%s: waiting for login prompt: %w", m.Name, err)
	}
	if err := m.Ch.SendString(m.cfg.Username + "\n"); err != nil {
		return fmt.Errorf("%s: send username: %w", m.Name, err)
	}

	if m.cfg.Password != "" {
		pwPat, err := channel.Regex(m.cfg.PasswordPrompt)
		if err != nil {
			return fmt.Errorf("%s: password prompt: %w", m.Name, err)
		}
		if _, err := m.Ch.ReadUntilPrompt(pwPat, m.cfg.LoginTimeout, sink); err != nil {
			return fmt.Errorf("%s: waiting for password prompt: %w", m.Name, err)
		}
		if err := m.Ch.SendString(m.cfg.Password + "\n"); err != nil {
			return fmt.Errorf("%s: send password: %w", m.Name, err)
		}
	}

	// Install a distinctive prompt and synchronize on it. History stays
	// off so the setup commands do not pollute later sessions.
	setup := fmt.Sprintf("unset HISTFILE; PS1='%s'", m.cfg.Prompt)
	if err := m.Ch.SendString(setup + "\n"); err != nil {
		return fmt.Errorf("%s: send prompt setup: %w", m.Name, err)
	}
	if _, err := m.Ch.ReadUntilPrompt(channel.Lit(m.cfg.Prompt), m.cfg.LoginTimeout, sink); err != nil {
		return fmt.Errorf("%s: waiting for shell prompt: %w", m.Name, err)
	}

	m.Logger.Infof("login complete, prompt %q installed", m.cfg.Prompt)
	return nil
}
