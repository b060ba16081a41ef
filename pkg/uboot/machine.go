// Package uboot drives a U-Boot shell over a board's console channel:
// autoboot interception on session start, command execution with return
// code recovery, environment access, and interactive hand-off.
package uboot

import (
	"fmt"
	"io"
	"strings"
	"time"

	"boardlab/pkg/board"
	"boardlab/pkg/channel"
	"boardlab/pkg/cmdline"
	"boardlab/pkg/console"
	"boardlab/pkg/logx"
	"boardlab/pkg/metrics"
)

// Config describes how a board's U-Boot behaves on the console.
type Config struct {
	// Prompt is the steady prompt configured when U-Boot was built.
	Prompt string

	// AutobootPrompt is the regular expression of the autoboot banner.
	// Empty disables autoboot interception for this board.
	AutobootPrompt string

	// AutobootKeys are sent to abort the countdown.
	AutobootKeys string

	// BootTimeout bounds each wait during boot interception.
	BootTimeout time.Duration

	// CommandTimeout bounds a single command's prompt wait.
	CommandTimeout time.Duration

	// PathRoot is the mount root visible to U-Boot (TFTP directory).
	PathRoot string
}

// DefaultConfig matches the common U-Boot build: mainline banner regex,
// newline interception, "U-Boot> " prompt, /tftpboot file root.
func DefaultConfig() Config {
	return Config{
		Prompt:         "U-Boot> ",
		AutobootPrompt: `Hit any key to stop autoboot:\s+\d+\s+`,
		AutobootKeys:   "\n",
		BootTimeout:    2 * time.Minute,
		CommandTimeout: 30 * time.Second,
		PathRoot:       "/tftpboot",
	}
}

// Machine is a synchronized U-Boot shell. After construction the channel
// is positioned exactly after the steady prompt; the next bytes read
// belong to a fresh command's output.
type Machine struct {
	console.Shell

	cfg     Config
	bootlog string
}

// New boots a machine on top of an open board session, intercepting
// autoboot when configured. A timeout during boot is fatal: the channel
// must be assumed desynchronized and no machine is returned.
func New(s *board.Session, cfg Config, sink io.Writer) (*Machine, error) {
	name := s.Board().Name + "-uboot"
	return Attach(name, s.Channel(), cfg, sink)
}

// Attach performs boot interception directly on a channel. Split out from
// New so tests and derived setups can run against a bare channel.
func Attach(name string, ch *channel.Channel, cfg Config, sink io.Writer) (*Machine, error) {
	if cfg.Prompt == "" {
		return nil, fmt.Errorf("%s: no steady prompt configured", name)
	}
	if cfg.AutobootKeys == "" {
		cfg.AutobootKeys = "\n"
	}
	if cfg.BootTimeout <= 0 {
		cfg.BootTimeout = DefaultConfig().BootTimeout
	}

	m := &Machine{
		Shell: console.Shell{
			Name:    name,
			Ch:      ch,
			Prompt:  cfg.Prompt,
			Opts:    cmdline.Opts{PathRoot: cfg.PathRoot},
			Timeout: cfg.CommandTimeout,
			Sink:    sink,
			Logger:  logx.NewLogger(name),
		},
		cfg: cfg,
	}

	if err := m.interceptBoot(sink); err != nil {
		return nil, err
	}
	return m, nil
}

// interceptBoot walks the boot state machine: wait for the autoboot
// banner, inject the interrupt keys, then wait for the steady prompt. The
// captured autoboot-phase output, minus its first line, becomes the boot
// log. Without an autoboot prompt the machine waits for the steady prompt
// directly.
func (m *Machine) interceptBoot(sink io.Writer) error {
	var captured string

	if m.cfg.AutobootPrompt != "" {
		pat, err := channel.Regex(m.cfg.AutobootPrompt)
		if err != nil {
			return fmt.Errorf("%s: autoboot prompt: %w", m.Name, err)
		}

		captured, err = m.Ch.ReadUntilPrompt(pat, m.cfg.BootTimeout, sink)
		if err != nil {
			return m.bootFailure("autoboot banner", err)
		}
		if err := m.Ch.SendString(m.cfg.AutobootKeys); err != nil {
			return fmt.Errorf("%s: send autoboot keys: %w", m.Name, err)
		}
		if _, err := m.Ch.ReadUntilPrompt(channel.Lit(m.cfg.Prompt), m.cfg.BootTimeout, sink); err != nil {
			return m.bootFailure("steady prompt", err)
		}
	} else {
		out, err := m.Ch.ReadUntilPrompt(channel.Lit(m.cfg.Prompt), m.cfg.BootTimeout, sink)
		if err != nil {
			return m.bootFailure("steady prompt", err)
		}
		captured = strings.TrimSuffix(out, m.cfg.Prompt)
	}

	// The first captured line belongs to whatever preceded the session;
	// everything after it is the externally visible boot log.
	if idx := strings.Index(captured, "\n"); idx >= 0 {
		m.bootlog = captured[idx+1:]
	} else {
		m.bootlog = ""
	}

	m.Logger.Infof("reached steady prompt %q", m.cfg.Prompt)
	return nil
}

func (m *Machine) bootFailure(phase string, err error) error {
	if channel.IsTimeout(err) {
		metrics.PromptTimeouts.WithLabelValues(m.Name).Inc()
	}
	return fmt.Errorf("%s: waiting for %s: %w", m.Name, phase, err)
}

// Bootlog returns the text captured between session start and the first
// usable prompt, with the banner line stripped.
func (m *Machine) Bootlog() string {
	return m.bootlog
}

// Close releases the machine's channel. Any Linux session derived from
// this console detaches with it.
func (m *Machine) Close() error {
	return m.Ch.Close()
}
