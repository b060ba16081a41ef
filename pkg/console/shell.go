// Package console implements the prompt-driven command protocol shared by
// the boot-loader and Linux machines: build a command line, send it, read
// back to the steady prompt, and recover the return code with an
// "echo $?" probe.
package console

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"boardlab/pkg/channel"
	"boardlab/pkg/cmdline"
	"boardlab/pkg/logx"
	"boardlab/pkg/metrics"
)

// DefaultCommandTimeout bounds a single command's prompt wait when the
// caller does not configure one.
const DefaultCommandTimeout = 30 * time.Second

// Shell is a synchronized command shell over a channel. It assumes the
// channel is positioned exactly after the steady prompt; every operation
// restores that position before returning successfully.
type Shell struct {
	Name    string
	Ch      *channel.Channel
	Prompt  string // literal steady prompt
	Opts    cmdline.Opts
	Timeout time.Duration
	Sink    io.Writer    // observability sink, may be nil
	Logger  *logx.Logger // may be nil
}

func (s *Shell) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultCommandTimeout
}

func (s *Shell) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Infof(format, args...)
	}
}

// BuildCommand renders args into the command line Exec would send.
func (s *Shell) BuildCommand(args ...any) (string, error) {
	return cmdline.Build(s.Opts, args...)
}

// roundTrip sends one line and returns the command's output: everything
// read up to the steady prompt, minus the echoed command line and the
// prompt itself. CRLF line endings from serial consoles are normalized.
func (s *Shell) roundTrip(command string) (string, error) {
	if err := s.Ch.SendString(command + "\n"); err != nil {
		return "", fmt.Errorf("%s: send %q: %w", s.Name, command, err)
	}

	raw, err := s.Ch.ReadUntilPrompt(channel.Lit(s.Prompt), s.timeout(), s.Sink)
	if err != nil {
		if channel.IsTimeout(err) {
			metrics.PromptTimeouts.WithLabelValues(s.Name).Inc()
		}
		return "", fmt.Errorf("%s: command %q: %w", s.Name, command, err)
	}

	out := strings.ReplaceAll(raw, "\r\n", "\n")
	out = strings.TrimSuffix(out, s.Prompt)
	// Drop the echoed command line.
	if idx := strings.Index(out, "\n"); idx >= 0 {
		out = out[idx+1:]
	} else {
		out = ""
	}
	return out, nil
}

// Exec runs a command and returns its exit code and output. The code is
// recovered with a follow-up "echo $?" round trip; the probe's own status
// is never observed because each Exec starts fresh.
func (s *Shell) Exec(args ...any) (int, string, error) {
	command, err := s.BuildCommand(args...)
	if err != nil {
		return 0, "", fmt.Errorf("%s: build command: %w", s.Name, err)
	}

	metrics.CommandsTotal.WithLabelValues(s.Name).Inc()
	s.logf("exec: %s", command)
	if s.Sink != nil {
		_, _ = io.WriteString(s.Sink, command+"\n")
	}

	out, err := s.roundTrip(command)
	if err != nil {
		return 0, "", err
	}

	probe, err := s.roundTrip("echo $?")
	if err != nil {
		return 0, "", fmt.Errorf("%s: retcode probe after %q: %w", s.Name, command, err)
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(probe))
	if convErr != nil {
		return 0, "", fmt.Errorf("%s: unparsable retcode %q after %q", s.Name, strings.TrimSpace(probe), command)
	}

	if code != 0 {
		metrics.CommandFailures.WithLabelValues(s.Name).Inc()
	}
	return code, out, nil
}

// Exec0 runs a command and requires a zero exit code, returning the
// output. Non-zero codes surface as *CommandFailedError.
func (s *Shell) Exec0(args ...any) (string, error) {
	command, err := s.BuildCommand(args...)
	if err != nil {
		return "", fmt.Errorf("%s: build command: %w", s.Name, err)
	}
	code, out, err := s.Exec(args...)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", &CommandFailedError{Machine: s.Name, Command: command, Code: code, Output: out}
	}
	return out, nil
}

// Test runs a command and reports whether it succeeded, swallowing its
// output.
func (s *Shell) Test(args ...any) (bool, error) {
	code, _, err := s.Exec(args...)
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

// GetEnv returns the value of a shell environment variable with the
// trailing newline stripped.
func (s *Shell) GetEnv(name string) (string, error) {
	out, err := s.Exec0("echo", cmdline.Env(name))
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(out, "\n"), nil
}
