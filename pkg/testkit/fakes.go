package testkit

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// PowerRecorder is a power.Controller that records every transition, for
// lifecycle exactness tests.
type PowerRecorder struct {
	mu    sync.Mutex
	Calls []string

	FailOn string // "on" or "off" forces that transition to fail
}

// PowerOn records the transition.
func (p *PowerRecorder) PowerOn(context.Context) error {
	return p.record("on")
}

// PowerOff records the transition.
func (p *PowerRecorder) PowerOff(context.Context) error {
	return p.record("off")
}

func (p *PowerRecorder) record(what string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, what)
	if p.FailOn == what {
		return fmt.Errorf("forced %s failure", what)
	}
	return nil
}

// Sequence returns a copy of the recorded transitions.
func (p *PowerRecorder) Sequence() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	copy(out, p.Calls)
	return out
}

// ConsoleFactory returns a board.ConnectFunc producing a fresh scripted
// console per session, recording each console it hands out.
type ConsoleFactory struct {
	Opts ConsoleOptions

	mu       sync.Mutex
	Consoles []*ScriptedConsole
}

// Connect creates the next scripted console.
func (f *ConsoleFactory) Connect(context.Context) (io.ReadWriteCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := NewConsole(f.Opts)
	f.Consoles = append(f.Consoles, c)
	return c, nil
}

// UBootOptions is the scripted equivalent of a board whose U-Boot counts
// down before autobooting.
func UBootOptions() ConsoleOptions {
	return ConsoleOptions{
		Banner:         "U-Boot 2020.01 (scripted)\n\nDRAM:  512 MiB\n",
		AutobootBanner: "Hit any key to stop autoboot:  3 \n",
		Prompt:         "=> ",
	}
}
