package uboot

import (
	"errors"
	"fmt"
	"io"
	"time"

	"boardlab/pkg/channel"
)

// ErrResyncFailed reports that the steady prompt could not be reacquired
// after an interactive session. The channel can no longer be assumed
// synchronized; the session is not usable for further commands.
var ErrResyncFailed = errors.New("failed to reacquire prompt after interactive session")

// resyncTimeout bounds the prompt wait when automated control resumes.
const resyncTimeout = 500 * time.Millisecond

// Interactive hands the console to a human operator: a wake newline
// confirms the remote echo is live, then the channel is relayed between
// in and out until the operator detaches (Ctrl-D). Afterwards the machine
// re-synchronizes against the steady prompt within a short bound.
func (m *Machine) Interactive(in io.Reader, out io.Writer) error {
	m.Logger.Infof("entering interactive session (Ctrl-D to detach)")

	if err := m.Ch.SendString(" \n"); err != nil {
		return fmt.Errorf("%s: wake before interactive: %w", m.Name, err)
	}
	if err := m.Ch.AttachInteractive(in, out); err != nil {
		return fmt.Errorf("%s: interactive relay: %w", m.Name, err)
	}

	if err := m.Ch.SendString(" \n"); err != nil {
		return fmt.Errorf("%s: wake after interactive: %w", m.Name, err)
	}
	if _, err := m.Ch.ReadUntilPrompt(channel.Lit(m.cfg.Prompt), resyncTimeout, nil); err != nil {
		if channel.IsTimeout(err) {
			return fmt.Errorf("%s: %w", m.Name, ErrResyncFailed)
		}
		return fmt.Errorf("%s: resync after interactive: %w", m.Name, err)
	}

	m.Logger.Infof("interactive session ended, prompt reacquired")
	return nil
}
