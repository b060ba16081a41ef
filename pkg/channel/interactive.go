package channel

import (
	"io"
	"sync"
	"time"
)

// EscapeKey ends an interactive session (Ctrl-D).
const EscapeKey byte = 0x04

// relayPoll bounds how long the output relay sleeps between polls, which
// is also the worst-case latency for noticing detachment.
const relayPoll = 100 * time.Millisecond

// AttachInteractive relays the channel to a human operator: bytes from in
// are forwarded to the console, console output is copied to out. The
// relay runs until in yields EscapeKey or EOF, or the channel closes
// underneath it. The channel itself stays open; callers are expected to
// re-synchronize against their prompt afterwards.
//
// This is the only unbounded wait in the automaton: detachment is an
// operator decision.
func (c *Channel) AttachInteractive(in io.Reader, out io.Writer) error {
	if !c.IsOpen() {
		return ErrChannelClosed
	}

	detach := make(chan struct{})
	var relay sync.WaitGroup
	relay.Add(1)
	// The relay must be fully stopped before control returns to the
	// automaton, or it would race the caller for the next console bytes.
	defer func() {
		close(detach)
		relay.Wait()
	}()

	go func() {
		defer relay.Done()
		for {
			select {
			case <-detach:
				return
			default:
			}
			chunk, err := c.Recv(relayPoll)
			if err != nil {
				if IsTimeout(err) {
					continue
				}
				return
			}
			_, _ = out.Write(chunk)
		}
	}()

	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if err != nil {
			// Operator input EOF detaches like the escape key does.
			return nil //nolint:nilerr // EOF on the operator side is normal detachment
		}
		if n == 0 {
			continue
		}
		if buf[0] == EscapeKey {
			return nil
		}
		if err := c.Send(buf[:n]); err != nil {
			return err
		}
	}
}
