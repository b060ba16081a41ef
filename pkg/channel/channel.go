// Package channel implements the byte-stream abstraction between the
// automaton and a device console: blocking receive with timeout,
// prompt-seeking reads over an accumulating buffer, raw send, and a
// cooperative interactive pass-through mode.
//
// A Channel is single-owner: exactly one goroutine drives it at a time.
// The only cross-goroutine operation that is safe is Close, which may be
// used by a supervisor to abruptly unblock a pending Recv.
package channel

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// readChunkSize is the transport read granularity. Serial lines and SSH
// sessions deliver arbitrary chunk boundaries anyway, so the exact value
// only bounds per-read allocation.
const readChunkSize = 4096

// Channel is a bidirectional, flow-controlled byte stream over a console
// transport. Bytes read from the transport but not yet consumed by a
// prompt match are retained in an internal buffer, so a timed-out read
// never loses data.
type Channel struct {
	transport io.ReadWriteCloser

	data chan []byte   // chunks from the reader pump
	eof  chan struct{} // closed when the pump observes EOF or a read error
	done chan struct{} // closed by Close to stop the pump

	mu      sync.Mutex
	closed  bool
	readbuf []byte // consumed from transport, not yet claimed by a read
}

// New wraps a live console transport. The transport is expected to have
// completed any remote shell setup (distinctive prompt, history off)
// before being handed over.
func New(transport io.ReadWriteCloser) *Channel {
	c := &Channel{
		transport: transport,
		data:      make(chan []byte, 32),
		eof:       make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.pump()
	return c
}

// pump moves bytes from the transport into the data queue until the peer
// closes or Close tears the transport down under it.
func (c *Channel) pump() {
	buf := make([]byte, readChunkSize)
	for {
		n, err := c.transport.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.data <- chunk:
			case <-c.done:
				return
			}
		}
		if err != nil || n == 0 {
			// A zero-length read is an EOF signal on some transports.
			close(c.eof)
			return
		}
	}
}

// IsOpen reports the channel's open/closed state without performing I/O.
func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *Channel) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Close releases the transport. It is idempotent and safe to call from
// another goroutine; a pending Recv unblocks with ErrChannelClosed.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	return c.transport.Close()
}

// Send writes raw bytes to the transport.
func (c *Channel) Send(b []byte) error {
	if !c.IsOpen() {
		return ErrChannelClosed
	}
	if _, err := c.transport.Write(b); err != nil {
		c.markClosed()
		return fmt.Errorf("send: %w", ErrChannelClosed)
	}
	return nil
}

// SendString writes a string to the transport.
func (c *Channel) SendString(s string) error {
	return c.Send([]byte(s))
}

// Recv returns whatever bytes are available within timeout. Data already
// buffered is returned immediately. A peer close is reported as
// ErrChannelClosed only after all data received before the close has been
// drained; from then on the failure is sticky.
func (c *Channel) Recv(timeout time.Duration) ([]byte, error) {
	b, _, err := c.recv(timeout)
	return b, err
}

// recv additionally reports whether the bytes are replayed from the
// push-back buffer, i.e. were already seen (and mirrored) once.
func (c *Channel) recv(timeout time.Duration) ([]byte, bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, false, ErrChannelClosed
	}
	if len(c.readbuf) > 0 {
		b := c.readbuf
		c.readbuf = nil
		c.mu.Unlock()
		return b, true, nil
	}
	c.mu.Unlock()

	// Fast path: a chunk is already queued.
	select {
	case chunk := <-c.data:
		return chunk, false, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case chunk := <-c.data:
		return chunk, false, nil
	case <-c.done:
		return nil, false, ErrChannelClosed
	case <-c.eof:
		// Chunks sent before the EOF are still in flight; serve them
		// before declaring the channel dead.
		select {
		case chunk := <-c.data:
			return chunk, false, nil
		default:
		}
		c.markClosed()
		return nil, false, ErrChannelClosed
	case <-timer.C:
		return nil, false, &TimeoutError{Op: "recv", Elapsed: timeout}
	}
}

// pushBack returns unconsumed bytes to the front of the internal buffer.
func (c *Channel) pushBack(b []byte) {
	if len(b) == 0 {
		return
	}
	c.mu.Lock()
	c.readbuf = append(append([]byte{}, b...), c.readbuf...)
	c.mu.Unlock()
}

// ReadUntilPrompt receives until pattern matches the accumulated buffer
// and returns everything up to and including the match. Bytes after the
// match remain buffered for the next call. Bytes are mirrored to sink on
// first arrival from the transport, so partial output stays visible even
// when the read later fails; replayed bytes are never mirrored twice. On
// timeout the accumulated bytes are pushed back intact.
func (c *Channel) ReadUntilPrompt(pattern Pattern, timeout time.Duration, sink io.Writer) (string, error) {
	if pattern.IsZero() {
		return "", fmt.Errorf("read until prompt: empty pattern")
	}

	deadline := time.Now().Add(timeout)
	var acc []byte
	for {
		if end, ok := pattern.match(acc); ok {
			c.pushBack(acc[end:])
			return string(acc[:end]), nil
		}

		remain := time.Until(deadline)
		if remain <= 0 {
			c.pushBack(acc)
			return "", &TimeoutError{Op: "read-until-prompt", Pattern: pattern.String(), Elapsed: timeout}
		}

		chunk, replayed, err := c.recv(remain)
		if err != nil {
			c.pushBack(acc)
			if IsTimeout(err) {
				return "", &TimeoutError{Op: "read-until-prompt", Pattern: pattern.String(), Elapsed: timeout}
			}
			return "", fmt.Errorf("read until prompt %q: %w", pattern.String(), err)
		}

		acc = append(acc, chunk...)
		if sink != nil && !replayed {
			_, _ = sink.Write(chunk)
		}
	}
}
