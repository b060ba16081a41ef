// Package board implements the power/lifecycle state machine bracketing a
// hardware session: power on, connect the console, and guarantee that the
// channel is closed and the board powered off on every exit path.
package board

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"boardlab/pkg/channel"
	"boardlab/pkg/logx"
	"boardlab/pkg/metrics"
	"boardlab/pkg/power"
)

// ConnectFunc is the transport factory: it returns a live console
// connection for a powered board, with any remote shell setup already
// performed.
type ConnectFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// Board is a power domain plus a console transport factory. It is
// reentrant: each Open runs the full OFF -> CONNECTED cycle and a new
// session may be opened after the previous one closed.
type Board struct {
	Name    string
	Power   power.Controller
	Connect ConnectFunc
	Logger  *logx.Logger // optional
}

func (b *Board) logger() *logx.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return logx.NewLogger(b.Name)
}

// Session is an open board session: the board is powered and its console
// channel connected. A channel exists exactly while the session is open.
type Session struct {
	board *Board
	ch    *channel.Channel

	closeOnce sync.Once
	closeErr  error
}

// Open powers the board on and connects its console. On any failure after
// power-on succeeded, the board is powered off again before returning:
// no partially-built session escapes.
func (b *Board) Open(ctx context.Context) (*Session, error) {
	log := b.logger()

	log.Infof("powering on")
	if err := b.Power.PowerOn(ctx); err != nil {
		return nil, fmt.Errorf("board %s: power on: %w", b.Name, err)
	}
	metrics.PowerCycles.WithLabelValues(b.Name).Inc()

	transport, err := b.Connect(ctx)
	if err != nil {
		if offErr := b.Power.PowerOff(ctx); offErr != nil {
			log.Errorf("power off after failed connect: %v", offErr)
		}
		return nil, fmt.Errorf("board %s: connect: %w", b.Name, err)
	}

	log.Infof("console connected")
	return &Session{board: b, ch: channel.New(transport)}, nil
}

// Run opens a session, invokes fn, and closes the session again. Teardown
// runs even when fn returns an error or panics; exactly one power-on and
// one power-off happen per call.
func (b *Board) Run(ctx context.Context, fn func(*Session) error) error {
	s, err := b.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			b.logger().Errorf("session teardown: %v", cerr)
		}
	}()
	return fn(s)
}

// Channel returns the session's console channel.
func (s *Session) Channel() *channel.Channel {
	return s.ch
}

// Board returns the board this session belongs to.
func (s *Session) Board() *Board {
	return s.board
}

// Close disconnects the console and powers the board off, in that order.
// It is idempotent; only the first call performs the teardown.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		log := s.board.logger()

		var errs []error
		if err := s.ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
		log.Infof("powering off")
		if err := s.board.Power.PowerOff(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("power off: %w", err))
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
