package transport

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"

	"boardlab/pkg/board"
)

// serialReadTimeout keeps the port's blocking reads short; the channel
// layer implements the real timeout semantics on top.
const serialReadTimeout = 100 * time.Millisecond

// SerialConnect returns a factory opening a local serial device.
func SerialConnect(device string, baud int) board.ConnectFunc {
	return func(_ context.Context) (io.ReadWriteCloser, error) {
		if baud == 0 {
			baud = 115200
		}
		port, err := serial.OpenPort(&serial.Config{
			Name:        device,
			Baud:        baud,
			ReadTimeout: serialReadTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("open serial %s: %w", device, err)
		}
		return &serialPort{port: port}, nil
	}
}

// serialPort adapts the tarm port: its timed-out reads surface as empty
// reads or io.EOF depending on platform, which the channel would take for
// a peer close, so they are retried here. A serial line has no real EOF.
type serialPort struct {
	port *serial.Port
}

func (p *serialPort) Read(b []byte) (int, error) {
	for {
		n, err := p.port.Read(b)
		if n == 0 && (err == nil || err == io.EOF) {
			continue
		}
		return n, err
	}
}

func (p *serialPort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *serialPort) Close() error {
	return p.port.Close()
}
