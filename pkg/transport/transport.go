// Package transport provides the console transport factories: serial
// devices, SSH-forwarded consoles, and local subprocesses. Each factory
// yields an io.ReadWriteCloser with any remote shell setup already done,
// ready to be wrapped in a channel.
package transport

import (
	"fmt"
	"io"

	"boardlab/pkg/board"
	"boardlab/pkg/config"
)

// FromConfig builds the board.ConnectFunc for a console configuration.
func FromConfig(cc config.ConsoleConfig) (board.ConnectFunc, error) {
	switch cc.Type {
	case "serial":
		return SerialConnect(cc.Serial.Device, cc.Serial.Baud), nil
	case "ssh":
		return SSHConnect(cc.SSH), nil
	case "exec":
		return ExecConnect(cc.Exec.Argv), nil
	default:
		return nil, fmt.Errorf("unknown console type %q", cc.Type)
	}
}

// rwc glues separate reader/writer halves plus a teardown hook into one
// io.ReadWriteCloser.
type rwc struct {
	io.Reader
	io.Writer
	closeFn func() error
}

func (c *rwc) Close() error {
	return c.closeFn()
}
