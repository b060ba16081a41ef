package transport

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"boardlab/pkg/board"
)

// ExecConnect returns a factory spawning a local process whose stdio acts
// as the console. Lab self-tests use this with a scripted shell standing
// in for real hardware.
func ExecConnect(argv []string) board.ConnectFunc {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		if len(argv) == 0 {
			return nil, fmt.Errorf("exec console: empty argv")
		}
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("exec console stdin: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("exec console stdout: %w", err)
		}
		cmd.Stderr = cmd.Stdout

		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("exec console %q: %w", argv[0], err)
		}

		return &rwc{
			Reader: stdout,
			Writer: stdin,
			closeFn: func() error {
				_ = stdin.Close()
				if cmd.Process != nil {
					_ = cmd.Process.Kill()
				}
				_ = cmd.Wait()
				return nil
			},
		}, nil
	}
}
