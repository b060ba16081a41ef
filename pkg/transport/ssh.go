package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"boardlab/pkg/board"
	"boardlab/pkg/config"
)

const sshDialTimeout = 30 * time.Second

// SSHConnect returns a factory dialing an SSH-forwarded console. With a
// command configured, that command's stdio is the console (the usual
// console-server case); otherwise a PTY shell is requested.
func SSHConnect(cfg *config.SSHConsole) board.ConnectFunc {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		auth, err := sshAuth(cfg)
		if err != nil {
			return nil, err
		}

		port := cfg.Port
		if port == 0 {
			port = 22
		}
		addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", port))

		clientCfg := &ssh.ClientConfig{
			User: cfg.User,
			Auth: auth,
			// Lab hosts are provisioned out of band; their keys are not
			// pinned here.
			HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
			Timeout:         sshDialTimeout,
		}

		dialer := net.Dialer{Timeout: sshDialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
		}
		sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("ssh handshake %s: %w", addr, err)
		}
		client := ssh.NewClient(sshConn, chans, reqs)

		session, err := client.NewSession()
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ssh session: %w", err)
		}

		stdin, err := session.StdinPipe()
		if err != nil {
			_ = session.Close()
			_ = client.Close()
			return nil, fmt.Errorf("ssh stdin: %w", err)
		}
		// stdout and stderr interleave into one stream, like a console.
		pr, pw := io.Pipe()
		session.Stdout = pw
		session.Stderr = pw

		if cfg.Command != "" {
			err = session.Start(cfg.Command)
		} else {
			modes := ssh.TerminalModes{
				ssh.ECHO:          1,
				ssh.TTY_OP_ISPEED: 115200,
				ssh.TTY_OP_OSPEED: 115200,
			}
			if ptyErr := session.RequestPty("vt100", 40, 120, modes); ptyErr != nil {
				_ = session.Close()
				_ = client.Close()
				return nil, fmt.Errorf("ssh pty: %w", ptyErr)
			}
			err = session.Shell()
		}
		if err != nil {
			_ = session.Close()
			_ = client.Close()
			return nil, fmt.Errorf("ssh start console: %w", err)
		}

		// The channel detects remote exit as an EOF on its read side.
		go func() {
			_ = session.Wait()
			_ = pw.Close()
		}()

		return &rwc{
			Reader: pr,
			Writer: stdin,
			closeFn: func() error {
				sErr := session.Close()
				cErr := client.Close()
				if sErr != nil && sErr != io.EOF {
					return sErr
				}
				return cErr
			},
		}, nil
	}
}

func sshAuth(cfg *config.SSHConsole) ([]ssh.AuthMethod, error) {
	var auth []ssh.AuthMethod
	if cfg.KeyFile != "" {
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key %s: %w", cfg.KeyFile, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("ssh console for %s: no key_file or password configured", cfg.Host)
	}
	return auth, nil
}
