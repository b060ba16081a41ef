// Package testkit provides an in-memory scripted console emulating a
// board's boot loader and login shell, plus power-control fakes for
// lifecycle tests. It stands in for real hardware the way a local shell
// stands in for a serial line in lab self-tests.
package testkit

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Handler computes a command's output and exit code from its parsed
// argument list.
type Handler func(args []string) (output string, code int)

// ConsoleOptions configures a ScriptedConsole.
type ConsoleOptions struct {
	// Banner is written to the console as soon as it is created.
	Banner string

	// AutobootBanner, when non-empty, is written after Banner and puts
	// the console into countdown state: the next received line aborts
	// the countdown and produces the first prompt.
	AutobootBanner string

	// LoginUser/LoginPassword, when LoginUser is non-empty, make the
	// console present "login: " (and "Password: ") prompts before any
	// shell is available. Wrong credentials re-present the login prompt.
	LoginUser     string
	LoginPassword string

	// Prompt is the shell prompt. PS1 assignments received later
	// override it, like a real shell.
	Prompt string

	// Handlers overrides or extends the built-in command set.
	Handlers map[string]Handler
}

// console states.
const (
	stateAutoboot = iota
	stateLoginUser
	stateLoginPassword
	stateShell
)

// ScriptedConsole is an io.ReadWriteCloser speaking a line-oriented shell
// protocol: received lines are echoed, dispatched to handlers, and
// answered with output plus the prompt. "$?" bookkeeping matches a real
// shell so return-code recovery can be exercised.
type ScriptedConsole struct {
	mu     sync.Mutex
	cond   *sync.Cond
	out    bytes.Buffer // pending device output
	closed bool

	state       int
	lineBuf     bytes.Buffer
	pendingUser string
	lastCode    int
	env         map[string]string
	prompt      string
	opts        ConsoleOptions
}

// NewConsole creates a scripted console and emits its boot output.
func NewConsole(opts ConsoleOptions) *ScriptedConsole {
	if opts.Prompt == "" {
		opts.Prompt = "=> "
	}
	c := &ScriptedConsole{
		env:    make(map[string]string),
		prompt: opts.Prompt,
		opts:   opts,
	}
	c.cond = sync.NewCond(&c.mu)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.out.WriteString(opts.Banner)
	switch {
	case opts.AutobootBanner != "":
		c.state = stateAutoboot
		c.out.WriteString(opts.AutobootBanner)
	case opts.LoginUser != "":
		c.state = stateLoginUser
		c.out.WriteString("login: ")
	default:
		c.state = stateShell
		c.out.WriteString(c.prompt)
	}
	c.cond.Broadcast()
	return c
}

// Read blocks until device output is available or the console is closed.
func (c *ScriptedConsole) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.out.Len() == 0 {
		if c.closed {
			return 0, io.EOF
		}
		c.cond.Wait()
	}
	return c.out.Read(p)
}

// Write feeds operator/automaton bytes into the console. Complete lines
// are processed immediately; responses become readable output.
func (c *ScriptedConsole) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, io.ErrClosedPipe
	}
	for _, b := range p {
		if b == '\n' {
			line := c.lineBuf.String()
			c.lineBuf.Reset()
			c.handleLine(line)
		} else {
			c.lineBuf.WriteByte(b)
		}
	}
	c.cond.Broadcast()
	return len(p), nil
}

// Close shuts the console down; pending output is still readable, then
// Read reports EOF.
func (c *ScriptedConsole) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
	return nil
}

// CloseFromRemote simulates the peer dropping the connection after
// printing a goodbye, for closed-channel stickiness tests.
func (c *ScriptedConsole) CloseFromRemote(goodbye string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out.WriteString(goodbye)
	c.closed = true
	c.cond.Broadcast()
}

// Inject places raw bytes into the device output stream, bypassing the
// shell emulation. Used to simulate asynchronous console noise.
func (c *ScriptedConsole) Inject(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out.WriteString(s)
	c.cond.Broadcast()
}

// handleLine is called with c.mu held.
func (c *ScriptedConsole) handleLine(line string) {
	switch c.state {
	case stateAutoboot:
		// Any keypress aborts the countdown; U-Boot prints the prompt
		// without echoing the key.
		c.state = stateShell
		c.out.WriteString(c.prompt)
	case stateLoginUser:
		c.out.WriteString(line + "\n")
		if c.opts.LoginPassword != "" {
			c.state = stateLoginPassword
			c.pendingUser = line
			c.out.WriteString("Password: ")
		} else if line == c.opts.LoginUser {
			c.state = stateShell
			c.out.WriteString("\n" + c.prompt)
		} else {
			c.out.WriteString("Login incorrect\nlogin: ")
		}
	case stateLoginPassword:
		// Passwords are not echoed.
		if c.pendingUser == c.opts.LoginUser && line == c.opts.LoginPassword {
			c.state = stateShell
			c.out.WriteString("\n" + c.prompt)
		} else {
			c.state = stateLoginUser
			c.out.WriteString("\nLogin incorrect\nlogin: ")
		}
	case stateShell:
		c.out.WriteString(line + "\n")
		c.runCommand(line)
		c.out.WriteString(c.prompt)
	}
}

// runCommand executes one shell line, updating $? like a real shell.
// PS1 assignments change the prompt; "unset HISTFILE; PS1='x'" style
// compound setup lines are handled by splitting on ';'.
func (c *ScriptedConsole) runCommand(line string) {
	for _, part := range strings.Split(line, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c.runSimple(part)
	}
}

func (c *ScriptedConsole) runSimple(cmd string) {
	if ps1, ok := parsePS1(cmd); ok {
		c.prompt = ps1
		c.lastCode = 0
		return
	}

	args, err := SplitWords(cmd, c.expand)
	if err != nil {
		c.out.WriteString("syntax error\n")
		c.lastCode = 2
		return
	}
	if len(args) == 0 {
		return
	}

	if h, ok := c.opts.Handlers[args[0]]; ok {
		out, code := h(args[1:])
		c.out.WriteString(out)
		c.lastCode = code
		return
	}

	switch args[0] {
	case "echo":
		c.out.WriteString(strings.Join(args[1:], " ") + "\n")
		c.lastCode = 0
	case "true":
		c.lastCode = 0
	case "false":
		c.lastCode = 1
	case "unset":
		for _, name := range args[1:] {
			delete(c.env, name)
		}
		c.lastCode = 0
	case "setenv", "export":
		if len(args) >= 2 {
			if strings.Contains(args[1], "=") {
				name, value, _ := strings.Cut(args[1], "=")
				c.env[name] = value
			} else {
				c.env[args[1]] = strings.Join(args[2:], " ")
			}
		}
		c.lastCode = 0
	case "printenv":
		if len(args) == 1 {
			for name, value := range c.env {
				fmt.Fprintf(&c.out, "%s=%s\n", name, value)
			}
			c.lastCode = 0
		} else if value, ok := c.env[args[1]]; ok {
			fmt.Fprintf(&c.out, "%s=%s\n", args[1], value)
			c.lastCode = 0
		} else {
			fmt.Fprintf(&c.out, "## Error: %q not defined\n", args[1])
			c.lastCode = 1
		}
	case "version":
		c.out.WriteString("U-Boot 2020.01 (scripted)\n")
		c.lastCode = 0
	case "exit":
		code := 0
		if len(args) > 1 {
			code, _ = strconv.Atoi(args[1])
		}
		c.lastCode = code
	default:
		fmt.Fprintf(&c.out, "Unknown command '%s' - try 'help'\n", args[0])
		c.lastCode = 1
	}
}

// expand resolves ${NAME} and $? in unquoted or double-quoted text.
func (c *ScriptedConsole) expand(s string) string {
	s = strings.ReplaceAll(s, "$?", strconv.Itoa(c.lastCode))
	for name, value := range c.env {
		s = strings.ReplaceAll(s, "${"+name+"}", value)
		s = strings.ReplaceAll(s, "$"+name, value)
	}
	// Undefined variables expand to nothing, like a shell.
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			break
		}
		end := strings.Index(s[start:], "}")
		if end < 0 {
			break
		}
		s = s[:start] + s[start+end+1:]
	}
	return s
}

func parsePS1(cmd string) (string, bool) {
	cmd = strings.TrimPrefix(cmd, "export ")
	if !strings.HasPrefix(cmd, "PS1=") {
		return "", false
	}
	value := strings.TrimPrefix(cmd, "PS1=")
	value = strings.Trim(value, "'")
	return value, true
}

// SplitWords parses a command line the way the target shell would:
// whitespace-separated words with single-quote (no expansion) and
// double-quote (expansion) grouping. This is the "target shell's own
// parsing" side of the quoting round-trip.
func SplitWords(line string, expand func(string) string) ([]string, error) {
	var words []string
	var cur strings.Builder
	inWord := false
	i := 0
	for i < len(line) {
		ch := line[i]
		switch {
		case ch == ' ' || ch == '\t':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
			i++
		case ch == '\'':
			end := strings.IndexByte(line[i+1:], '\'')
			if end < 0 {
				return nil, fmt.Errorf("unterminated single quote")
			}
			cur.WriteString(line[i+1 : i+1+end])
			inWord = true
			i += end + 2
		case ch == '"':
			end := strings.IndexByte(line[i+1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("unterminated double quote")
			}
			cur.WriteString(expand(line[i+1 : i+1+end]))
			inWord = true
			i += end + 2
		default:
			start := i
			for i < len(line) && !strings.ContainsAny(string(line[i]), " \t'\"") {
				i++
			}
			cur.WriteString(expand(line[start:i]))
			inWord = true
		}
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words, nil
}
