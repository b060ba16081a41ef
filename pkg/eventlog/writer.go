// Package eventlog records session events (power transitions, boot logs,
// commands, interactive hand-offs) as daily rotated JSONL files. It is
// pure observability: failures are reported but never affect the
// automaton driving the board.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one line in the session log.
type Event struct {
	Time    string `json:"time"`
	Session string `json:"session"`
	Board   string `json:"board"`
	Type    string `json:"type"` // power, boot, command, interactive
	Machine string `json:"machine,omitempty"`
	Command string `json:"command,omitempty"`
	Code    *int   `json:"code,omitempty"`
	Output  string `json:"output,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Writer appends events for one board session to daily rotated files.
type Writer struct {
	logDir    string
	board     string
	sessionID string

	mu          sync.Mutex
	currentFile *os.File
	currentDate string
}

// NewWriter creates a session event writer. Each writer gets a fresh
// session ID tying its events together across files.
func NewWriter(logDir, boardName string) (*Writer, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	w := &Writer{
		logDir:    logDir,
		board:     boardName,
		sessionID: uuid.NewString(),
	}
	if err := w.rotateIfNeeded(); err != nil {
		return nil, fmt.Errorf("initialize log file: %w", err)
	}
	return w, nil
}

// SessionID returns the writer's session identifier.
func (w *Writer) SessionID() string {
	return w.sessionID
}

// Power records a power transition ("on"/"off").
func (w *Writer) Power(state string) error {
	return w.write(&Event{Type: "power", Detail: state})
}

// Boot records the captured boot log of a machine.
func (w *Writer) Boot(machine, bootlog string) error {
	return w.write(&Event{Type: "boot", Machine: machine, Output: bootlog})
}

// Command records a command invocation with its result.
func (w *Writer) Command(machine, command string, code int, output string) error {
	return w.write(&Event{Type: "command", Machine: machine, Command: command, Code: &code, Output: output})
}

// Interactive records a hand-off phase ("attach"/"detach"/"resync-failed").
func (w *Writer) Interactive(machine, phase string) error {
	return w.write(&Event{Type: "interactive", Machine: machine, Detail: phase})
}

func (w *Writer) write(ev *Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return fmt.Errorf("event log writer is closed")
	}
	if err := w.rotateIfNeeded(); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}

	ev.Time = time.Now().UTC().Format(time.RFC3339Nano)
	ev.Session = w.sessionID
	ev.Board = w.board

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}
	if _, err := w.currentFile.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// rotateIfNeeded is called with w.mu held (or before the writer is
// shared, from NewWriter).
func (w *Writer) rotateIfNeeded() error {
	date := time.Now().Format("2006-01-02")
	if w.currentFile != nil && w.currentDate == date {
		return nil
	}
	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil {
			return fmt.Errorf("close log file: %w", err)
		}
	}
	name := filepath.Join(w.logDir, fmt.Sprintf("sessions-%s.jsonl", date))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", name, err)
	}
	w.currentFile = f
	w.currentDate = date
	return nil
}

// Close flushes and closes the current log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.currentFile == nil {
		return nil
	}
	err := w.currentFile.Close()
	w.currentFile = nil
	return err
}
