// Package logx provides leveled logging with per-machine identity prefixes
// and the console-stream sinks used to mirror board output.
package logx

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger writes leveled, machine-tagged log lines.
type Logger struct {
	machineID string
	logger    *log.Logger
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Enabled bool
	Domains map[string]bool // Which machine domains to enable debug for (nil = all)
}

var (
	debugConfig = &DebugConfig{}
	debugMutex  sync.RWMutex
)

func init() { //nolint:gochecknoinits // Required for env var initialization
	initDebugFromEnv()
}

func initDebugFromEnv() {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugConfig.Enabled = true
	}

	// Parse domain filtering from DEBUG_DOMAINS=channel,uboot,board
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = make(map[string]bool)
		for _, domain := range strings.Split(domains, ",") {
			debugConfig.Domains[strings.TrimSpace(domain)] = true
		}
	}
}

// NewLogger creates a logger tagged with a machine or subsystem identity.
func NewLogger(machineID string) *Logger {
	return &Logger{
		machineID: machineID,
		logger:    log.New(os.Stderr, "", 0), // stderr keeps stdout free for console relay
	}
}

// SetDebug configures global debug logging.
func SetDebug(enabled bool, domains []string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	debugConfig.Enabled = enabled
	if len(domains) == 0 {
		debugConfig.Domains = nil
	} else {
		debugConfig.Domains = make(map[string]bool)
		for _, domain := range domains {
			debugConfig.Domains[strings.TrimSpace(domain)] = true
		}
	}
}

// IsDebugEnabledFor reports whether debug logging is enabled for a machine domain.
func IsDebugEnabledFor(domain string) bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()

	if !debugConfig.Enabled {
		return false
	}
	if debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

func (l *Logger) logf(level Level, format string, args ...any) {
	ts := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("%s [%s] %s: %s", ts, level, l.machineID, msg)
}

// Debugf logs at debug level, subject to the global debug configuration.
func (l *Logger) Debugf(format string, args ...any) {
	if !IsDebugEnabledFor(l.machineID) {
		return
	}
	l.logf(LevelDebug, format, args...)
}

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...any) {
	l.logf(LevelInfo, format, args...)
}

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, args ...any) {
	l.logf(LevelWarn, format, args...)
}

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...any) {
	l.logf(LevelError, format, args...)
}

// PrefixWriter mirrors streamed console bytes to an underlying writer,
// prefixing every line with a caller-chosen marker ("   <> ", "   >> ", ...).
//
// It is the observability sink handed to the channel layer: it never
// returns an error and never blocks the automaton on a slow destination
// (writes to the destination are best-effort; failures drop the line).
type PrefixWriter struct {
	mu     sync.Mutex
	dst    io.Writer
	prefix string
	line   bytes.Buffer
	atBOL  bool
}

// NewPrefixWriter returns a PrefixWriter writing to dst. A nil dst
// discards everything.
func NewPrefixWriter(dst io.Writer, prefix string) *PrefixWriter {
	return &PrefixWriter{dst: dst, prefix: prefix, atBOL: true}
}

// Write implements io.Writer. It always reports full success so that
// sink problems cannot desynchronize the console protocol.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dst == nil {
		return len(p), nil
	}

	for _, b := range p {
		if w.atBOL {
			w.line.WriteString(w.prefix)
			w.atBOL = false
		}
		w.line.WriteByte(b)
		if b == '\n' {
			_, _ = w.dst.Write(w.line.Bytes())
			w.line.Reset()
			w.atBOL = true
		}
	}
	return len(p), nil
}

// Flush writes out any partial line still buffered.
func (w *PrefixWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dst == nil || w.line.Len() == 0 {
		return
	}
	_, _ = w.dst.Write(append(w.line.Bytes(), '\n'))
	w.line.Reset()
	w.atBOL = true
}
