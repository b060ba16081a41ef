package testkit

import (
	"bytes"
	"io"
	"sync"
)

// StreamConsole is a transport fake with exact chunk control: every Feed
// call becomes one Read result, so tests can reproduce arbitrary split
// points in the byte stream. Writes from the automaton are recorded and
// never block.
type StreamConsole struct {
	mu     sync.Mutex
	cond   *sync.Cond
	chunks [][]byte
	sent   bytes.Buffer
	closed bool
}

// NewStream creates a stream console preloaded with the given chunks.
func NewStream(chunks ...string) *StreamConsole {
	s := &StreamConsole{}
	s.cond = sync.NewCond(&s.mu)
	for _, c := range chunks {
		s.chunks = append(s.chunks, []byte(c))
	}
	return s
}

// Feed appends one chunk that the next Read will return whole.
func (s *StreamConsole) Feed(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, []byte(chunk))
	s.cond.Broadcast()
}

// CloseRemote simulates the peer dropping the connection; queued chunks
// remain readable, then Read reports EOF.
func (s *StreamConsole) CloseRemote() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
}

// Read returns exactly one queued chunk (or as much of it as fits).
func (s *StreamConsole) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.chunks) == 0 {
		if s.closed {
			return 0, io.EOF
		}
		s.cond.Wait()
	}
	chunk := s.chunks[0]
	n := copy(p, chunk)
	if n < len(chunk) {
		s.chunks[0] = chunk[n:]
	} else {
		s.chunks = s.chunks[1:]
	}
	return n, nil
}

// Write records the automaton's bytes.
func (s *StreamConsole) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	s.sent.Write(p)
	return len(p), nil
}

// Sent returns everything the automaton wrote so far.
func (s *StreamConsole) Sent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent.String()
}

// Close implements io.Closer.
func (s *StreamConsole) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
	return nil
}
