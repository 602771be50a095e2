package serialmux

import (
	"errors"
	"io"
	"sync"

	"github.com/banshee-data/radar-sweep/internal/monitoring"
)

// PortSource turns a SerialPorter into a byte-at-a-time character source.
// Reads are buffered; a read that times out, hits EOF or fails yields
// (0, false) and the caller tries again.
//
// PortSource is owned by the acquisition goroutine. Close may be called
// from elsewhere to unblock a pending read.
type PortSource struct {
	port SerialPorter
	buf  []byte
	pos  int
	n    int

	mu      sync.Mutex
	lastErr error
	closed  bool
}

// NewPortSource wraps port. A port that supports read timeouts is set to
// DefaultReadTimeout so an idle sensor never blocks shutdown.
func NewPortSource(port SerialPorter) *PortSource {
	if tp, ok := port.(TimeoutSerialPorter); ok {
		if err := tp.SetReadTimeout(DefaultReadTimeout); err != nil {
			monitoring.Logf("[serialmux] failed to set read timeout: %v", err)
		}
	}
	return &PortSource{port: port, buf: make([]byte, 256)}
}

// ReadChar returns the next byte from the port.
func (s *PortSource) ReadChar() (byte, bool) {
	if s.pos < s.n {
		c := s.buf[s.pos]
		s.pos++
		return c, true
	}

	n, err := s.port.Read(s.buf)
	if n > 0 {
		// io.Reader may return data alongside an error; a persistent error
		// comes back on the next Read.
		s.pos, s.n = 1, n
		return s.buf[0], true
	}
	if err != nil && !errors.Is(err, io.EOF) {
		s.recordErr(err)
	}
	return 0, false
}

func (s *PortSource) recordErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.lastErr == nil || s.lastErr.Error() != err.Error() {
		monitoring.Logf("[serial] read failed: %v", err)
	}
	s.lastErr = err
}

// Err returns the most recent read error, if any.
func (s *PortSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close closes the underlying port. It is safe to call more than once.
func (s *PortSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.port.Close()
}
