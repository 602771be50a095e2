package serialmux

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"
)

// MockSweepPort is a synthetic rangefinder for --dev mode. It emits
// "angle,distance,quality\r\n" lines for a sensor sweeping a rectangular room,
// and records anything written to it.
type MockSweepPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer

	done      chan struct{}
	closeOnce sync.Once
}

// MockSweepConfig shapes the synthetic scene.
type MockSweepConfig struct {
	Resolution  int           // steps per revolution
	LinesPerSec int           // sample rate
	HalfWidth   float64       // room half-extent along x, cm
	HalfDepth   float64       // room half-extent along y, cm
	Tick        time.Duration // emission batch interval
}

// DefaultMockSweepConfig is a 6 m x 4 m room scanned at 512 samples/s.
func DefaultMockSweepConfig() MockSweepConfig {
	return MockSweepConfig{
		Resolution:  2048,
		LinesPerSec: 512,
		HalfWidth:   300,
		HalfDepth:   200,
		Tick:        20 * time.Millisecond,
	}
}

// RoomDistance returns the range from the centre of a w x d rectangle to its
// wall along step i of n.
func RoomDistance(i, n int, halfWidth, halfDepth float64) int {
	theta := 2 * math.Pi * float64(i) / float64(n)
	c, s := math.Abs(math.Cos(theta)), math.Abs(math.Sin(theta))
	dist := math.Inf(1)
	if c > 1e-9 {
		dist = halfWidth / c
	}
	if s > 1e-9 {
		dist = math.Min(dist, halfDepth/s)
	}
	return int(math.Round(dist))
}

// NewMockSweepPort starts the generator. It begins mid-line, as a real port
// opened while the sensor is running would.
func NewMockSweepPort(cfg MockSweepConfig) *MockSweepPort {
	def := DefaultMockSweepConfig()
	if cfg.Resolution <= 0 {
		cfg.Resolution = def.Resolution
	}
	if cfg.LinesPerSec <= 0 {
		cfg.LinesPerSec = def.LinesPerSec
	}
	if cfg.HalfWidth <= 0 {
		cfg.HalfWidth = def.HalfWidth
	}
	if cfg.HalfDepth <= 0 {
		cfg.HalfDepth = def.HalfDepth
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}

	r, w := io.Pipe()
	m := &MockSweepPort{r: r, w: w, done: make(chan struct{})}
	go m.generate(cfg)
	return m
}

func (m *MockSweepPort) generate(cfg MockSweepConfig) {
	defer m.w.Close()

	perTick := int(math.Max(1, float64(cfg.LinesPerSec)*cfg.Tick.Seconds()))
	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	if _, err := m.w.Write([]byte("7,")); err != nil {
		return
	}

	step := 0
	var line bytes.Buffer
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
		}
		line.Reset()
		for k := 0; k < perTick; k++ {
			d := RoomDistance(step, cfg.Resolution, cfg.HalfWidth, cfg.HalfDepth)
			fmt.Fprintf(&line, "%d,%d,%d\r\n", step, d, 100)
			step = (step + 1) % cfg.Resolution
		}
		if _, err := m.w.Write(line.Bytes()); err != nil {
			return
		}
	}
}

// Read returns generated sensor output.
func (m *MockSweepPort) Read(p []byte) (int, error) {
	return m.r.Read(p)
}

// Write records commands sent to the sensor.
func (m *MockSweepPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.Write(p)
}

// Written returns everything written so far.
func (m *MockSweepPort) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.written.Bytes()...)
}

// Close stops the generator and unblocks pending reads.
func (m *MockSweepPort) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
		m.r.Close()
	})
	return nil
}

// TestableSerialPort implements SerialPorter with configurable behaviour for testing.
// It provides fine-grained control over reads, errors and blocking.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set
	ReadError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// BlockReads causes Read to block until data is added or Close is called
	BlockReads bool

	readCond *sync.Cond
}

// ErrPortClosed is returned by TestableSerialPort after Close.
var ErrPortClosed = errors.New("serial port closed")

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

// Read reads from the read buffer. An empty, non-blocking buffer returns
// 0, nil like a serial read that timed out.
func (t *TestableSerialPort) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++

	if t.Closed {
		return 0, ErrPortClosed
	}

	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}

	if t.BlockReads {
		for !t.Closed && t.ReadBuffer.Len() == 0 {
			t.readCond.Wait()
		}
		if t.Closed {
			return 0, ErrPortClosed
		}
	}

	if t.ReadBuffer.Len() == 0 {
		return 0, nil
	}
	return t.ReadBuffer.Read(p)
}

// Write writes to the write buffer.
func (t *TestableSerialPort) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, ErrPortClosed
	}
	return t.WriteBuffer.Write(p)
}

// Close marks the port as closed.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.readCond.Broadcast()

	return t.CloseError
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
	t.readCond.Signal()
}

// IsClosed reports whether Close has been called.
func (t *TestableSerialPort) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Closed
}

// SetReadError arranges for the next Read to fail with err.
func (t *TestableSerialPort) SetReadError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadError = err
}
