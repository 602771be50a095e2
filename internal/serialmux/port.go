// Package serialmux adapts the rangefinder's serial link to the byte-at-a-time
// character source consumed by the acquisition loop, and fans committed
// lines out to debugging subscribers.
package serialmux

import (
	"io"
	"time"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter extends SerialPorter with timeout capabilities.
// go.bug.st/serial ports implement it; a read that times out returns 0, nil.
type TimeoutSerialPorter interface {
	SerialPorter
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}

// DefaultReadTimeout bounds each blocking read so the acquisition loop can
// notice shutdown promptly without spinning.
const DefaultReadTimeout = 100 * time.Millisecond

// PortOpener opens a serial port. OpenPort is the production implementation;
// tests substitute their own.
type PortOpener func(path string, opts PortOptions) (SerialPorter, error)
