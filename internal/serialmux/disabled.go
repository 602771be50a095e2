package serialmux

import "time"

// DisabledSource is the character source used when no sensor is available,
// either because the port failed to open or because it was disabled. It
// never yields a byte; each read waits Interval so the acquisition loop
// idles instead of spinning.
type DisabledSource struct {
	Interval time.Duration
}

// NewDisabledSource returns a DisabledSource that reports no data every
// DefaultReadTimeout.
func NewDisabledSource() *DisabledSource {
	return &DisabledSource{Interval: DefaultReadTimeout}
}

// ReadChar always reports that no byte is available.
func (d *DisabledSource) ReadChar() (byte, bool) {
	if d.Interval > 0 {
		time.Sleep(d.Interval)
	}
	return 0, false
}
