// Package sweep holds the acquisition and reconstruction core of the radar
// sweep: a lock-free per-angle sample buffer, the line protocol parser that
// feeds it, the acquisition loop that drives the parser, and the geometry
// that turns sparse angular samples into a continuous polygon.
package sweep

import (
	"fmt"
	"sync/atomic"
)

// DefaultResolution is the number of angular steps per revolution reported by
// the stepper-driven rangefinder (2048 half-steps of a 28BYJ-48).
const DefaultResolution = 2048

// unset marks a cell that has never been written. Distances are
// non-negative so the sentinel cannot collide with a reading.
const unset = -1

// Index is a discrete angular position in [0, N).
type Index int

// Distance is a range reading in sensor units (centimetres for the
// ultrasonic head). Values are stored as received.
type Distance int64

// Wrap reduces i modulo n into [0, n). Negative values wrap backwards so that
// Wrap(-5, 2048) == 2043.
func Wrap(i, n int) Index {
	if n <= 0 {
		return 0
	}
	r := i % n
	if r < 0 {
		r += n
	}
	return Index(r)
}

// Buffer maps each angular index to the last distance committed for it.
//
// There is exactly one writer (the Acquirer) and any number of readers. Each
// cell and the most-recent cursor are independent atomics: a reader never
// sees a torn cell, but may see a sweep that mixes two revolutions, or a
// cursor that runs one write ahead of its cell. Both are accepted.
type Buffer struct {
	cells      []atomic.Int64
	mostRecent atomic.Int64
	written    atomic.Bool
}

// NewBuffer allocates a buffer of n cells, all unset.
func NewBuffer(n int) (*Buffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid resolution %d: must be positive", n)
	}
	b := &Buffer{cells: make([]atomic.Int64, n)}
	for i := range b.cells {
		b.cells[i].Store(unset)
	}
	return b, nil
}

// Resolution returns N, the number of angular cells.
func (b *Buffer) Resolution() int { return len(b.cells) }

// Write stores d at index i, then publishes i as the most recent index.
// i is reduced modulo N first; negative distances are clamped to zero.
func (b *Buffer) Write(i Index, d Distance) {
	idx := Wrap(int(i), len(b.cells))
	if d < 0 {
		d = 0
	}
	b.cells[idx].Store(int64(d))
	b.mostRecent.Store(int64(idx))
	b.written.Store(true)
}

// Read returns the distance at i, or 0 if the cell has never been written.
func (b *Buffer) Read(i Index) Distance {
	d, _ := b.Lookup(i)
	return d
}

// Lookup returns the distance at i and whether the cell has ever been
// written, which separates "no data yet" from a genuine zero reading.
func (b *Buffer) Lookup(i Index) (Distance, bool) {
	v := b.cells[Wrap(int(i), len(b.cells))].Load()
	if v == unset {
		return 0, false
	}
	return Distance(v), true
}

// MostRecent returns the index of the latest committed sample. It is 0 until
// the first write; use HasData to tell the difference.
func (b *Buffer) MostRecent() Index {
	return Index(b.mostRecent.Load())
}

// HasData reports whether any sample has been committed since start.
func (b *Buffer) HasData() bool {
	return b.written.Load()
}

// Snapshot copies every cell into a new slice, one atomic load per cell.
// Unset cells read as 0. The copy is not a consistent revolution.
func (b *Buffer) Snapshot() []Distance {
	out := make([]Distance, len(b.cells))
	for i := range b.cells {
		if v := b.cells[i].Load(); v != unset {
			out[i] = Distance(v)
		}
	}
	return out
}

// ValidCount returns how many cells have been written at least once.
func (b *Buffer) ValidCount() int {
	n := 0
	for i := range b.cells {
		if b.cells[i].Load() != unset {
			n++
		}
	}
	return n
}
