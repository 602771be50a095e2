package sweep

import (
	"fmt"
	"math"
	"sync/atomic"
)

const (
	// DefaultMoveSize is the interpolation span: each drawn chord joins
	// samples this many steps apart so the sweep reads as a continuous
	// outline rather than isolated dots.
	DefaultMoveSize = 16
	// DefaultHeadLength is the radius of the scan-direction indicator.
	DefaultHeadLength = 400
)

// Point is a Cartesian offset from the sweep centre, in sensor units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Chord is one segment of the sweep polygon.
type Chord struct {
	FromIndex Index `json:"from_index"`
	ToIndex   Index `json:"to_index"`
	From      Point `json:"from"`
	To        Point `json:"to"`
}

// Annotation is the textual readout for the most recent sample.
type Annotation struct {
	Angle    Index    `json:"angle"`
	Distance Distance `json:"distance"`
	HasData  bool     `json:"has_data"`
}

func (a Annotation) String() string {
	return fmt.Sprintf("Step: %d Distance: %d cm", a.Angle, a.Distance)
}

// CalcPoint converts a polar sample into a Cartesian offset:
// x = d·cos(2πi/n), y = d·sin(2πi/n).
func CalcPoint(i Index, d Distance, n int) Point {
	theta := 2 * math.Pi * float64(Wrap(int(i), n)) / float64(n)
	return Point{
		X: float64(d) * math.Cos(theta),
		Y: float64(d) * math.Sin(theta),
	}
}

// Reconstructor turns the buffer into sweep geometry on demand. It holds no
// geometry of its own; every call reads the buffer afresh.
type Reconstructor struct {
	buf        *Buffer
	moveSize   atomic.Int64
	headLength float64
}

// NewReconstructor returns a reconstructor reading buf with the given
// interpolation span.
func NewReconstructor(buf *Buffer, moveSize int) (*Reconstructor, error) {
	r := &Reconstructor{buf: buf, headLength: DefaultHeadLength}
	if err := r.SetMoveSize(moveSize); err != nil {
		return nil, err
	}
	return r, nil
}

// Buffer returns the buffer the reconstructor reads.
func (r *Reconstructor) Buffer() *Buffer { return r.buf }

// Resolution returns N of the underlying buffer.
func (r *Reconstructor) Resolution() int { return r.buf.Resolution() }

// MoveSize returns the current interpolation span.
func (r *Reconstructor) MoveSize() int { return int(r.moveSize.Load()) }

// SetMoveSize changes the interpolation span. It is safe to call while
// another goroutine renders.
func (r *Reconstructor) SetMoveSize(k int) error {
	if k < 0 || k > r.buf.Resolution() {
		return fmt.Errorf("invalid move size %d: must be between 0 and %d", k, r.buf.Resolution())
	}
	r.moveSize.Store(int64(k))
	return nil
}

// SetHeadLength changes the radius of the head chord.
func (r *Reconstructor) SetHeadLength(l float64) {
	if l > 0 {
		r.headLength = l
	}
}

// Point returns the Cartesian position of the sample stored at i.
func (r *Reconstructor) Point(i int) Point {
	n := r.buf.Resolution()
	idx := Wrap(i, n)
	return CalcPoint(idx, r.buf.Read(idx), n)
}

// Chord returns the segment from the sample at (i - moveSize) mod N to the
// sample at i mod N.
func (r *Reconstructor) Chord(i int) Chord {
	n := r.buf.Resolution()
	to := Wrap(i, n)
	from := Wrap(int(to)-r.MoveSize(), n)
	return Chord{
		FromIndex: from,
		ToIndex:   to,
		From:      CalcPoint(from, r.buf.Read(from), n),
		To:        CalcPoint(to, r.buf.Read(to), n),
	}
}

// Chords returns one chord per angular index, in index order.
func (r *Reconstructor) Chords() []Chord {
	n := r.buf.Resolution()
	out := make([]Chord, n)
	for i := 0; i < n; i++ {
		out[i] = r.Chord(i)
	}
	return out
}

// Polygon returns the sample point at every index. Unset cells sit at the
// centre.
func (r *Reconstructor) Polygon() []Point {
	n := r.buf.Resolution()
	dists := r.buf.Snapshot()
	out := make([]Point, n)
	for i, d := range dists {
		out[i] = CalcPoint(Index(i), d, n)
	}
	return out
}

// Head returns the chord from the centre to the current scan direction.
func (r *Reconstructor) Head() Chord {
	n := r.buf.Resolution()
	idx := r.buf.MostRecent()
	theta := 2 * math.Pi * float64(idx) / float64(n)
	return Chord{
		FromIndex: idx,
		ToIndex:   idx,
		To: Point{
			X: r.headLength * math.Cos(theta),
			Y: r.headLength * math.Sin(theta),
		},
	}
}

// Annotation returns the most recent sample for textual display.
func (r *Reconstructor) Annotation() Annotation {
	idx := r.buf.MostRecent()
	return Annotation{
		Angle:    idx,
		Distance: r.buf.Read(idx),
		HasData:  r.buf.HasData(),
	}
}
