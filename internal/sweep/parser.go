package sweep

import (
	"errors"
	"fmt"
	"strconv"
)

// Wire format, one sample per line:
//
//	<angle>,<distance>,<extra>\n
//
// Fields are unsigned decimal digit runs. A '\r' anywhere is ignored. The
// third field is parsed and discarded; the firmware reserves it for a
// per-sample quality figure.

var (
	// ErrProtocol is wrapped by every error caused by a byte that does not
	// fit the grammar at the current position.
	ErrProtocol = errors.New("protocol violation")
	// ErrOverflow is wrapped when a field exceeds the configured digit limit.
	ErrOverflow = errors.New("numeric field overflow")
)

// DefaultMaxDigits bounds the significant digits of the angle and distance
// fields. 18 decimal digits always fit in an int64. Leading zeros are not
// counted.
const DefaultMaxDigits = 18

// maxExtraLen bounds the discarded third field, which is never converted to
// an integer.
const maxExtraLen = 256

// Policy selects what the parser does after a malformed line.
type Policy int

const (
	// PolicyResync discards the rest of the malformed line and resumes at
	// the next line terminator.
	PolicyResync Policy = iota
	// PolicyFailFast reports the error and expects the caller to stop.
	PolicyFailFast
)

func (p Policy) String() string {
	switch p {
	case PolicyResync:
		return "resync"
	case PolicyFailFast:
		return "fail-fast"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy converts a config string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "resync":
		return PolicyResync, nil
	case "fail-fast", "failfast":
		return PolicyFailFast, nil
	default:
		return PolicyResync, fmt.Errorf("unknown error policy %q: expected resync or fail-fast", s)
	}
}

type field int

const (
	fieldAngle field = iota
	fieldDistance
	fieldExtra
)

func (f field) String() string {
	switch f {
	case fieldAngle:
		return "angle"
	case fieldDistance:
		return "distance"
	default:
		return "extra"
	}
}

// ProtocolError describes a rejected line.
type ProtocolError struct {
	Field  string
	Byte   byte
	Reason string
	Err    error // ErrProtocol or ErrOverflow
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%v in %s field (byte %q): %s", e.Err, e.Field, e.Byte, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Sample is one committed line. Angle has already been reduced modulo N.
type Sample struct {
	Angle    Index
	Distance Distance
	Extra    string
}

func (s Sample) String() string {
	return fmt.Sprintf("%d,%d,%s", s.Angle, s.Distance, s.Extra)
}

// Result is the outcome of feeding one byte. Committed is true only on the
// line terminator that wrote Sample into the buffer.
type Result struct {
	Committed bool
	Sample    Sample
}

// ParserConfig controls error handling. The zero value resyncs and uses
// DefaultMaxDigits.
type ParserConfig struct {
	Policy    Policy
	MaxDigits int
}

// LineParser is the byte-level state machine for the sample protocol. It is
// not safe for concurrent use; the acquisition goroutine owns it.
type LineParser struct {
	buf       *Buffer
	policy    Policy
	maxDigits int

	fields     [3][]byte
	seen       [3]bool
	cur        field
	synced     bool
	discarding bool
}

// NewLineParser returns a parser that commits into buf. The parser starts
// unsynchronised and drops everything up to the first '\n' so that a
// partial line left over from before the port was opened is never parsed.
func NewLineParser(buf *Buffer, cfg ParserConfig) *LineParser {
	maxDigits := cfg.MaxDigits
	if maxDigits <= 0 || maxDigits > DefaultMaxDigits {
		maxDigits = DefaultMaxDigits
	}
	p := &LineParser{
		buf:       buf,
		policy:    cfg.Policy,
		maxDigits: maxDigits,
	}
	for i := range p.fields {
		p.fields[i] = make([]byte, 0, 8)
	}
	return p
}

// Policy returns the configured error policy.
func (p *LineParser) Policy() Policy { return p.policy }

// Synchronised reports whether the parser has seen a line boundary.
func (p *LineParser) Synchronised() bool { return p.synced }

// Resync drops any partial line and waits for the next '\n' before parsing
// again. Used after the source has been reopened.
func (p *LineParser) Resync() {
	p.reset()
	p.synced = false
	p.discarding = false
}

// Feed consumes one byte. A non-nil error means the current line was
// rejected and discarded; under PolicyResync the parser is already waiting
// for the next line and the caller may simply carry on.
func (p *LineParser) Feed(c byte) (Result, error) {
	if !p.synced {
		if c == '\n' {
			p.synced = true
		}
		return Result{}, nil
	}
	if p.discarding {
		if c == '\n' {
			p.discarding = false
		}
		return Result{}, nil
	}

	switch {
	case c == '\r':
		return Result{}, nil

	case c >= '0' && c <= '9':
		p.seen[p.cur] = true
		if p.cur == fieldExtra {
			if len(p.fields[fieldExtra]) >= maxExtraLen {
				return Result{}, p.fail(c, ErrOverflow, fmt.Sprintf("more than %d bytes", maxExtraLen))
			}
			p.fields[fieldExtra] = append(p.fields[fieldExtra], c)
			return Result{}, nil
		}
		if c == '0' && len(p.fields[p.cur]) == 0 {
			return Result{}, nil
		}
		if len(p.fields[p.cur]) >= p.maxDigits {
			return Result{}, p.fail(c, ErrOverflow, fmt.Sprintf("more than %d significant digits", p.maxDigits))
		}
		p.fields[p.cur] = append(p.fields[p.cur], c)
		return Result{}, nil

	case c == ',':
		// Commas past the last field are tolerated; the extra field keeps
		// accumulating.
		if p.cur < fieldExtra {
			p.cur++
		}
		return Result{}, nil

	case c == '\n':
		return p.commit()

	default:
		return Result{}, p.fail(c, ErrProtocol, "unexpected byte")
	}
}

func (p *LineParser) commit() (Result, error) {
	if !p.seen[fieldAngle] {
		return Result{}, p.fail('\n', ErrProtocol, "empty angle")
	}
	if !p.seen[fieldDistance] {
		return Result{}, p.fail('\n', ErrProtocol, "empty distance")
	}

	angle, err := p.value(fieldAngle)
	if err != nil {
		return Result{}, p.fail('\n', ErrOverflow, err.Error())
	}
	dist, err := p.value(fieldDistance)
	if err != nil {
		return Result{}, p.fail('\n', ErrOverflow, err.Error())
	}

	n := int64(p.buf.Resolution())
	s := Sample{
		Angle:    Index(angle % n),
		Distance: Distance(dist),
		Extra:    string(p.fields[fieldExtra]),
	}
	p.buf.Write(s.Angle, s.Distance)
	p.reset()
	return Result{Committed: true, Sample: s}, nil
}

// value parses a numeric field. A field made only of zeros holds no
// significant digits and is 0.
func (p *LineParser) value(f field) (int64, error) {
	if len(p.fields[f]) == 0 {
		return 0, nil
	}
	return strconv.ParseInt(string(p.fields[f]), 10, 64)
}

// fail builds the error for the current line and resets state. Unless the
// offending byte was itself the terminator, the rest of the line is skipped.
func (p *LineParser) fail(c byte, kind error, reason string) error {
	err := &ProtocolError{
		Field:  p.cur.String(),
		Byte:   c,
		Reason: reason,
		Err:    kind,
	}
	p.reset()
	if c != '\n' {
		p.discarding = true
	}
	return err
}

func (p *LineParser) reset() {
	for i := range p.fields {
		p.fields[i] = p.fields[i][:0]
	}
	p.seen = [3]bool{}
	p.cur = fieldAngle
}
