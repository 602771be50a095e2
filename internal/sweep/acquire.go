package sweep

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/radar-sweep/internal/monitoring"
	"github.com/banshee-data/radar-sweep/internal/timeutil"
)

// CharSource yields the sensor stream one byte at a time. ok is false when
// no byte is currently available (timeout, EOF, or a failed read); the
// caller simply asks again. Sources that also implement io.Closer are
// closed when acquisition stops.
type CharSource interface {
	ReadChar() (c byte, ok bool)
}

// LineSink receives every committed sample. Publish must not block.
type LineSink interface {
	Publish(line string)
}

// AcquirerConfig configures an Acquirer. The zero value busy-polls, resyncs
// on malformed lines and never logs statistics.
type AcquirerConfig struct {
	Parser ParserConfig

	// IdleBackoff is slept after an empty read. Zero busy-polls, which is
	// only sensible for sources that block with a timeout of their own.
	IdleBackoff time.Duration

	// StatsInterval controls the periodic "Sweep stats" log line.
	StatsInterval time.Duration

	Clock timeutil.Clock
	Sink  LineSink
}

// Acquirer drives a LineParser from a CharSource. It is the only writer of
// its Buffer.
type Acquirer struct {
	src    CharSource
	parser *LineParser
	stats  *Stats
	cfg    AcquirerConfig
	logf   func(string, ...interface{})
}

// NewAcquirer wires src through a fresh parser into buf.
func NewAcquirer(src CharSource, buf *Buffer, cfg AcquirerConfig) *Acquirer {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Acquirer{
		src:    src,
		parser: NewLineParser(buf, cfg.Parser),
		stats:  NewStats(cfg.Clock.Now()),
		cfg:    cfg,
		logf:   monitoring.Prefixed("acquire"),
	}
}

// Stats exposes the acquisition counters.
func (a *Acquirer) Stats() *Stats { return a.stats }

// Run reads until ctx is cancelled, then closes the source. It returns nil on
// cooperative shutdown. Under PolicyFailFast the first rejected line stops
// the loop and its error is returned.
func (a *Acquirer) Run(ctx context.Context) error {
	defer a.closeSource()

	a.logf("reading (policy=%s, resolution=%d)", a.parser.Policy(), a.parser.buf.Resolution())
	nextStats := a.cfg.Clock.Now().Add(a.cfg.StatsInterval)

	for {
		select {
		case <-ctx.Done():
			a.logf("stopping: %v", ctx.Err())
			return nil
		default:
		}

		if a.cfg.StatsInterval > 0 {
			if now := a.cfg.Clock.Now(); !now.Before(nextStats) {
				a.logStats(now)
				nextStats = now.Add(a.cfg.StatsInterval)
			}
		}

		c, ok := a.src.ReadChar()
		if !ok {
			a.stats.AddEmptyRead()
			if a.cfg.IdleBackoff > 0 {
				select {
				case <-ctx.Done():
				case <-a.cfg.Clock.After(a.cfg.IdleBackoff):
				}
			}
			continue
		}
		a.stats.AddByte()

		res, err := a.parser.Feed(c)
		if err != nil {
			n := a.stats.AddError(err)
			if a.parser.Policy() == PolicyFailFast {
				return fmt.Errorf("acquisition stopped: %w", err)
			}
			if n <= 10 || n%100 == 0 {
				a.logf("discarding line (%d rejected so far): %v", n, err)
			}
			continue
		}
		if res.Committed {
			a.stats.AddCommit(a.cfg.Clock.Now())
			if a.cfg.Sink != nil {
				a.cfg.Sink.Publish(res.Sample.String())
			}
		}
	}
}

func (a *Acquirer) logStats(now time.Time) {
	snap := a.stats.UpdateRates(now)
	if snap.Bytes == 0 {
		return
	}
	msg := fmt.Sprintf("Sweep stats (/sec): %.1f lines, %.1f bytes", snap.LinesPerSec, snap.BytesPerSec)
	if rejected := snap.ProtocolErrors + snap.Overflows; rejected > 0 {
		msg += fmt.Sprintf(", %d rejected total", rejected)
	}
	a.logf("%s", msg)
}

func (a *Acquirer) closeSource() {
	c, ok := a.src.(io.Closer)
	if !ok {
		return
	}
	a.logf("closing source")
	if err := c.Close(); err != nil {
		a.logf("close failed: %v", err)
	}
}
