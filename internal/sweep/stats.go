package sweep

import (
	"errors"
	"sync"
	"time"
)

// StatsSnapshot is a point-in-time copy of the acquisition counters.
type StatsSnapshot struct {
	Bytes          int64     `json:"bytes"`
	EmptyReads     int64     `json:"empty_reads"`
	Lines          int64     `json:"lines"`
	ProtocolErrors int64     `json:"protocol_errors"`
	Overflows      int64     `json:"overflows"`
	LastCommit     time.Time `json:"last_commit"`
	Uptime         string    `json:"uptime"`
	LinesPerSec    float64   `json:"lines_per_sec"`
	BytesPerSec    float64   `json:"bytes_per_sec"`
}

// Stats tracks acquisition counters. The acquisition goroutine writes,
// HTTP handlers read.
type Stats struct {
	mu sync.Mutex

	bytes          int64
	emptyReads     int64
	lines          int64
	protocolErrors int64
	overflows      int64
	lastCommit     time.Time
	startTime      time.Time

	// totals at the previous rate computation
	lastRateAt    time.Time
	lastRateLines int64
	lastRateBytes int64
	linesPerSec   float64
	bytesPerSec   float64
}

// NewStats returns counters anchored at now.
func NewStats(now time.Time) *Stats {
	return &Stats{startTime: now, lastRateAt: now}
}

// AddByte counts one byte delivered by the source.
func (s *Stats) AddByte() {
	s.mu.Lock()
	s.bytes++
	s.mu.Unlock()
}

// AddEmptyRead counts one read that yielded nothing.
func (s *Stats) AddEmptyRead() {
	s.mu.Lock()
	s.emptyReads++
	s.mu.Unlock()
}

// AddCommit counts one committed line.
func (s *Stats) AddCommit(at time.Time) {
	s.mu.Lock()
	s.lines++
	s.lastCommit = at
	s.mu.Unlock()
}

// AddError counts a rejected line and returns the running error count.
func (s *Stats) AddError(err error) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(err, ErrOverflow) {
		s.overflows++
	} else {
		s.protocolErrors++
	}
	return s.protocolErrors + s.overflows
}

// UpdateRates recomputes per-second rates over the window since the previous
// call and returns the fresh snapshot.
func (s *Stats) UpdateRates(now time.Time) StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if secs := now.Sub(s.lastRateAt).Seconds(); secs > 0 {
		s.linesPerSec = float64(s.lines-s.lastRateLines) / secs
		s.bytesPerSec = float64(s.bytes-s.lastRateBytes) / secs
	}
	s.lastRateAt = now
	s.lastRateLines = s.lines
	s.lastRateBytes = s.bytes
	return s.snapshotLocked(now)
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot(now time.Time) StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(now)
}

func (s *Stats) snapshotLocked(now time.Time) StatsSnapshot {
	return StatsSnapshot{
		Bytes:          s.bytes,
		EmptyReads:     s.emptyReads,
		Lines:          s.lines,
		ProtocolErrors: s.protocolErrors,
		Overflows:      s.overflows,
		LastCommit:     s.lastCommit,
		Uptime:         now.Sub(s.startTime).Truncate(time.Second).String(),
		LinesPerSec:    s.linesPerSec,
		BytesPerSec:    s.bytesPerSec,
	}
}
