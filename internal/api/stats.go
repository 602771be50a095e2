package api

import (
	"net/http"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/radar-sweep/internal/httputil"
	"github.com/banshee-data/radar-sweep/internal/sweep"
)

// DistanceSummary describes the distances currently held in the buffer.
// Cells that have never been written are excluded.
type DistanceSummary struct {
	ValidCells int     `json:"valid_cells"`
	Coverage   float64 `json:"coverage"` // fraction of cells written at least once
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"stddev"`
	Median     float64 `json:"median"`
}

// Summarise computes a DistanceSummary over the set cells of buf.
func Summarise(buf *sweep.Buffer) DistanceSummary {
	n := buf.Resolution()
	values := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if d, ok := buf.Lookup(sweep.Index(i)); ok {
			values = append(values, float64(d))
		}
	}

	sum := DistanceSummary{ValidCells: len(values)}
	if n > 0 {
		sum.Coverage = float64(len(values)) / float64(n)
	}
	if len(values) == 0 {
		return sum
	}

	sum.Min = floats.Min(values)
	sum.Max = floats.Max(values)
	if len(values) > 1 {
		sum.Mean, sum.StdDev = stat.MeanStdDev(values, nil)
	} else {
		sum.Mean = values[0]
	}
	sort.Float64s(values)
	sum.Median = stat.Quantile(0.5, stat.Empirical, values, nil)
	return sum
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Acquisition *sweep.StatsSnapshot `json:"acquisition,omitempty"`
	Distance    DistanceSummary      `json:"distance"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	resp := StatsResponse{Distance: Summarise(s.recon.Buffer())}
	if s.stats != nil {
		snap := s.stats.Snapshot(s.clock.Now())
		resp.Acquisition = &snap
	}
	httputil.WriteJSONOK(w, resp)
}
