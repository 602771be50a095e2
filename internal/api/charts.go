package api

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"tailscale.com/tsweb"

	"github.com/banshee-data/radar-sweep/internal/httputil"
	"github.com/banshee-data/radar-sweep/internal/sweep"
)

// AttachDebugRoutes mounts the sweep charts under /debug/.
func (s *Server) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("sweep-polar", "Live sweep (HTML chart)", http.HandlerFunc(s.handleSweepPolar))
	debug.Handle("sweep.png", "Live sweep (PNG snapshot)", http.HandlerFunc(s.handleSweepPNG))
}

// sweepFrame is one consistent-enough read of everything a chart draws.
type sweepFrame struct {
	polygon []sweep.Point
	valid   []bool
	head    sweep.Chord
	label   string
	extent  float64
}

func (s *Server) frame() sweepFrame {
	buf := s.recon.Buffer()
	f := sweepFrame{
		polygon: s.recon.Polygon(),
		valid:   make([]bool, buf.Resolution()),
		head:    s.recon.Head(),
		label:   s.recon.Annotation().String(),
	}
	maxAbs := math.Max(math.Abs(f.head.To.X), math.Abs(f.head.To.Y))
	for i, p := range f.polygon {
		_, f.valid[i] = buf.Lookup(sweep.Index(i))
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(p.X), math.Abs(p.Y)))
	}
	// a little padding so points at the edge stay visible
	f.extent = maxAbs * 1.05
	if f.extent == 0 {
		f.extent = 1
	}
	return f
}

// handleSweepPolar renders the sweep outline and head line as an HTML chart.
func (s *Server) handleSweepPolar(w http.ResponseWriter, r *http.Request) {
	f := s.frame()

	data := make([]opts.ScatterData, 0, len(f.polygon))
	for i, p := range f.polygon {
		if !f.valid[i] {
			continue
		}
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y, i}})
	}

	pad := f.extent
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Radar Sweep", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Radar Sweep", Subtitle: fmt.Sprintf("%s  points=%d move_size=%d", f.label, len(data), s.recon.MoveSize())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: -pad, Max: pad, Name: "X (cm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: -pad, Max: pad, Name: "Y (cm)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("sweep", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	head := charts.NewLine()
	head.AddSeries("head", []opts.LineData{
		{Value: []interface{}{f.head.From.X, f.head.From.Y}},
		{Value: []interface{}{f.head.To.X, f.head.To.Y}},
	})
	scatter.Overlap(head)

	var out bytes.Buffer
	if err := scatter.Render(&out); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(out.Bytes())
}

// handleSweepPNG renders a static image of the sweep.
func (s *Server) handleSweepPNG(w http.ResponseWriter, r *http.Request) {
	f := s.frame()

	var out bytes.Buffer
	if err := renderSweepPNG(&out, f); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(out.Bytes())
}

func renderSweepPNG(out *bytes.Buffer, f sweepFrame) error {
	p := plot.New()
	p.Title.Text = f.label
	p.X.Label.Text = "X (cm)"
	p.Y.Label.Text = "Y (cm)"
	p.X.Min, p.X.Max = -f.extent, f.extent
	p.Y.Min, p.Y.Max = -f.extent, f.extent
	p.Add(plotter.NewGrid())

	// outline through the set cells, closed back to the first one
	outline := make(plotter.XYs, 0, len(f.polygon)+1)
	for i, pt := range f.polygon {
		if f.valid[i] {
			outline = append(outline, plotter.XY{X: pt.X, Y: pt.Y})
		}
	}
	if len(outline) > 1 {
		outline = append(outline, outline[0])
		line, err := plotter.NewLine(outline)
		if err != nil {
			return fmt.Errorf("sweep outline: %w", err)
		}
		line.Color = color.RGBA{G: 200, A: 255}
		line.Width = vg.Points(1)
		p.Add(line)
	}

	head, err := plotter.NewLine(plotter.XYs{
		{X: f.head.From.X, Y: f.head.From.Y},
		{X: f.head.To.X, Y: f.head.To.Y},
	})
	if err != nil {
		return fmt.Errorf("head line: %w", err)
	}
	head.Color = color.RGBA{R: 220, A: 255}
	head.Width = vg.Points(1.5)
	p.Add(head)

	wt, err := p.WriterTo(6*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("png writer: %w", err)
	}
	_, err = wt.WriteTo(out)
	return err
}
