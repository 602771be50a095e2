// Package api serves the live sweep over HTTP: JSON geometry for clients,
// acquisition statistics, sensor profile management and debug charts.
package api

import (
	"net/http"
	"time"

	"github.com/banshee-data/radar-sweep/internal/db"
	"github.com/banshee-data/radar-sweep/internal/httputil"
	"github.com/banshee-data/radar-sweep/internal/sweep"
	"github.com/banshee-data/radar-sweep/internal/timeutil"
	"github.com/banshee-data/radar-sweep/internal/version"
)

// StatsSource reports acquisition counters. *sweep.Stats implements it.
type StatsSource interface {
	Snapshot(now time.Time) sweep.StatsSnapshot
}

// ProfileStore persists sensor profiles. *db.DB implements it.
type ProfileStore interface {
	ListProfiles() ([]db.SensorProfile, error)
	GetProfile(id int64) (*db.SensorProfile, error)
	CreateProfile(p *db.SensorProfile) error
	DeleteProfile(id int64) error
}

type Server struct {
	recon    *sweep.Reconstructor
	stats    StatsSource
	profiles ProfileStore
	clock    timeutil.Clock
}

// NewServer returns a Server reading geometry from recon. stats and profiles
// may be nil; the routes that need them then report 503.
func NewServer(recon *sweep.Reconstructor, stats StatsSource, profiles ProfileStore) *Server {
	return &Server{
		recon:    recon,
		stats:    stats,
		profiles: profiles,
		clock:    timeutil.RealClock{},
	}
}

// ServeMux returns a mux with the API routes and the debug charts mounted.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sweep", s.showSweep)
	mux.HandleFunc("/api/sweep/head", s.showHead)
	mux.HandleFunc("/api/sweep/annotation", s.showAnnotation)
	mux.HandleFunc("/api/sweep/move-size", s.handleMoveSize)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/profiles", s.handleProfiles)
	mux.HandleFunc("/api/profiles/{id}", s.handleProfile)
	mux.HandleFunc("/api/version", s.showVersion)
	s.AttachDebugRoutes(mux)
	return mux
}

// SweepResponse is the full chord set for one render.
type SweepResponse struct {
	Resolution int           `json:"resolution"`
	MoveSize   int           `json:"move_size"`
	MostRecent sweep.Index   `json:"most_recent"`
	HasData    bool          `json:"has_data"`
	Chords     []sweep.Chord `json:"chords"`
}

func (s *Server) showSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	buf := s.recon.Buffer()
	httputil.WriteJSONOK(w, SweepResponse{
		Resolution: s.recon.Resolution(),
		MoveSize:   s.recon.MoveSize(),
		MostRecent: buf.MostRecent(),
		HasData:    buf.HasData(),
		Chords:     s.recon.Chords(),
	})
}

func (s *Server) showHead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.recon.Head())
}

// AnnotationResponse carries the most recent sample and its display text.
type AnnotationResponse struct {
	sweep.Annotation
	Text string `json:"text"`
}

func (s *Server) showAnnotation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	a := s.recon.Annotation()
	httputil.WriteJSONOK(w, AnnotationResponse{Annotation: a, Text: a.String()})
}

// MoveSizeRequest is the body of PUT /api/sweep/move-size.
type MoveSizeRequest struct {
	MoveSize *int `json:"move_size"`
}

// MoveSizeResponse reports the current chord span.
type MoveSizeResponse struct {
	MoveSize   int `json:"move_size"`
	Resolution int `json:"resolution"`
}

func (s *Server) handleMoveSize(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req MoveSizeRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if req.MoveSize == nil {
			httputil.BadRequest(w, "move_size is required")
			return
		}
		if err := s.recon.SetMoveSize(*req.MoveSize); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodPut)
		return
	}
	httputil.WriteJSONOK(w, MoveSizeResponse{
		MoveSize:   s.recon.MoveSize(),
		Resolution: s.recon.Resolution(),
	})
}

// VersionResponse identifies the running build.
type VersionResponse struct {
	Version   string `json:"version"`
	GitSHA    string `json:"git_sha"`
	BuildTime string `json:"build_time"`
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, VersionResponse{
		Version:   version.Version,
		GitSHA:    version.GitSHA,
		BuildTime: version.BuildTime,
	})
}
