package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/banshee-data/radar-sweep/internal/db"
	"github.com/banshee-data/radar-sweep/internal/httputil"
	"github.com/banshee-data/radar-sweep/internal/monitoring"
)

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if s.profiles == nil {
		httputil.ServiceUnavailable(w, "profile storage is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		profiles, err := s.profiles.ListProfiles()
		if err != nil {
			monitoring.Logf("[api] list profiles: %v", err)
			httputil.InternalServerError(w, "failed to list profiles")
			return
		}
		httputil.WriteJSONOK(w, profiles)

	case http.MethodPost:
		var p db.SensorProfile
		if err := httputil.DecodeJSON(r, &p); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		p.ID = 0
		if err := p.Normalise(); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := s.profiles.CreateProfile(&p); err != nil {
			if errors.Is(err, db.ErrProfileExists) {
				httputil.WriteJSONError(w, http.StatusConflict, "a profile named "+strconv.Quote(p.Name)+" already exists")
				return
			}
			monitoring.Logf("[api] create profile: %v", err)
			httputil.InternalServerError(w, "failed to create profile")
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, p)

	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if s.profiles == nil {
		httputil.ServiceUnavailable(w, "profile storage is not configured")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.BadRequest(w, "invalid profile id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		p, err := s.profiles.GetProfile(id)
		if errors.Is(err, db.ErrProfileNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		if err != nil {
			monitoring.Logf("[api] get profile %d: %v", id, err)
			httputil.InternalServerError(w, "failed to get profile")
			return
		}
		httputil.WriteJSONOK(w, p)

	case http.MethodDelete:
		err := s.profiles.DeleteProfile(id)
		if errors.Is(err, db.ErrProfileNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		if err != nil {
			monitoring.Logf("[api] delete profile %d: %v", id, err)
			httputil.InternalServerError(w, "failed to delete profile")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}
