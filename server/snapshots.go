package server

import (
	"dadjokes-api/archive"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeError(w, http.StatusNotFound, "snapshot archive disabled")
		return
	}
	entries, err := s.archive.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeError(w, http.StatusNotFound, "snapshot archive disabled")
		return
	}
	version, err := strconv.ParseInt(mux.Vars(r)["version"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid version")
		return
	}

	doc, err := s.archive.Load(r.Context(), version)
	if errors.Is(err, archive.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}
