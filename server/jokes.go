package server

import (
	"dadjokes-api/pkg/jokes"
	"dadjokes-api/store"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// CreateJokeRequest is the body of POST /jokes.
type CreateJokeRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// UpdateJokeRequest is the body of PUT /jokes/{id}. Refresh (or its legacy
// name Reddit) replaces the joke with a freshly fetched one; otherwise
// Title and Body override the fields that are present. A key sent as null
// still makes the request a field update but leaves that field unchanged.
type UpdateJokeRequest struct {
	Title   OptionalString `json:"title,omitzero"`
	Body    OptionalString `json:"body,omitzero"`
	Refresh bool           `json:"refresh,omitempty"`
	Reddit  bool           `json:"reddit,omitempty"`
}

// OptionalString is a JSON string field that remembers whether its key was
// present. Value is nil when the key was absent or null.
type OptionalString struct {
	Present bool
	Value   *string
}

// Some returns a present field holding v.
func Some(v string) OptionalString {
	return OptionalString{Present: true, Value: &v}
}

// IsZero reports an absent field, so omitzero drops it when encoding.
func (o OptionalString) IsZero() bool {
	return !o.Present
}

// MarshalJSON implements json.Marshaler.
func (o OptionalString) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// UnmarshalJSON implements json.Unmarshaler. It is only called for keys
// present in the object, including ones set to null.
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Present = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// DeleteResponse is the body of a successful DELETE /jokes/{id}.
type DeleteResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// ResetResponse is the body of a successful POST /reset.
type ResetResponse struct {
	Status string `json:"status"`
	Items  int    `json:"items"`
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	item, err := s.poller.FetchOnce(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateJokeRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Title == "" || req.Body == "" {
		s.writeError(w, http.StatusBadRequest, "title and body are required")
		return
	}

	doc, err := s.store.Load(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	item := s.store.NewItem(req.Title, req.Body, jokes.SourceCustom)
	store.InsertItem(doc, item)
	if _, err := s.store.Save(r.Context(), doc); err != nil {
		s.fail(w, r, err)
		return
	}

	s.logger.Info("Joke created", "id", item.ID)
	w.Header().Set("Location", "/jokes/"+item.ID)
	s.writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Load(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	items := store.FilterByRange(doc.Items, q.Get("from"), q.Get("to"))
	s.writeJSON(w, http.StatusOK, store.Prune(items, s.store.MaxRecords()))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Load(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	item, err := store.FindByID(doc, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req UpdateJokeRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := s.store.Load(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	// Existence is checked before any upstream fetch.
	if _, err := store.FindByID(doc, id); err != nil {
		s.fail(w, r, err)
		return
	}

	patch := store.Patch{
		Title: req.Title.Value,
		Body:  req.Body.Value,
		Named: req.Title.Present || req.Body.Present,
	}
	if req.Refresh || req.Reddit {
		joke, err := s.fetcher.Fetch(r.Context())
		if err != nil {
			s.fail(w, r, fmt.Errorf("fetch joke: %w", err))
			return
		}
		patch = store.Patch{Joke: &joke}
	}

	item, err := s.store.UpdateItem(doc, id, patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.store.Save(r.Context(), doc); err != nil {
		s.fail(w, r, err)
		return
	}

	s.logger.Info("Joke updated", "id", id, "source", item.Source)
	s.writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	doc, err := s.store.Load(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := store.DeleteItem(doc, id); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.store.Save(r.Context(), doc); err != nil {
		s.fail(w, r, err)
		return
	}

	s.logger.Info("Joke deleted", "id", id)
	s.writeJSON(w, http.StatusOK, DeleteResponse{Status: "deleted", ID: id})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Reset(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Warn("Document reset", "version", doc.Version)
	s.writeJSON(w, http.StatusOK, ResetResponse{Status: "reset", Items: len(doc.Items)})
}
