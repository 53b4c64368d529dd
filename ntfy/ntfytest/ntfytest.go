// Package ntfytest provides an in-memory ntfy server for tests.
package ntfytest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Message mirrors the fields of an ntfy message event used by the service.
type Message struct {
	ID      string `json:"id"`
	Time    int64  `json:"time"`
	Event   string `json:"event"`
	Topic   string `json:"topic"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
}

// Server is an httptest server speaking the subset of the ntfy API the
// service uses: POST /{topic} and GET /{topic}/json?poll=1.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	lines       map[string][]string
	seq         int
	publishCode int
	streamCode  int
	publishes   int
	authHeaders []string
	sinces      []string
}

// NewServer starts a new server. Callers must Close it.
func NewServer() *Server {
	s := &Server{lines: make(map[string][]string)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// FailPublish makes subsequent publishes return code; 0 restores success.
func (s *Server) FailPublish(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishCode = code
}

// FailStream makes subsequent stream reads return code; 0 restores success.
func (s *Server) FailStream(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamCode = code
}

// AppendRaw appends a raw line to topic's stream, used to inject
// malformed or unrelated events.
func (s *Server) AppendRaw(topic, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[topic] = append(s.lines[topic], line)
}

// AppendMessage appends a message event with the given title and body.
func (s *Server) AppendMessage(topic, title, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(topic, title, body)
}

// Publishes returns the number of successful publishes.
func (s *Server) Publishes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publishes
}

// Messages returns the decoded message events of topic in order.
func (s *Server) Messages(topic string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, line := range s.lines[topic] {
		var m Message
		if err := json.Unmarshal([]byte(line), &m); err == nil && m.Event == "message" {
			out = append(out, m)
		}
	}
	return out
}

// AuthHeaders returns the Authorization header of every request received.
func (s *Server) AuthHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authHeaders...)
}

// Sinces returns the since parameter of every stream request received.
func (s *Server) Sinces() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sinces...)
}

func (s *Server) appendLocked(topic, title, body string) Message {
	s.seq++
	m := Message{
		ID:      fmt.Sprintf("msg%06d", s.seq),
		Time:    time.Now().Unix(),
		Event:   "message",
		Topic:   topic,
		Title:   title,
		Message: body,
	}
	b, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	s.lines[topic] = append(s.lines[topic], string(b))
	return m
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.authHeaders = append(s.authHeaders, r.Header.Get("Authorization"))
	s.mu.Unlock()

	path := strings.Trim(r.URL.Path, "/")
	switch {
	case (r.Method == http.MethodPost || r.Method == http.MethodPut) && !strings.Contains(path, "/"):
		s.handlePublish(w, r, path)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/json"):
		s.handleStream(w, r, strings.TrimSuffix(path, "/json"))
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request, topic string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.publishCode != 0 {
		code := s.publishCode
		s.mu.Unlock()
		http.Error(w, http.StatusText(code), code)
		return
	}
	m := s.appendLocked(topic, r.Header.Get("Title"), string(body))
	s.publishes++
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, topic string) {
	s.mu.Lock()
	s.sinces = append(s.sinces, r.URL.Query().Get("since"))
	if s.streamCode != 0 {
		code := s.streamCode
		s.mu.Unlock()
		http.Error(w, http.StatusText(code), code)
		return
	}
	lines := append([]string(nil), s.lines[topic]...)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/x-ndjson; charset=utf-8")
	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return
		}
	}
}
