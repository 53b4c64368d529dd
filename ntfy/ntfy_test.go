package ntfy_test

import (
	"context"
	"dadjokes-api/ntfy"
	"dadjokes-api/ntfy/ntfytest"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newClient(t *testing.T, srv *ntfytest.Server, token string, attempts uint) *ntfy.Client {
	t.Helper()
	return ntfy.New(&ntfy.Config{
		BaseURL:  srv.URL + "/",
		Topic:    "jokes-test",
		Token:    token,
		Attempts: attempts,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestPublishSetsTitleAndAuth(t *testing.T) {
	srv := ntfytest.NewServer()
	defer srv.Close()

	c := newClient(t, srv, "s3cret", 1)
	if err := c.Publish(context.Background(), "dadjokes-db", []byte(`{"version":1}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	msgs := srv.Messages("jokes-test")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Title != "dadjokes-db" {
		t.Errorf("title = %q, want %q", msgs[0].Title, "dadjokes-db")
	}
	if msgs[0].Message != `{"version":1}` {
		t.Errorf("message = %q", msgs[0].Message)
	}
	if got := srv.AuthHeaders(); len(got) != 1 || got[0] != "Bearer s3cret" {
		t.Errorf("auth headers = %v, want [Bearer s3cret]", got)
	}
}

func TestPublishWithoutToken(t *testing.T) {
	srv := ntfytest.NewServer()
	defer srv.Close()

	c := newClient(t, srv, "", 1)
	if err := c.Publish(context.Background(), "t", []byte("x")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got := srv.AuthHeaders(); got[0] != "" {
		t.Errorf("Authorization = %q, want empty", got[0])
	}
}

func TestPublishNonSuccess(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		attempts  uint
		wantCalls int
	}{
		{name: "client error is not retried", code: http.StatusForbidden, attempts: 3, wantCalls: 1},
		{name: "server error with single attempt", code: http.StatusBadGateway, attempts: 1, wantCalls: 1},
		{name: "server error is retried", code: http.StatusBadGateway, attempts: 2, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := ntfytest.NewServer()
			defer srv.Close()
			srv.FailPublish(tt.code)

			c := newClient(t, srv, "", tt.attempts)
			err := c.Publish(context.Background(), "t", []byte("x"))
			if err == nil {
				t.Fatal("Publish() error = nil, want error")
			}
			code, ok := ntfy.IsStatusError(err)
			if !ok || code != tt.code {
				t.Errorf("IsStatusError() = %d, %v, want %d, true", code, ok, tt.code)
			}
			if got := len(srv.AuthHeaders()); got != tt.wantCalls {
				t.Errorf("requests = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestStreamYieldsLinesInOrder(t *testing.T) {
	srv := ntfytest.NewServer()
	defer srv.Close()

	srv.AppendMessage("jokes-test", "a", "1")
	srv.AppendRaw("jokes-test", "")
	srv.AppendRaw("jokes-test", "not json")
	srv.AppendMessage("jokes-test", "b", "2")
	srv.AppendMessage("other-topic", "c", "3")

	c := newClient(t, srv, "", 1)
	s, err := c.Stream(context.Background(), "72h")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	var lines []string
	for s.Next() {
		lines = append(lines, string(s.Bytes()))
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3 (blank line skipped): %q", len(lines), lines)
	}
	if lines[1] != "not json" {
		t.Errorf("lines[1] = %q, want malformed line passed through", lines[1])
	}
	if got := srv.Sinces(); len(got) != 1 || got[0] != "72h" {
		t.Errorf("since = %v, want [72h]", got)
	}
}

func TestStreamNonSuccess(t *testing.T) {
	srv := ntfytest.NewServer()
	defer srv.Close()
	srv.FailStream(http.StatusUnauthorized)

	c := newClient(t, srv, "bad", 1)
	_, err := c.Stream(context.Background(), "72h")
	if code, ok := ntfy.IsStatusError(err); !ok || code != http.StatusUnauthorized {
		t.Errorf("Stream() error = %v, want HTTP 401", err)
	}
}

func TestStreamCancelledContext(t *testing.T) {
	srv := ntfytest.NewServer()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newClient(t, srv, "", 1)
	if _, err := c.Stream(ctx, "72h"); err == nil {
		t.Error("Stream() error = nil, want context error")
	}
}

// trickleServer writes lines one at a time with gap between them, then
// stalls for stall before ending the response.
func trickleServer(t *testing.T, lines int, gap, stall time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Error("response writer cannot flush")
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		for i := range lines {
			select {
			case <-time.After(gap):
			case <-r.Context().Done():
				return
			}
			fmt.Fprintf(w, "{\"event\":\"message\",\"message\":\"%d\"}\n", i)
			flusher.Flush()
		}
		select {
		case <-time.After(stall):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func streamClient(url string, timeout time.Duration) *ntfy.Client {
	return ntfy.New(&ntfy.Config{
		BaseURL:       url,
		Topic:         "jokes-test",
		Attempts:      1,
		StreamTimeout: timeout,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestStreamTimeoutIsPerRead(t *testing.T) {
	// Total duration is well past the timeout but no gap reaches it.
	srv := trickleServer(t, 6, 60*time.Millisecond, 0)
	c := streamClient(srv.URL, 200*time.Millisecond)

	s, err := c.Stream(context.Background(), "72h")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer s.Close() //nolint:errcheck // test cleanup

	var n int
	for s.Next() {
		n++
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err() = %v, want a slow but steady stream to complete", err)
	}
	if n != 6 {
		t.Errorf("read %d lines, want 6", n)
	}
}

func TestStreamIdleFails(t *testing.T) {
	srv := trickleServer(t, 1, 0, 5*time.Second)
	c := streamClient(srv.URL, 100*time.Millisecond)

	start := time.Now()
	s, err := c.Stream(context.Background(), "72h")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer s.Close() //nolint:errcheck // test cleanup

	var n int
	for s.Next() {
		n++
	}
	if n != 1 {
		t.Errorf("read %d lines before stalling, want 1", n)
	}
	if err := s.Err(); !errors.Is(err, ntfy.ErrStreamIdle) {
		t.Errorf("Err() = %v, want ErrStreamIdle", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("stalled stream took %v to fail, want about the timeout", elapsed)
	}
}

func TestStreamIdleBeforeHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	c := streamClient(srv.URL, 100*time.Millisecond)

	if _, err := c.Stream(context.Background(), "72h"); !errors.Is(err, ntfy.ErrStreamIdle) {
		t.Errorf("Stream() error = %v, want ErrStreamIdle", err)
	}
}
