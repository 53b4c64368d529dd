// Package ntfy publishes to and streams from an ntfy topic over its HTTP API.
package ntfy

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

const (
	defaultPublishTimeout = 10 * time.Second
	defaultStreamTimeout  = 15 * time.Second
)

// ErrStreamIdle is returned when a stream read receives nothing for the
// stream timeout.
var ErrStreamIdle = errors.New("ntfy stream idle")

// StatusError indicates a non-2xx response from the ntfy server.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ntfy %s %s: HTTP %d", e.Method, e.URL, e.Code)
}

// IsStatusError reports whether err is a StatusError and returns its code.
func IsStatusError(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// Config holds client configuration.
type Config struct {
	BaseURL        string
	Topic          string
	Token          string // Optional bearer token
	Attempts       uint   // Publish/stream attempts, 1 disables retries
	PublishTimeout time.Duration
	StreamTimeout  time.Duration // Longest silence while streaming, including the wait for headers
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Client talks to a single ntfy topic.
type Client struct {
	baseURL        string
	topic          string
	token          string
	attempts       uint
	publishTimeout time.Duration
	streamTimeout  time.Duration
	client         *http.Client
	logger         *slog.Logger
}

// New creates a new ntfy client.
func New(cfg *Config) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		topic:          cfg.Topic,
		token:          cfg.Token,
		attempts:       cfg.Attempts,
		publishTimeout: cfg.PublishTimeout,
		streamTimeout:  cfg.StreamTimeout,
		client:         cfg.HTTPClient,
		logger:         cfg.Logger,
	}
	if c.attempts == 0 {
		c.attempts = 1
	}
	if c.publishTimeout <= 0 {
		c.publishTimeout = defaultPublishTimeout
	}
	if c.streamTimeout <= 0 {
		c.streamTimeout = defaultStreamTimeout
	}
	if c.client == nil {
		c.client = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Topic returns the topic name.
func (c *Client) Topic() string {
	return c.topic
}

func (c *Client) topicURL(suffix string) string {
	return c.baseURL + "/" + url.PathEscape(c.topic) + suffix
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// Publish sends body as one message with the given title.
func (c *Client) Publish(ctx context.Context, title string, body []byte) error {
	target := c.topicURL("")

	return c.do(ctx, "publish", func() error {
		ctx, cancel := context.WithTimeout(ctx, c.publishTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Title", title)
		c.authorize(req)

		start := time.Now()
		resp, err := c.client.Do(req)
		duration := time.Since(start)
		if err != nil {
			c.logger.Warn("ntfy publish failed", "topic", c.topic, "duration_ms", duration.Milliseconds(), "error", err)
			return fmt.Errorf("publish: %w", err)
		}
		defer func() {
			if closeErr := resp.Body.Close(); closeErr != nil {
				c.logger.Warn("Failed to close response body", "error", closeErr)
			}
		}()
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.logger.Warn("ntfy publish returned non-2xx status", "topic", c.topic, "status_code", resp.StatusCode)
			return &StatusError{Method: http.MethodPost, URL: target, Code: resp.StatusCode}
		}

		c.logger.Debug("ntfy publish completed",
			"topic", c.topic,
			"bytes", len(body),
			"duration_ms", duration.Milliseconds())
		return nil
	})
}

// Stream opens a polling read of every message published within since
// (an ntfy "since" value such as "72h", "all" or a unix timestamp).
// The stream timeout limits inactivity, not the total read, so a long
// window on a slow server completes as long as lines keep arriving.
// The caller must Close the returned stream.
func (c *Client) Stream(ctx context.Context, since string) (*Stream, error) {
	q := url.Values{}
	q.Set("poll", "1")
	if since != "" {
		q.Set("since", since)
	}
	target := c.topicURL("/json") + "?" + q.Encode()

	var stream *Stream
	err := c.do(ctx, "stream", func() error {
		sctx, cancel := context.WithCancel(ctx)
		idle := startWatchdog(c.streamTimeout, cancel)
		release := func() {
			idle.stop()
			cancel()
		}

		req, err := http.NewRequestWithContext(sctx, http.MethodGet, target, http.NoBody)
		if err != nil {
			release()
			return fmt.Errorf("create request: %w", err)
		}
		c.authorize(req)

		resp, err := c.client.Do(req)
		if err != nil {
			release()
			if idle.expired() {
				err = fmt.Errorf("%w: no response within %s", ErrStreamIdle, c.streamTimeout)
			}
			c.logger.Warn("ntfy stream request failed", "topic", c.topic, "error", err)
			return fmt.Errorf("stream: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close() //nolint:errcheck // status already decides the outcome
			release()
			c.logger.Warn("ntfy stream returned non-OK status", "topic", c.topic, "status_code", resp.StatusCode)
			return &StatusError{Method: http.MethodGet, URL: target, Code: resp.StatusCode}
		}

		stream = newStream(resp.Body, cancel, idle)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// do runs fn up to c.attempts times and returns the last attempt's error
// rather than the aggregated retry log.
func (c *Client) do(ctx context.Context, op string, fn func() error) error {
	var last error
	err := retry.Do(
		func() error {
			last = fn()
			return last
		},
		retry.Attempts(c.attempts),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying ntfy request after error", "op", op, "attempt", n, "topic", c.topic, "error", err)
		}),
		retry.RetryIf(retryable),
	)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	if last != nil {
		return last
	}
	return err
}

// retryable rejects client errors other than 429; the request will not
// succeed by sending it again.
func retryable(err error) bool {
	code, ok := IsStatusError(err)
	if !ok {
		return true
	}
	return code >= 500 || code == http.StatusTooManyRequests
}

// watchdog cancels a request once it has been silent for timeout.
type watchdog struct {
	timer   *time.Timer
	timeout time.Duration
	fired   atomic.Bool
}

func startWatchdog(timeout time.Duration, cancel context.CancelFunc) *watchdog {
	w := &watchdog{timeout: timeout}
	w.timer = time.AfterFunc(timeout, func() {
		w.fired.Store(true)
		cancel()
	})
	return w
}

// kick restarts the silence window.
func (w *watchdog) kick() { w.timer.Reset(w.timeout) }

func (w *watchdog) stop() { w.timer.Stop() }

func (w *watchdog) expired() bool { return w.fired.Load() }

// Stream iterates over the line-delimited events of a topic read.
// It ends when the server closes the response.
type Stream struct {
	body   io.ReadCloser
	r      *bufio.Reader
	cancel context.CancelFunc
	idle   *watchdog
	line   []byte
	err    error
	done   bool
}

func newStream(body io.ReadCloser, cancel context.CancelFunc, idle *watchdog) *Stream {
	return &Stream{
		body:   body,
		r:      bufio.NewReader(body),
		cancel: cancel,
		idle:   idle,
	}
}

// Next advances to the next non-blank line.
func (s *Stream) Next() bool {
	for !s.done {
		if !s.idle.expired() {
			s.idle.kick()
		}
		line, err := s.r.ReadBytes('\n')
		if err != nil {
			s.done = true
			switch {
			case s.idle.expired():
				s.err = fmt.Errorf("%w for %s", ErrStreamIdle, s.idle.timeout)
			case !errors.Is(err, io.EOF):
				s.err = err
			}
		}
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			s.line = line
			return true
		}
	}
	return false
}

// Bytes returns the current line. It is valid until the next call to Next.
func (s *Stream) Bytes() []byte {
	return s.line
}

// Err returns the first non-EOF read error.
func (s *Stream) Err() error {
	return s.err
}

// Close releases the underlying response.
func (s *Stream) Close() error {
	s.idle.stop()
	defer s.cancel()
	return s.body.Close()
}
