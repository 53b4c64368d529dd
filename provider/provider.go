// Package provider fetches jokes from upstream sources with a fallback order.
package provider

import (
	"context"
	"dadjokes-api/pkg/jokes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrExhausted is returned by Chain.Fetch when every provider failed.
var ErrExhausted = errors.New("no joke provider succeeded")

// Provider defines the interface for joke sources.
type Provider interface {
	// Name is the tag written to an item's source field.
	Name() string
	// Fetch returns one joke.
	Fetch(ctx context.Context) (jokes.Joke, error)
}

// HTTP holds what every provider needs to call its upstream.
type HTTP struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTP returns an HTTP with a client bounded by timeout.
func NewHTTP(userAgent string, timeout time.Duration) HTTP {
	return HTTP{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: userAgent,
	}
}

// get issues a GET and returns the body of a 200 response. The caller closes it.
func (h HTTP) get(ctx context.Context, url, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close() //nolint:errcheck // error response body
		return nil, fmt.Errorf("GET %s: HTTP %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

// Chain tries a primary provider, then every registered provider in order.
type Chain struct {
	primary   string
	providers []Provider
	logger    *slog.Logger
}

// NewChain creates a chain. primary names the provider tried first; an
// unknown name is skipped.
func NewChain(primary string, logger *slog.Logger, providers ...Provider) *Chain {
	return &Chain{
		primary:   primary,
		providers: providers,
		logger:    logger,
	}
}

// Name implements Provider.
func (*Chain) Name() string {
	return "chain"
}

// Order returns the provider names in the order Fetch tries them.
func (c *Chain) Order() []string {
	var names []string
	for _, p := range c.order() {
		names = append(names, p.Name())
	}
	return names
}

func (c *Chain) order() []Provider {
	byName := make(map[string]Provider, len(c.providers))
	for _, p := range c.providers {
		if _, ok := byName[p.Name()]; !ok {
			byName[p.Name()] = p
		}
	}

	tried := make(map[string]bool, len(c.providers))
	var out []Provider
	for _, name := range append([]string{c.primary}, names(c.providers)...) {
		p, ok := byName[name]
		if !ok || tried[name] {
			continue
		}
		tried[name] = true
		out = append(out, p)
	}
	return out
}

func names(providers []Provider) []string {
	out := make([]string, len(providers))
	for i, p := range providers {
		out[i] = p.Name()
	}
	return out
}

// Fetch returns the first joke any provider yields. The joke's Source is
// the name of the provider that produced it.
func (c *Chain) Fetch(ctx context.Context) (jokes.Joke, error) {
	var errs []error
	for _, p := range c.order() {
		start := time.Now()
		joke, err := p.Fetch(ctx)
		if err != nil {
			c.logger.Warn("Joke provider failed",
				"provider", p.Name(),
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		joke.Source = p.Name()
		c.logger.Info("Joke fetched",
			"provider", p.Name(),
			"duration_ms", time.Since(start).Milliseconds())
		return joke, nil
	}
	if len(errs) == 0 {
		return jokes.Joke{}, ErrExhausted
	}
	return jokes.Joke{}, fmt.Errorf("%w: %w", ErrExhausted, errors.Join(errs...))
}
