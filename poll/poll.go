// Package poll fetches jokes from the providers and stores them.
package poll

import (
	"context"
	"dadjokes-api/pkg/jokes"
	"dadjokes-api/store"
	"fmt"
	"log/slog"
	"time"
)

// Fetcher supplies jokes, typically a provider chain.
type Fetcher interface {
	Fetch(ctx context.Context) (jokes.Joke, error)
}

// Store is the document store the fetched jokes are written to.
type Store interface {
	Load(ctx context.Context) (*jokes.Document, error)
	Save(ctx context.Context, doc *jokes.Document) (*jokes.Document, error)
	NewItem(title, body, source string) jokes.Item
}

// Monitor handles fetch-and-store.
type Monitor struct {
	fetcher Fetcher
	store   Store
	logger  *slog.Logger
}

// New creates a new monitor.
func New(fetcher Fetcher, store Store, logger *slog.Logger) *Monitor {
	return &Monitor{
		fetcher: fetcher,
		store:   store,
		logger:  logger,
	}
}

// FetchOnce fetches one joke, prepends it to the document and saves.
func (m *Monitor) FetchOnce(ctx context.Context) (*jokes.Item, error) {
	joke, err := m.fetcher.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch joke: %w", err)
	}

	doc, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	item := m.store.NewItem(joke.Title, joke.Body, joke.Source)
	store.InsertItem(doc, item)
	saved, err := m.store.Save(ctx, doc)
	if err != nil {
		return nil, err
	}

	m.logger.Info("Stored fetched joke",
		"id", item.ID,
		"source", item.Source,
		"version", saved.Version)
	return &item, nil
}

// Run calls FetchOnce every interval until ctx is done. Failures are
// logged and the next tick tries again. A non-positive interval returns
// immediately.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	m.logger.Info("Autofetch started", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var failures int
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Autofetch stopped", "reason", ctx.Err())
			return
		case <-ticker.C:
			start := time.Now()
			item, err := m.FetchOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				failures++
				m.logger.Warn("Autofetch failed",
					"consecutive_failures", failures,
					"duration_ms", time.Since(start).Milliseconds(),
					"error", err)
				continue
			}
			failures = 0
			m.logger.Debug("Autofetch completed",
				"id", item.ID,
				"duration_ms", time.Since(start).Milliseconds())
		}
	}
}
