// Package store keeps the joke collection as a single document on an ntfy
// topic. Every save publishes a full snapshot; every load replays the
// topic's recent messages and keeps the last snapshot in stream order.
package store

import (
	"context"
	"dadjokes-api/ntfy"
	"dadjokes-api/pkg/jokes"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrNotFound is returned when no item has the requested id.
	ErrNotFound = errors.New("not found")
	// ErrEmptyPatch is returned by UpdateItem when a field patch sets nothing.
	ErrEmptyPatch = errors.New("provide title/body or set reddit=true")
	// ErrConflict is returned by Save in optimistic mode when another writer
	// published since the document was loaded.
	ErrConflict = errors.New("document changed since it was loaded")
)

// Topic is the message topic the store persists to.
type Topic interface {
	Topic() string
	Publish(ctx context.Context, title string, body []byte) error
	Stream(ctx context.Context, since string) (*ntfy.Stream, error)
}

// Cache holds the latest document between requests. Implementations are
// best-effort: failures are misses. Set overwrites and is used after a
// publish; Add only fills an empty entry, so a replay that finished after a
// concurrent save cannot replace the newer document.
type Cache interface {
	Get(ctx context.Context, topic string) (*jokes.Document, bool)
	Set(ctx context.Context, topic string, doc *jokes.Document)
	Add(ctx context.Context, topic string, doc *jokes.Document)
}

// Archiver mirrors saved snapshots somewhere outside the topic.
type Archiver interface {
	Save(ctx context.Context, doc *jokes.Document) error
}

// Config holds store configuration.
type Config struct {
	Topic      Topic
	Cache      Cache    // Optional
	Archive    Archiver // Optional
	Logger     *slog.Logger
	Since      string // Replay window, e.g. "72h"
	MaxRecords int
	Instance   string // Written to pod_name
	Optimistic bool   // Reject saves when the topic moved on since load
	// ArchiveTimeout bounds the mirror write that follows a publish.
	// Zero uses DefaultArchiveTimeout.
	ArchiveTimeout time.Duration
	Now            func() time.Time
}

// DefaultArchiveTimeout bounds the archive write when Config leaves it unset.
const DefaultArchiveTimeout = 5 * time.Second

// Store is the log-backed document store. It holds no document state;
// the topic is the source of truth.
type Store struct {
	topic      Topic
	cache      Cache
	archive    Archiver
	logger     *slog.Logger
	since      string
	maxRecords int
	instance   string
	optimistic bool
	archiveTTL time.Duration
	now        func() time.Time
}

// New creates a new store.
func New(cfg *Config) *Store {
	s := &Store{
		topic:      cfg.Topic,
		cache:      cfg.Cache,
		archive:    cfg.Archive,
		logger:     cfg.Logger,
		since:      cfg.Since,
		maxRecords: cfg.MaxRecords,
		instance:   cfg.Instance,
		optimistic: cfg.Optimistic,
		archiveTTL: cfg.ArchiveTimeout,
		now:        cfg.Now,
	}
	if s.archiveTTL <= 0 {
		s.archiveTTL = DefaultArchiveTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// MaxRecords returns the retention cap.
func (s *Store) MaxRecords() int {
	return s.maxRecords
}

func (s *Store) timestamp() string {
	return jokes.Timestamp(s.now())
}

// Empty returns a fresh document with version 0 and no items.
func (s *Store) Empty() *jokes.Document {
	return &jokes.Document{Version: 0, UpdatedAt: s.timestamp(), Items: []jokes.Item{}}
}

// Load returns the latest document, served from the cache when it holds one.
func (s *Store) Load(ctx context.Context) (*jokes.Document, error) {
	if s.cache != nil {
		if doc, ok := s.cache.Get(ctx, s.topic.Topic()); ok {
			s.logger.Debug("Document served from cache", "topic", s.topic.Topic(), "version", doc.Version)
			return doc, nil
		}
	}

	doc, err := s.replay(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Add(ctx, s.topic.Topic(), doc)
	}
	return doc, nil
}

// replay reads the whole window and keeps the last decodable snapshot.
func (s *Store) replay(ctx context.Context) (*jokes.Document, error) {
	start := time.Now()
	stream, err := s.topic.Stream(ctx, s.since)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	defer func() {
		if closeErr := stream.Close(); closeErr != nil {
			s.logger.Warn("Failed to close topic stream", "error", closeErr)
		}
	}()

	var latest *jokes.Document
	var lines, skipped int
	for stream.Next() {
		lines++
		doc, ok := Decode(stream.Bytes())
		if !ok {
			skipped++
			continue
		}
		latest = doc
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("load: read stream: %w", err)
	}

	if latest == nil {
		latest = s.Empty()
	}
	if latest.Items == nil {
		latest.Items = []jokes.Item{}
	}

	s.logger.Debug("Document replayed",
		"topic", s.topic.Topic(),
		"lines", lines,
		"skipped", skipped,
		"version", latest.Version,
		"items", len(latest.Items),
		"duration_ms", time.Since(start).Milliseconds())
	return latest, nil
}

// Save bumps the version, stamps updated_at, prunes and publishes doc.
// doc is modified in place and returned. A publish failure loses the change.
func (s *Store) Save(ctx context.Context, doc *jokes.Document) (*jokes.Document, error) {
	return s.save(ctx, doc, s.optimistic)
}

// Reset publishes an empty document, starting a new lineage at version 1.
// It overwrites unconditionally, so the optimistic check does not apply.
func (s *Store) Reset(ctx context.Context) (*jokes.Document, error) {
	return s.save(ctx, s.Empty(), false)
}

func (s *Store) save(ctx context.Context, doc *jokes.Document, check bool) (*jokes.Document, error) {
	if check {
		current, err := s.replay(ctx)
		if err != nil {
			return nil, fmt.Errorf("save: check version: %w", err)
		}
		if current.Version != doc.Version {
			s.logger.Warn("Rejecting save of stale document",
				"topic", s.topic.Topic(),
				"loaded_version", doc.Version,
				"current_version", current.Version)
			return nil, fmt.Errorf("save: loaded version %d, topic at %d: %w", doc.Version, current.Version, ErrConflict)
		}
	}

	doc.Version++
	doc.UpdatedAt = s.timestamp()
	doc.Items = Prune(doc.Items, s.maxRecords)

	body, err := Encode(doc)
	if err != nil {
		return nil, err
	}
	if err := s.topic.Publish(ctx, SnapshotTitle, body); err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}

	s.logger.Info("Document saved",
		"topic", s.topic.Topic(),
		"version", doc.Version,
		"items", len(doc.Items))

	if s.cache != nil {
		s.cache.Set(ctx, s.topic.Topic(), doc)
	}
	if s.archive != nil {
		s.mirror(ctx, doc)
	}
	return doc, nil
}

// mirror archives a published document. The publish already succeeded, so
// the write gets its own deadline and its failure is only logged.
func (s *Store) mirror(ctx context.Context, doc *jokes.Document) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.archiveTTL)
	defer cancel()

	start := time.Now()
	if err := s.archive.Save(ctx, doc); err != nil {
		s.logger.Warn("Failed to archive snapshot",
			"version", doc.Version,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
	}
}
