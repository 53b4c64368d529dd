// Package archive mirrors saved snapshots to Cloud Storage or a local directory.
package archive

import (
	"cmp"
	"context"
	"dadjokes-api/pkg/jokes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"
)

// ErrNotFound is returned when no snapshot exists for a version.
var ErrNotFound = errors.New("snapshot not found")

// Entry describes one archived snapshot.
type Entry struct {
	Version int64     `json:"version"`
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	Updated time.Time `json:"updated"`
}

// Archive writes one object per saved version. It is a mirror for
// inspection; the topic remains the source of truth.
type Archive struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
	topic     string
}

// New creates an archive for topic. When localPath is set the local
// directory is used and client may be nil.
func New(client *storage.Client, bucket, localPath, topic string, logger *slog.Logger) *Archive {
	return &Archive{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
		topic:     topic,
	}
}

// Key returns the object name of a version, e.g. "dadjokes-api/v0000000042.json".
// Zero padding keeps lexical and numeric order aligned.
func Key(topic string, version int64) string {
	return fmt.Sprintf("%s/v%010d.json", topic, version)
}

// parseKey extracts the version from an object or file name.
func parseKey(name string) (int64, bool) {
	base := path.Base(filepath.ToSlash(name))
	if !strings.HasPrefix(base, "v") || !strings.HasSuffix(base, ".json") {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(base, "v"), ".json"), 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func (a *Archive) retryOptions(ctx context.Context, op, key string) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30 * time.Second),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			a.logger.Info("Retrying archive operation after error", "op", op, "attempt", n, "key", key, "error", err)
		}),
	}
}

// Save writes doc under its version.
func (a *Archive) Save(ctx context.Context, doc *jokes.Document) error {
	key := Key(a.topic, doc.Version)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if a.localPath != "" {
		filePath := filepath.Join(a.localPath, filepath.FromSlash(key))
		if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
			return fmt.Errorf("create archive directory: %w", err)
		}
		if err := os.WriteFile(filePath, data, 0o600); err != nil {
			return fmt.Errorf("write to local archive: %w", err)
		}
		a.logger.Debug("Snapshot archived locally", "path", filePath, "version", doc.Version)
		return nil
	}

	err = retry.Do(
		func() error {
			w := a.client.Bucket(a.bucket).Object(key).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					a.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		a.retryOptions(ctx, "save", key)...,
	)
	if err != nil {
		return fmt.Errorf("archive after retries: %w", err)
	}

	a.logger.Debug("Snapshot archived", "bucket", a.bucket, "key", key, "version", doc.Version)
	return nil
}

// Load reads the snapshot archived for version.
func (a *Archive) Load(ctx context.Context, version int64) (*jokes.Document, error) {
	key := Key(a.topic, version)

	var data []byte
	if a.localPath != "" {
		var err error
		data, err = os.ReadFile(filepath.Join(a.localPath, filepath.FromSlash(key)))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("read from local archive: %w", err)
		}
	} else {
		missing := false
		err := retry.Do(
			func() error {
				r, openErr := a.client.Bucket(a.bucket).Object(key).NewReader(ctx)
				if openErr != nil {
					if errors.Is(openErr, storage.ErrObjectNotExist) {
						missing = true
						return retry.Unrecoverable(openErr)
					}
					return fmt.Errorf("open storage reader: %w", openErr)
				}
				defer func() {
					if closeErr := r.Close(); closeErr != nil {
						a.logger.Warn("Failed to close storage reader", "error", closeErr)
					}
				}()

				var readErr error
				data, readErr = io.ReadAll(r)
				if readErr != nil {
					return fmt.Errorf("read from storage: %w", readErr)
				}
				return nil
			},
			a.retryOptions(ctx, "load", key)...,
		)
		if missing {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("load after retries: %w", err)
		}
	}

	var doc jokes.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if doc.Items == nil {
		doc.Items = []jokes.Item{}
	}
	return &doc, nil
}

// List returns every archived snapshot, newest version first.
func (a *Archive) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry

	if a.localPath != "" {
		dir := filepath.Join(a.localPath, a.topic)
		files, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return []Entry{}, nil
			}
			return nil, fmt.Errorf("read local archive directory: %w", err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			v, ok := parseKey(f.Name())
			if !ok {
				continue
			}
			info, err := f.Info()
			if err != nil {
				a.logger.Warn("Failed to stat archived snapshot", "file", f.Name(), "error", err)
				continue
			}
			entries = append(entries, Entry{
				Version: v,
				Key:     Key(a.topic, v),
				Size:    info.Size(),
				Updated: info.ModTime().UTC(),
			})
		}
	} else {
		it := a.client.Bucket(a.bucket).Objects(ctx, &storage.Query{
			Prefix: a.topic + "/v",
		})
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("iterate storage: %w", err)
			}
			v, ok := parseKey(attrs.Name)
			if !ok {
				continue
			}
			entries = append(entries, Entry{
				Version: v,
				Key:     attrs.Name,
				Size:    attrs.Size,
				Updated: attrs.Updated,
			})
		}
	}

	slices.SortFunc(entries, func(x, y Entry) int {
		return cmp.Compare(y.Version, x.Version)
	})
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
