// Package main implements a REST service that stores jokes as a single
// document on an ntfy topic and fetches new ones from public joke APIs.
package main

import (
	"context"
	"dadjokes-api/archive"
	"dadjokes-api/cache"
	"dadjokes-api/config"
	"dadjokes-api/ntfy"
	"dadjokes-api/poll"
	"dadjokes-api/provider"
	"dadjokes-api/server"
	"dadjokes-api/store"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.FromEnv(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	cfg.Instance = instanceName(cfg.Instance, os.Hostname)

	topic := ntfy.New(&ntfy.Config{
		BaseURL:  cfg.Ntfy.Base,
		Topic:    cfg.Ntfy.Topic,
		Token:    cfg.Ntfy.Auth,
		Attempts: cfg.Ntfy.Attempts,
		Logger:   logger,
	})

	storeCfg := &store.Config{
		Topic:      topic,
		Logger:     logger,
		Since:      cfg.Ntfy.Since,
		MaxRecords: cfg.MaxRecords,
		Instance:   cfg.Instance,
		Optimistic: cfg.Ntfy.Optimistic,
	}

	if cfg.Cache.RedisAddr != "" {
		c, err := cache.Dial(ctx, cfg.Cache.RedisAddr, cfg.CacheTTL(), logger)
		if err != nil {
			logger.Warn("Redis unavailable, continuing without cache", "addr", cfg.Cache.RedisAddr, "error", err)
		} else {
			defer func() {
				if err := c.Close(); err != nil {
					logger.Warn("Failed to close redis client", "error", err)
				}
			}()
			storeCfg.Cache = c
			logger.Info("Read-through cache enabled", "addr", cfg.Cache.RedisAddr, "ttl", cfg.CacheTTL().String())
		}
	}

	var snapshots server.Archive
	switch {
	case cfg.Archive.LocalPath != "":
		if err := os.MkdirAll(cfg.Archive.LocalPath, 0o750); err != nil {
			return fmt.Errorf("create local archive directory: %w", err)
		}
		a := archive.New(nil, "", cfg.Archive.LocalPath, cfg.Ntfy.Topic, logger)
		storeCfg.Archive = a
		snapshots = a
		logger.Info("Snapshot archive enabled", "storage_path", cfg.Archive.LocalPath)
	case cfg.Archive.Bucket != "":
		client, err := newStorageClient(ctx, cfg.Archive.CredentialsJSON)
		if err != nil {
			return fmt.Errorf("initialize storage client: %w", err)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}()
		a := archive.New(client, cfg.Archive.Bucket, "", cfg.Ntfy.Topic, logger)
		storeCfg.Archive = a
		snapshots = a
		logger.Info("Snapshot archive enabled", "bucket", cfg.Archive.Bucket)
	}

	st := store.New(storeCfg)

	h := provider.NewHTTP(cfg.Jokes.UserAgent, cfg.JokesTimeout())
	chain := provider.NewChain(cfg.Jokes.Provider, logger,
		provider.NewICanHaz(h, ""),
		provider.NewJokeAPI(h, ""),
		provider.NewOfficial(h, ""),
		provider.NewScrape(h, cfg.Jokes.ScrapeURL, cfg.Jokes.ScrapeSelector),
	)
	monitor := poll.New(chain, st, logger)

	srv := server.New(&server.Config{
		Store:   st,
		Fetcher: chain,
		Poller:  monitor,
		Archive: snapshots,
		Logger:  logger,
		Topic:   cfg.Ntfy.Topic,
		APIKeys: cfg.APIKeys,
	}).HTTPServer(cfg.Port)

	go monitor.Run(ctx, cfg.AutofetchInterval())

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			"port", cfg.Port,
			"topic", cfg.Ntfy.Topic,
			"instance", cfg.Instance,
			"max_records", cfg.MaxRecords,
			"providers", chain.Order())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newStorageClient prefers explicit credentials and falls back to
// Application Default Credentials on GCP.
func newStorageClient(ctx context.Context, credsJSON string) (*storage.Client, error) {
	if credsJSON != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	}
	if onGCP(ctx) {
		return storage.NewClient(ctx)
	}
	return nil, errors.New("GOOGLE_CREDENTIALS_JSON required when not running on GCP")
}

// onGCP checks if we're running in a GCP environment by querying the metadata server.
func onGCP(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://metadata.google.internal/computeMetadata/v1/project/project-id", http.NoBody)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck // metadata probe
	}()

	return resp.StatusCode == http.StatusOK
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// instanceName returns the configured identity, else the hostname.
func instanceName(configured string, hostname func() (string, error)) string {
	if configured != "" {
		return configured
	}
	if h, err := hostname(); err == nil && h != "" {
		return h
	}
	return "unknown"
}
