package main

import (
	"dadjokes-api/archive"
	"dadjokes-api/pkg/jokes"
	"dadjokes-api/server"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultServer  = "http://localhost:8080"
	defaultTimeout = 30 * time.Second
)

// newRoot builds the command tree. getenv supplies defaults for the
// persistent flags so tests can run without touching the process env.
func newRoot(getenv func(string) string) *cobra.Command {
	root := &cobra.Command{
		Use:           "jokesctl",
		Short:         "Manage jokes stored behind the dad jokes API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	base := getenv("JOKES_API_URL")
	if base == "" {
		base = defaultServer
	}
	root.PersistentFlags().String("server", base, "API base URL (env JOKES_API_URL)")
	root.PersistentFlags().String("api-key", getenv("JOKES_API_KEY"), "Bearer key for mutating routes (env JOKES_API_KEY)")
	root.PersistentFlags().Duration("timeout", defaultTimeout, "Request timeout")
	root.PersistentFlags().Bool("json", false, "Print raw JSON instead of a table")

	root.AddCommand(
		newListCommand(),
		newGetCommand(),
		newAddCommand(),
		newUpdateCommand(),
		newDeleteCommand(),
		newFetchCommand(),
		newResetCommand(),
		newSnapshotsCommand(),
	)
	return root
}

func clientFor(cmd *cobra.Command) (*apiClient, error) {
	base, err := cmd.Flags().GetString("server")
	if err != nil {
		return nil, err
	}
	key, err := cmd.Flags().GetString("api-key")
	if err != nil {
		return nil, err
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}
	return newAPIClient(base, key, timeout), nil
}

func wantJSON(cmd *cobra.Command) bool {
	v, err := cmd.Flags().GetBool("json")
	return err == nil && v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printItems renders one or more items as a table, or JSON with --json.
func printItems(cmd *cobra.Command, v any, items []jokes.Item) error {
	if wantJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), v)
	}
	return writeItems(cmd.OutOrStdout(), items)
}

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored jokes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			from, err := cmd.Flags().GetString("from")
			if err != nil {
				return err
			}
			to, err := cmd.Flags().GetString("to")
			if err != nil {
				return err
			}

			q := url.Values{}
			if from != "" {
				q.Set("from", from)
			}
			if to != "" {
				q.Set("to", to)
			}
			path := "/jokes"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			var items []jokes.Item
			if err := c.do(cmd.Context(), http.MethodGet, path, nil, &items); err != nil {
				return err
			}
			return printItems(cmd, items, items)
		},
	}
	cmd.Flags().String("from", "", "Only jokes created at or after this RFC 3339 time")
	cmd.Flags().String("to", "", "Only jokes created at or before this RFC 3339 time")
	return cmd
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show a single joke",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			var item jokes.Item
			if err := c.do(cmd.Context(), http.MethodGet, "/jokes/"+url.PathEscape(args[0]), nil, &item); err != nil {
				return err
			}
			return printItems(cmd, item, []jokes.Item{item})
		},
	}
}

func newAddCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store a custom joke",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			title, err := cmd.Flags().GetString("title")
			if err != nil {
				return err
			}
			body, err := cmd.Flags().GetString("body")
			if err != nil {
				return err
			}
			if title == "" || body == "" {
				return errors.New("--title and --body are required")
			}

			var item jokes.Item
			req := server.CreateJokeRequest{Title: title, Body: body}
			if err := c.do(cmd.Context(), http.MethodPost, "/jokes", req, &item); err != nil {
				return err
			}
			return printItems(cmd, item, []jokes.Item{item})
		},
	}
	cmd.Flags().String("title", "", "Joke title")
	cmd.Flags().String("body", "", "Joke text")
	return cmd
}

func newUpdateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Edit a joke or replace it with a freshly fetched one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			var req server.UpdateJokeRequest
			if cmd.Flags().Changed("title") {
				v, err := cmd.Flags().GetString("title")
				if err != nil {
					return err
				}
				req.Title = server.Some(v)
			}
			if cmd.Flags().Changed("body") {
				v, err := cmd.Flags().GetString("body")
				if err != nil {
					return err
				}
				req.Body = server.Some(v)
			}
			if req.Refresh, err = cmd.Flags().GetBool("refresh"); err != nil {
				return err
			}
			if !req.Title.Present && !req.Body.Present && !req.Refresh {
				return errors.New("nothing to update: pass --title, --body or --refresh")
			}

			var item jokes.Item
			if err := c.do(cmd.Context(), http.MethodPut, "/jokes/"+url.PathEscape(args[0]), req, &item); err != nil {
				return err
			}
			return printItems(cmd, item, []jokes.Item{item})
		},
	}
	cmd.Flags().String("title", "", "New title")
	cmd.Flags().String("body", "", "New text")
	cmd.Flags().Bool("refresh", false, "Replace title, body and source with a fetched joke")
	return cmd
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Remove a joke",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			var resp server.DeleteResponse
			if err := c.do(cmd.Context(), http.MethodDelete, "/jokes/"+url.PathEscape(args[0]), nil, &resp); err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", resp.Status, resp.ID)
			return err
		},
	}
}

func newFetchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a joke from the upstream providers and store it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			var item jokes.Item
			if err := c.do(cmd.Context(), http.MethodGet, "/", nil, &item); err != nil {
				return err
			}
			return printItems(cmd, item, []jokes.Item{item})
		},
	}
}

func newResetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Publish an empty document, discarding every joke",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			yes, err := cmd.Flags().GetBool("yes")
			if err != nil {
				return err
			}
			if !yes {
				return errors.New("reset discards all jokes; pass --yes to confirm")
			}
			c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			var resp server.ResetResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/reset", nil, &resp); err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%d items)\n", resp.Status, resp.Items)
			return err
		},
	}
	cmd.Flags().Bool("yes", false, "Confirm the reset")
	return cmd
}

func newSnapshotsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots [VERSION]",
		Short: "List archived document versions, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				var doc jokes.Document
				if err := c.do(cmd.Context(), http.MethodGet, "/snapshots/"+url.PathEscape(args[0]), nil, &doc); err != nil {
					return err
				}
				if wantJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), doc)
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "version %d updated %s\n", doc.Version, doc.UpdatedAt); err != nil {
					return err
				}
				return writeItems(cmd.OutOrStdout(), doc.Items)
			}

			var entries []archive.Entry
			if err := c.do(cmd.Context(), http.MethodGet, "/snapshots", nil, &entries); err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			return writeEntries(cmd.OutOrStdout(), entries)
		},
	}
}
