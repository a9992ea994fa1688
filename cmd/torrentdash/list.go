// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/torrentdash/internal/client"
	"github.com/autobrr/torrentdash/internal/filter"
	"github.com/autobrr/torrentdash/internal/models"
	"github.com/autobrr/torrentdash/internal/terminal"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

type listEntry struct {
	Hash          string  `json:"hash" yaml:"hash"`
	Name          string  `json:"name" yaml:"name"`
	State         string  `json:"state" yaml:"state"`
	Size          int64   `json:"size" yaml:"size"`
	Completed     float64 `json:"completed" yaml:"completed"`
	DownloadSpeed float64 `json:"downloadSpeed" yaml:"downloadSpeed"`
	UploadSpeed   float64 `json:"uploadSpeed" yaml:"uploadSpeed"`
	Uploaded      int64   `json:"uploaded" yaml:"uploaded"`
	Ratio         float64 `json:"ratio" yaml:"ratio"`
}

func toListEntries(torrents []models.Torrent) []listEntry {
	entries := make([]listEntry, 0, len(torrents))
	for _, t := range torrents {
		entries = append(entries, listEntry{
			Hash:          t.InfoHash,
			Name:          t.Name,
			State:         t.State,
			Size:          t.Size,
			Completed:     t.Completed,
			DownloadSpeed: t.DownloadSpeed,
			UploadSpeed:   t.UploadSpeed,
			Uploaded:      t.Uploaded,
			Ratio:         t.Ratio,
		})
	}
	return entries
}

func writeTorrents(w io.Writer, format string, torrents []models.Torrent) error {
	switch strings.ToLower(format) {
	case formatTable, "":
		_, err := fmt.Fprintln(w, terminal.RenderTorrents(torrents, ""))
		return err
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(toListEntries(torrents))
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(toListEntries(torrents)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func RunListCommand(configDir *string) *cobra.Command {
	var (
		format     string
		filterExpr string
		search     string
	)

	command := &cobra.Command{
		Use:   "list",
		Short: "Print the backend's torrents once",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApplication(*configDir)
			if err != nil {
				return err
			}

			f, err := filter.NewCompiler(0).Compile(filterExpr)
			if err != nil {
				return err
			}

			ctx, cancel := app.requestContext(cmd.Context())
			defer cancel()

			c, err := app.newClient(ctx, client.NopView{})
			if err != nil {
				return err
			}
			if err := c.RefreshTorrents(ctx); err != nil {
				return err
			}

			torrents := filter.Search(search, c.Torrents())
			torrents, err = f.Apply(torrents)
			if err != nil {
				return err
			}

			return writeTorrents(cmd.OutOrStdout(), format, torrents)
		},
	}

	command.Flags().StringVarP(&format, "format", "o", formatTable, "output format: table, json or yaml")
	command.Flags().StringVar(&filterExpr, "filter", "", "filter expression")
	command.Flags().StringVar(&search, "search", "", "match hash prefix or name")

	return command
}

func RunAddCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add <file.torrent>...",
		Short: "Submit .torrent files to the backend",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApplication(*configDir)
			if err != nil {
				return err
			}

			ctx, cancel := app.requestContext(cmd.Context())
			defer cancel()

			c, err := app.newClient(ctx, client.NopView{})
			if err != nil {
				return err
			}

			var errs []error
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if err := c.CreateTorrent(ctx, data); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", path, err))
					continue
				}
				cmd.Printf("Submitted %s\n", path)
			}
			return errors.Join(errs...)
		},
	}
}

func RunRemoveCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <hash>...",
		Aliases: []string{"rm"},
		Short:   "Delete torrents from the backend",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApplication(*configDir)
			if err != nil {
				return err
			}

			ctx, cancel := app.requestContext(cmd.Context())
			defer cancel()

			c, err := app.newClient(ctx, client.NopView{})
			if err != nil {
				return err
			}
			// DestroyTorrent only accepts hashes the client already knows.
			if err := c.RefreshTorrents(ctx); err != nil {
				return err
			}

			var errs []error
			for _, hash := range args {
				if err := c.DestroyTorrent(ctx, hash); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", hash, err))
					continue
				}
				cmd.Printf("Removed %s\n", hash)
			}
			return errors.Join(errs...)
		},
	}
}
