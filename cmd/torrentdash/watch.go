// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/autobrr/torrentdash/internal/buildinfo"
	"github.com/autobrr/torrentdash/internal/domain"
	"github.com/autobrr/torrentdash/internal/filter"
	"github.com/autobrr/torrentdash/internal/terminal"
)

func RunWatchCommand(configDir *string) *cobra.Command {
	var (
		focus      string
		filterExpr string
	)

	command := &cobra.Command{
		Use:   "watch",
		Short: "Show a live dashboard in the terminal",
		Long: `Poll the backend and redraw the torrent table whenever something changes.

Use --focus to follow the peers of one torrent and --filter to narrow the table
with an expression such as: State == "downloading" && Ratio < 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApplication(*configDir)
			if err != nil {
				return err
			}

			if filterExpr == "" {
				filterExpr = app.Config().Filter
			}

			compiler := filter.NewCompiler(0)
			f, err := compiler.Compile(filterExpr)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			dashboard := terminal.New(nil, os.Stdout, terminal.Options{
				Version: buildinfo.Version,
				Clear:   term.IsTerminal(int(os.Stdout.Fd())),
			})
			dashboard.SetFilter(f)

			c, err := app.newClient(ctx, dashboard)
			if err != nil {
				return err
			}
			dashboard.SetSource(c)

			app.applyReloads(c, func(next *domain.Config) {
				if next.Filter == f.Source() || cmd.Flags().Changed("filter") {
					return
				}
				reloaded, err := compiler.Compile(next.Filter)
				if err != nil {
					log.Error().Err(err).Str("expr", next.Filter).Msg("Ignoring invalid filter from reloaded config")
					return
				}
				f = reloaded
				dashboard.SetFilter(reloaded)
			})

			if focus != "" {
				reqCtx, reqCancel := app.requestContext(ctx)
				err := c.RefreshTorrents(reqCtx)
				reqCancel()
				if err != nil {
					return fmt.Errorf("initial torrent list: %w", err)
				}
				if err := c.Focus(focus); err != nil {
					return err
				}
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return c.Start(gctx) })
			g.Go(func() error { return dashboard.Run(gctx) })
			app.startMetrics(gctx, g)

			return g.Wait()
		},
	}

	command.Flags().StringVar(&focus, "focus", "", "info hash of the torrent whose peers are shown")
	command.Flags().StringVar(&filterExpr, "filter", "", "filter expression applied to the torrent table")

	return command
}
