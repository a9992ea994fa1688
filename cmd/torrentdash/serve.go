// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/torrentdash/internal/api"
	"github.com/autobrr/torrentdash/internal/api/handlers"
	"github.com/autobrr/torrentdash/internal/buildinfo"
	"github.com/autobrr/torrentdash/internal/filter"
)

func RunServeCommand(configDir *string) *cobra.Command {
	var eventLogSize int

	command := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard over HTTP",
		Long: `Poll the backend and expose the mirrored torrents, the focused torrent's
peers and the change feed as a JSON API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApplication(*configDir)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			events := handlers.NewEventLog(eventLogSize)

			c, err := app.newClient(ctx, events)
			if err != nil {
				return err
			}
			app.applyReloads(c)

			httpServer := api.NewServer(&api.Dependencies{
				Config:    app.Config(),
				Version:   buildinfo.Version,
				Dashboard: c,
				Events:    events,
				Filters:   filter.NewCompiler(0),
			})

			g, gctx := errgroup.WithContext(ctx)

			serverReady := make(chan struct{}, 1)
			g.Go(func() error {
				if err := httpServer.ListenAndServeReady(serverReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("got error during graceful http shutdown")
					return err
				}
				return nil
			})

			g.Go(func() error {
				select {
				case <-serverReady:
				case <-gctx.Done():
					return nil
				}
				return c.Start(gctx)
			})
			app.startMetrics(gctx, g)

			return g.Wait()
		},
	}

	command.Flags().IntVar(&eventLogSize, "event-log-size", handlers.DefaultEventLogSize, "number of change events kept for /api/events")

	return command
}
