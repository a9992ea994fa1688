// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/torrentdash/internal/backend"
	"github.com/autobrr/torrentdash/internal/buildinfo"
	"github.com/autobrr/torrentdash/internal/client"
	"github.com/autobrr/torrentdash/internal/config"
	"github.com/autobrr/torrentdash/internal/domain"
	"github.com/autobrr/torrentdash/internal/metrics"
	"github.com/autobrr/torrentdash/internal/qbittorrent"
)

const shutdownTimeout = 30 * time.Second

// Application holds what every subcommand needs: configuration, the backend
// and the metrics registry.
type Application struct {
	cfg     *config.AppConfig
	metrics *metrics.Metrics
}

func NewApplication(configDir string) (*Application, error) {
	cfg, err := config.New(configDir, buildinfo.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}
	cfg.ApplyLogConfig()

	return &Application{
		cfg:     cfg,
		metrics: metrics.New(),
	}, nil
}

func (app *Application) Config() *domain.Config {
	return app.cfg.Config
}

func (app *Application) newFetcher(ctx context.Context) (backend.Fetcher, error) {
	c := app.cfg.Config

	switch c.Backend {
	case domain.BackendQBittorrent:
		qb, err := backend.NewQBittorrentClient(ctx, qbittorrent.Config{
			Host:          c.BackendURL,
			Username:      c.BackendUsername,
			Password:      c.BackendPassword,
			TLSSkipVerify: c.TLSSkipVerify,
			Timeout:       c.RequestTimeout,
		})
		if err != nil {
			return nil, err
		}
		return qb, nil
	case domain.BackendREST:
		return backend.NewRESTClient(backend.RESTConfig{
			BaseURL:       c.BackendURL,
			Username:      c.BackendUsername,
			Password:      c.BackendPassword,
			Timeout:       c.RequestTimeout,
			TLSSkipVerify: c.TLSSkipVerify,
			Retries:       c.RequestRetries,
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}

func (app *Application) newClient(ctx context.Context, view client.View) (*client.Client, error) {
	fetcher, err := app.newFetcher(ctx)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("backend", app.cfg.Config.Backend).
		Str("url", app.cfg.Config.BackendURL).
		Msg("Connected to backend")

	return client.New(fetcher, view,
		client.WithIntervals(app.cfg.Config.TorrentPollInterval, app.cfg.Config.PeerPollInterval),
		client.WithMetrics(app.metrics),
	), nil
}

// applyReloads pushes live-reloadable settings into c.
func (app *Application) applyReloads(c *client.Client, extra ...func(*domain.Config)) {
	app.cfg.RegisterReloadListener(func(next *domain.Config) {
		c.SetIntervals(next.TorrentPollInterval, next.PeerPollInterval)
		log.Info().
			Dur("torrentInterval", next.TorrentPollInterval).
			Dur("peerInterval", next.PeerPollInterval).
			Msg("Applied reloaded poll intervals")

		for _, fn := range extra {
			fn(next)
		}
	})
}

// startMetrics runs the metrics listener in g when enabled.
func (app *Application) startMetrics(ctx context.Context, g *errgroup.Group) {
	if !app.cfg.Config.MetricsEnabled {
		return
	}

	server := metrics.NewMetricsServer(app.metrics, app.cfg.Config.MetricsHost, app.cfg.Config.MetricsPort)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}

// signalContext is cancelled on the first termination signal.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			log.Info().Msgf("got signal %v, shutting down", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// requestContext bounds one-shot commands by the configured request timeout.
func (app *Application) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := app.cfg.Config.RequestTimeout
	if timeout <= 0 {
		timeout = shutdownTimeout
	}
	return context.WithTimeout(parent, timeout*time.Duration(app.cfg.Config.RequestRetries+1))
}
