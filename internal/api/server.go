// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/torrentdash/internal/api/handlers"
	"github.com/autobrr/torrentdash/internal/api/middleware"
	"github.com/autobrr/torrentdash/internal/domain"
	"github.com/autobrr/torrentdash/internal/filter"
)

type Server struct {
	server  *http.Server
	logger  zerolog.Logger
	config  *domain.Config
	version string

	dashboard handlers.Dashboard
	events    *handlers.EventLog
	filters   *filter.Compiler
}

type Dependencies struct {
	Config    *domain.Config
	Version   string
	Dashboard handlers.Dashboard
	Events    *handlers.EventLog
	Filters   *filter.Compiler
}

func NewServer(deps *Dependencies) *Server {
	events := deps.Events
	if events == nil {
		events = handlers.NewEventLog(handlers.DefaultEventLogSize)
	}

	return &Server{
		server: &http.Server{
			ReadHeaderTimeout: time.Second * 15,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       180 * time.Second,
		},
		logger:    log.Logger.With().Str("module", "api").Logger(),
		config:    deps.Config,
		version:   deps.Version,
		dashboard: deps.Dashboard,
		events:    events,
		filters:   deps.Filters,
	}
}

func (s *Server) ListenAndServe() error {
	return s.open(nil)
}

// ListenAndServeReady behaves like ListenAndServe but signals once the listener is active.
func (s *Server) ListenAndServeReady(ready chan<- struct{}) error {
	return s.open(ready)
}

func (s *Server) open(ready chan<- struct{}) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	var lastErr error
	for _, proto := range []string{"tcp", "tcp4", "tcp6"} {
		err := s.tryToServe(addr, proto, ready)
		if err == nil {
			return nil
		}

		if errors.Is(err, http.ErrServerClosed) {
			return err
		}

		s.logger.Error().Err(err).Str("addr", addr).Str("proto", proto).Msg("Failed to start server")
		lastErr = err
	}

	return lastErr
}

func (s *Server) tryToServe(addr, protocol string, ready chan<- struct{}) error {
	listener, err := net.Listen(protocol, addr)
	if err != nil {
		return err
	}

	host := listener.Addr().String()
	if strings.HasPrefix(host, "0.0.0.0:") || strings.HasPrefix(host, "[::]:") {
		host = strings.Replace(host, "0.0.0.0:", "localhost:", 1)
		host = strings.Replace(host, "[::]:", "localhost:", 1)
	}

	s.logger.Info().
		Str("protocol", protocol).
		Str("addr", listener.Addr().String()).
		Str("base_url", s.baseURL()).
		Msgf("Starting API server - Open: http://%s%sapi/torrents", host, s.baseURL())

	s.server.Handler = s.Handler()

	if ready != nil {
		select {
		case ready <- struct{}{}:
		default:
		}
	}

	return s.server.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) baseURL() string {
	baseURL := "/"
	if s.config != nil && s.config.BaseURL != "" {
		baseURL = s.config.BaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL
}

func (s *Server) Handler() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)

	compressor, err := httpcompression.DefaultAdapter(
		httpcompression.MinSize(1024),
		httpcompression.GzipCompressionLevel(2),
		httpcompression.Prefer(httpcompression.PreferServer),
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create HTTP compression adapter")
	} else {
		r.Use(compressor)
	}

	corsMiddleware := cors.New(cors.Options{
		AllowCredentials: true,
		AllowedMethods:   []string{"HEAD", "OPTIONS", "GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowOriginFunc:  func(origin string) bool { return true },
		MaxAge:           300,
	})
	r.Use(corsMiddleware.Handler)

	healthHandler := handlers.NewHealthHandler(s.version)
	torrentsHandler := handlers.NewTorrentsHandler(s.dashboard, s.filters)

	apiRouter := chi.NewRouter()
	apiRouter.Use(middleware.Logger(s.logger))

	apiRouter.Route("/torrents", func(r chi.Router) {
		r.Get("/", torrentsHandler.ListTorrents)
		r.Post("/", torrentsHandler.AddTorrent)
		r.Put("/selected", torrentsHandler.SetAllSelected)
		r.Post("/destroy-selected", torrentsHandler.DestroySelected)

		r.Route("/{hash}", func(r chi.Router) {
			r.Delete("/", torrentsHandler.DeleteTorrent)
			r.Put("/selected", torrentsHandler.SetSelected)
		})
	})

	apiRouter.Route("/focus", func(r chi.Router) {
		r.Get("/", torrentsHandler.GetFocus)
		r.Put("/", torrentsHandler.SetFocus)
		r.Delete("/", torrentsHandler.ClearFocus)
	})

	apiRouter.Get("/peers", torrentsHandler.ListPeers)
	apiRouter.Get("/events", s.events.List)
	apiRouter.Get("/health", healthHandler.HandleHealth)

	r.Get("/health", healthHandler.HandleHealth)
	r.Mount(s.baseURL()+"api", apiRouter)

	return r
}
