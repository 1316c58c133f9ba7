// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package api assembles the HTTP surface: the Stremio addon endpoints, the
// JSON API under /api/v1 and the health endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/tributary/tributary/internal/animedb"
	"github.com/tributary/tributary/internal/api/handlers"
	apimw "github.com/tributary/tributary/internal/api/middleware"
	"github.com/tributary/tributary/internal/cache"
	"github.com/tributary/tributary/internal/config"
	"github.com/tributary/tributary/internal/streams"
)

// Dependencies carries everything the HTTP layer serves from.
type Dependencies struct {
	Config   *config.AppConfig
	Pipeline *streams.Pipeline
	AnimeDB  *animedb.Database
	Cache    cache.Store
	Version  string
}

type Server struct {
	deps       *Dependencies
	httpServer *http.Server
}

func NewServer(deps *Dependencies) *Server {
	return &Server{deps: deps}
}

// Handler builds the router. Stremio endpoints get the transparent
// content-encoding adapter; the JSON API uses the selective compressor so
// small bodies skip the encoder entirely.
func (s *Server) Handler() (http.Handler, error) {
	compress, err := httpcompression.DefaultAdapter(httpcompression.MinSize(1024))
	if err != nil {
		return nil, fmt.Errorf("build compression adapter: %w", err)
	}

	r := chi.NewRouter()

	r.Use(apimw.RequestID)
	r.Use(apimw.RealIP)
	r.Use(apimw.Logger(log.Logger))

	// Stremio's web client calls addons cross-origin from app.strem.io,
	// so the whole surface stays permissive.
	c := cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	manifestHandler := handlers.NewManifestHandler(s.deps.Version)
	streamsHandler := handlers.NewStreamsHandler(s.deps.Pipeline)
	animeHandler := handlers.NewAnimeHandler(s.deps.AnimeDB)
	healthHandler := handlers.NewHealthHandler(s.readyFunc())
	versionHandler := handlers.NewVersionHandler()

	registerRoutes := func(r chi.Router) {
		r.Route("/healthz", healthHandler.Routes)

		r.Group(func(r chi.Router) {
			r.Use(compress)
			r.Get("/manifest.json", manifestHandler.HandleManifest)
			r.Get("/stream/{mediaType}/{id}", streamsHandler.HandleStremioStream)
			r.Route("/u/{userData}", func(r chi.Router) {
				r.Get("/manifest.json", manifestHandler.HandleManifest)
				r.Get("/stream/{mediaType}/{id}", streamsHandler.HandleStremioStream)
			})
		})

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(apimw.SelectiveCompress(1024, 5, true, true))
			r.Route("/streams", streamsHandler.Routes)
			r.Route("/anime", animeHandler.Routes)
			r.Get("/version", versionHandler.HandleVersion)
		})
	}

	if base := s.deps.Config.Config.NormalizedBaseURL(); base == "/" {
		registerRoutes(r)
	} else {
		r.Route(strings.TrimSuffix(base, "/"), registerRoutes)
	}

	return r, nil
}

// ListenAndServe binds the configured address and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	cfg := s.deps.Config.Config
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       time.Minute,
	}

	log.Info().Str("addr", addr).Str("baseUrl", cfg.NormalizedBaseURL()).Msg("Starting HTTP server")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// readyFunc gates readiness on the cache store alone. AIDB corpus downloads
// run in the background and never hold up the server.
func (s *Server) readyFunc() handlers.ReadyFunc {
	store := s.deps.Cache
	if store == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return store.WaitUntilReady(ctx)
	}
}
