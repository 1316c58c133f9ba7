// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tributary/tributary/internal/addons"
	"github.com/tributary/tributary/internal/animedb"
	"github.com/tributary/tributary/internal/api"
	"github.com/tributary/tributary/internal/buildinfo"
	"github.com/tributary/tributary/internal/cache"
	"github.com/tributary/tributary/internal/config"
	"github.com/tributary/tributary/internal/domain"
	"github.com/tributary/tributary/internal/logger"
	"github.com/tributary/tributary/internal/metadata"
	"github.com/tributary/tributary/internal/metrics"
	"github.com/tributary/tributary/internal/seadex"
	"github.com/tributary/tributary/internal/streams"
)

const shutdownTimeout = 10 * time.Second

func RunServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Tributary server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file or directory")

	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.New(configPath)
	if err != nil {
		return err
	}

	logger.Init(cfg.Config)
	cfg.OnReload(func(newCfg *domain.Config) {
		logger.SetLogLevel(newCfg.LogLevel)
	})

	log.Info().
		Str("version", buildinfo.Version).
		Str("commit", buildinfo.Commit).
		Int("addons", len(cfg.Config.Addons)).
		Msg("Starting Tributary")
	log.Debug().Interface("config", cfg.Config.Redacted()).Msg("Effective configuration")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := api.StartPprofServer(cfg); err != nil {
		return fmt.Errorf("start pprof server: %w", err)
	}

	store, err := buildCacheStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	animeDB, err := buildAnimeDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer animeDB.Shutdown()

	metaClient := metadata.NewClient(metadata.Config{
		APIKey: cfg.Config.TMDBAPIKey,
		Store:  store,
	})
	seadexClient := seadex.NewClient(seadex.Config{Store: store})
	addonClient := addons.NewClient(addons.Config{
		Addons:  addonsFromConfig(cfg.Config.Addons),
		Timeout: cfg.Config.AddonTimeout,
	})

	var (
		observer      streams.StageObserver
		metricsServer *metrics.MetricsServer
	)
	if cfg.Config.MetricsEnabled {
		manager := metrics.NewManager(animeDB)
		observer = manager.Pipeline()
		metricsServer = metrics.NewMetricsServer(
			manager,
			cfg.Config.MetricsHost,
			cfg.Config.MetricsPort,
			cfg.Config.MetricsBasicAuthUsers,
		)
	}

	pipeline := streams.NewPipeline(addonClient, streams.ContextConfig{
		Metadata: metaClient,
		SeaDex:   seadexClient,
		AnimeDB:  animeDB,
	}, observer)

	server := api.NewServer(&api.Dependencies{
		Config:   cfg,
		Pipeline: pipeline,
		AnimeDB:  animeDB,
		Cache:    store,
		Version:  buildinfo.Version,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Metrics server shutdown failed")
			}
		}
		return nil
	})

	return g.Wait()
}

// buildCacheStore opens the configured cache backend.
func buildCacheStore(cfg *config.AppConfig) (cache.Store, error) {
	c := cfg.Config.Cache
	switch c.Backend {
	case "sqlite":
		store, err := cache.NewSQLite(cfg.GetCachePath(), c.TTL)
		if err != nil {
			return nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		return store, nil
	default:
		return cache.NewMemory(c.TTL), nil
	}
}

// buildAnimeDB constructs the identity database. When disabled in config it
// stays empty: lookups resolve nothing and streams pass through unannotated.
// Corpus downloads run in the background so startup never blocks on them.
func buildAnimeDB(ctx context.Context, cfg *config.AppConfig) (*animedb.Database, error) {
	db, err := animedb.New(animedb.Config{
		DataDir:          cfg.GetDataDir(),
		DetailLevel:      animedb.ParseDetailLevel(cfg.Config.AnimeDB.DetailLevel),
		EpisodeTieBreak:  cfg.Config.AnimeDB.EpisodeTieBreak,
		RefreshInterval:  cfg.Config.AnimeDB.RefreshInterval,
		RefreshIntervals: cfg.Config.AnimeDB.RefreshIntervals,
	})
	if err != nil {
		return nil, fmt.Errorf("build anime database: %w", err)
	}

	if cfg.Config.AnimeDB.Enabled {
		go func() {
			if err := db.Init(ctx); err != nil {
				log.Error().Err(err).Msg("Anime database initialization failed")
			}
		}()
	}

	return db, nil
}

func addonsFromConfig(configured []domain.AddonConfig) []addons.Addon {
	out := make([]addons.Addon, 0, len(configured))
	for _, a := range configured {
		out = append(out, addons.Addon{
			Name:    a.Name,
			URL:     a.URL,
			Timeout: a.Timeout,
		})
	}
	return out
}
