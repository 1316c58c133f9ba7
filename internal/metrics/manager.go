// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics maintains the Prometheus registry: runtime collectors,
// the stream pipeline's stage instruments and the anime database collector.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Manager struct {
	registry *prometheus.Registry
	pipeline *PipelineMetrics
}

// NewManager builds an isolated registry with Go and process collectors,
// the pipeline instruments and, when animeDB is non-nil, the anime corpus
// collector.
func NewManager(animeDB AnimeStats) *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pipeline := NewPipelineMetrics()
	registry.MustRegister(pipeline.stageDuration, pipeline.stageStreams)

	if animeDB != nil {
		registry.MustRegister(NewAnimeDBCollector(animeDB))
	}

	log.Info().Msg("Metrics manager initialized")

	return &Manager{
		registry: registry,
		pipeline: pipeline,
	}
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// Pipeline returns the stage observer the stream pipeline reports into.
func (m *Manager) Pipeline() *PipelineMetrics {
	return m.pipeline
}

// Handler exposes the registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
