// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics instruments the stream pipeline stages. It satisfies the
// pipeline's stage observer.
type PipelineMetrics struct {
	stageDuration *prometheus.HistogramVec
	stageStreams  *prometheus.CounterVec
}

func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tributary_pipeline_stage_duration_seconds",
				Help: "Time spent in each pipeline stage per request",
				// Annotation stages finish in microseconds, a fetch can run
				// into an upstream timeout.
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
			[]string{"stage"},
		),
		stageStreams: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tributary_pipeline_stage_streams_total",
				Help: "Streams entering and leaving each pipeline stage",
			},
			[]string{"stage", "direction"},
		),
	}
}

func (p *PipelineMetrics) ObserveStage(stage string, d time.Duration, in, out int) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	p.stageStreams.WithLabelValues(stage, "in").Add(float64(in))
	p.stageStreams.WithLabelValues(stage, "out").Add(float64(out))
}
