// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// ReadyFunc reports whether the service can answer requests. It must return
// quickly; corpus downloads and other long warmups never gate readiness.
type ReadyFunc func(ctx context.Context) error

type HealthHandler struct {
	ready ReadyFunc
}

// NewHealthHandler wires the health endpoints. A nil ready function means
// always ready.
func NewHealthHandler(ready ReadyFunc) *HealthHandler {
	return &HealthHandler{ready: ready}
}

func (h *HealthHandler) Routes(r chi.Router) {
	r.Get("/", h.HandleHealth)
	r.Get("/readiness", h.HandleReady)
	r.Get("/liveness", h.HandleLiveness)
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !h.isReady(r.Context()) {
		RespondError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if !h.isReady(r.Context()) {
		RespondError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *HealthHandler) isReady(ctx context.Context) bool {
	if h.ready == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := h.ready(ctx); err != nil {
		log.Warn().Err(err).Msg("Readiness check failed")
		return false
	}
	return true
}
