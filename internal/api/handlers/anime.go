// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tributary/tributary/internal/animedb"
	"github.com/tributary/tributary/internal/ids"
)

// AnimeResolver is the identity-database surface the API exposes.
// *animedb.Database satisfies it.
type AnimeResolver interface {
	Resolve(p ids.ParsedID) (*animedb.AnimeEntry, ids.ParsedID)
	Stats() []animedb.CorpusStats
}

type AnimeHandler struct {
	resolver AnimeResolver
}

func NewAnimeHandler(resolver AnimeResolver) *AnimeHandler {
	return &AnimeHandler{resolver: resolver}
}

func (h *AnimeHandler) Routes(r chi.Router) {
	r.Get("/stats", h.HandleStats)
	r.Get("/{id}", h.HandleLookup)
}

// AnimeLookupResponse pairs the merged entry with the season-enriched
// canonical identifier.
type AnimeLookupResponse struct {
	ID    string              `json:"id"`
	Entry *animedb.AnimeEntry `json:"entry"`
}

// HandleLookup resolves a catalog identifier like "kitsu:7936" or
// "tt0388629:1:5" against the anime identity database. season and episode
// query parameters override season and episode embedded in the id.
func (h *AnimeHandler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseStringParam(w, r, "id", "anime id")
	if !ok {
		return
	}

	parsed, ok := ids.Parse(id, ids.MediaTypeUnknown)
	if !ok {
		RespondError(w, http.StatusBadRequest, "Unrecognized id format")
		return
	}

	season, ok := ParseOptionalIntQuery(w, r, "season")
	if !ok {
		return
	}
	episode, ok := ParseOptionalIntQuery(w, r, "episode")
	if !ok {
		return
	}
	if season != nil {
		parsed.Season = season
	}
	if episode != nil {
		parsed.Episode = episode
	}

	entry, enriched := h.resolver.Resolve(parsed)
	if entry == nil {
		RespondError(w, http.StatusNotFound, "No anime entry found")
		return
	}

	RespondJSON(w, http.StatusOK, AnimeLookupResponse{
		ID:    enriched.String(),
		Entry: entry,
	})
}

// HandleStats reports per-corpus load state and entry counts.
func (h *AnimeHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.resolver.Stats())
}
