// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/tributary/tributary/internal/ids"
	"github.com/tributary/tributary/internal/streams"
)

// StreamProcessor runs one stream request through the pipeline.
// *streams.Pipeline satisfies it.
type StreamProcessor interface {
	Process(ctx context.Context, mediaType ids.MediaType, id string, userData *streams.UserData) (*streams.Result, error)
}

type StreamsHandler struct {
	processor StreamProcessor
}

func NewStreamsHandler(processor StreamProcessor) *StreamsHandler {
	return &StreamsHandler{processor: processor}
}

// Routes registers the JSON API surface.
func (h *StreamsHandler) Routes(r chi.Router) {
	r.Get("/{mediaType}/{id}", h.HandleStreams)
	r.Post("/{mediaType}/{id}", h.HandleStreams)
}

// HandleStremioStream serves /stream/{mediaType}/{id}.json for Stremio
// clients. The surface degrades instead of failing: whatever goes wrong,
// the client gets a well-formed stream list it can display.
func (h *StreamsHandler) HandleStremioStream(w http.ResponseWriter, r *http.Request) {
	mediaType := ids.MediaType(chi.URLParam(r, "mediaType"))
	id := strings.TrimSuffix(chi.URLParam(r, "id"), ".json")

	switch mediaType {
	case ids.MediaTypeMovie, ids.MediaTypeSeries, ids.MediaTypeAnime:
	default:
		log.Debug().Str("mediaType", string(mediaType)).Msg("Ignoring request for undeclared media type")
		RespondJSON(w, http.StatusOK, StremioStreamsResponse{Streams: []StremioStream{}})
		return
	}

	userData, err := DecodeUserData(chi.URLParam(r, "userData"))
	if err != nil {
		log.Warn().Err(err).Msg("Rejecting malformed user config")
		RespondJSON(w, http.StatusOK, ToStremioResponse(&streams.Result{
			Message: "Invalid configuration. Reinstall the addon with a fresh configuration URL.",
		}))
		return
	}

	result, err := h.processor.Process(r.Context(), mediaType, id, userData)
	if err != nil {
		log.Warn().Err(err).Str("id", id).Msg("Stream request aborted")
		RespondJSON(w, http.StatusOK, StremioStreamsResponse{Streams: []StremioStream{}})
		return
	}

	RespondJSON(w, http.StatusOK, ToStremioResponse(result))
}

// HandleStreams serves the JSON API: the full pipeline result with parsed
// release records. GET runs with default settings; POST accepts a user
// configuration body.
func (h *StreamsHandler) HandleStreams(w http.ResponseWriter, r *http.Request) {
	mediaType, ok := ParseMediaType(w, r)
	if !ok {
		return
	}
	id, ok := ParseStringParam(w, r, "id", "stream id")
	if !ok {
		return
	}

	var userData *streams.UserData
	if r.Method == http.MethodPost {
		var body streams.UserData
		if !DecodeJSONOptional(w, r, &body) {
			return
		}
		userData = &body
	}

	result, err := h.processor.Process(r.Context(), mediaType, id, userData)
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Stream request failed")
		RespondError(w, http.StatusInternalServerError, "Failed to process stream request")
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// DecodeUserData unpacks the base64 JSON configuration blob users carry in
// their install URL. An empty blob means default settings. Both URL-safe
// and standard alphabets are accepted; shared URLs get mangled enough.
func DecodeUserData(raw string) (*streams.UserData, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var (
		data []byte
		err  error
	)
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding, base64.StdEncoding} {
		if data, err = enc.DecodeString(raw); err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	var userData streams.UserData
	if err := json.Unmarshal(data, &userData); err != nil {
		return nil, err
	}
	return &userData, nil
}
