// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
)

// Manifest is the Stremio addon descriptor. Catalogs stays an empty list:
// the service aggregates streams, it does not browse content.
type Manifest struct {
	ID            string                `json:"id"`
	Version       string                `json:"version"`
	Name          string                `json:"name"`
	Description   string                `json:"description"`
	Types         []string              `json:"types"`
	Resources     []string              `json:"resources"`
	Catalogs      []string              `json:"catalogs"`
	IDPrefixes    []string              `json:"idPrefixes,omitempty"`
	BehaviorHints ManifestBehaviorHints `json:"behaviorHints"`
}

type ManifestBehaviorHints struct {
	Configurable          bool `json:"configurable"`
	ConfigurationRequired bool `json:"configurationRequired"`
}

type ManifestHandler struct {
	manifest Manifest
}

func NewManifestHandler(version string) *ManifestHandler {
	return &ManifestHandler{
		manifest: Manifest{
			ID:          "com.tributary.streams",
			Version:     version,
			Name:        "Tributary",
			Description: "Aggregates your upstream addons into one ranked, deduplicated stream list.",
			Types:       []string{"movie", "series", "anime"},
			Resources:   []string{"stream"},
			Catalogs:    []string{},
			IDPrefixes:  []string{"tt", "kitsu"},
			BehaviorHints: ManifestBehaviorHints{
				Configurable: true,
			},
		},
	}
}

func (h *ManifestHandler) HandleManifest(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.manifest)
}
