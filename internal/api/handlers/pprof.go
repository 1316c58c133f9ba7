// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"runtime"
	"strconv"

	"github.com/rs/zerolog/log"
)

// PprofController toggles the runtime profiles that are off by default.
// Block and mutex profiling cost enough that they stay disabled until an
// investigation needs them.
type PprofController struct {
	blockRate     int
	mutexFraction int
}

func NewPprofController() *PprofController {
	return &PprofController{}
}

// EnableBlockProfile turns on block profiling, rate from the "rate" query
// parameter (default 1).
func (pc *PprofController) EnableBlockProfile(w http.ResponseWriter, r *http.Request) {
	rate := queryInt(r, "rate", 1)
	runtime.SetBlockProfileRate(rate)
	pc.blockRate = rate

	log.Info().Int("rate", rate).Msg("Block profiling enabled")
	pc.Status(w, r)
}

func (pc *PprofController) DisableBlockProfile(w http.ResponseWriter, r *http.Request) {
	runtime.SetBlockProfileRate(0)
	pc.blockRate = 0

	log.Info().Msg("Block profiling disabled")
	pc.Status(w, r)
}

// EnableMutexProfile turns on mutex profiling, fraction from the "fraction"
// query parameter (default 1).
func (pc *PprofController) EnableMutexProfile(w http.ResponseWriter, r *http.Request) {
	fraction := queryInt(r, "fraction", 1)
	runtime.SetMutexProfileFraction(fraction)
	pc.mutexFraction = fraction

	log.Info().Int("fraction", fraction).Msg("Mutex profiling enabled")
	pc.Status(w, r)
}

func (pc *PprofController) DisableMutexProfile(w http.ResponseWriter, r *http.Request) {
	runtime.SetMutexProfileFraction(0)
	pc.mutexFraction = 0

	log.Info().Msg("Mutex profiling disabled")
	pc.Status(w, r)
}

// Status reports the current profile rates, 0 meaning disabled.
func (pc *PprofController) Status(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]int{
		"blockProfileRate":     pc.blockRate,
		"mutexProfileFraction": pc.mutexFraction,
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
