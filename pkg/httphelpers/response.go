// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package httphelpers holds shared plumbing for the outbound HTTP clients
// (addons, TMDB, SeaDex, corpus downloads).
package httphelpers

import (
	"io"
	"net/http"
)

// DrainAndClose consumes the remaining response body and closes it so the
// underlying connection can be reused. Abandoning a half-read body forces
// the transport to tear the connection down, which hurts on the addon
// fan-out where the same hosts are hit on every request.
func DrainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
