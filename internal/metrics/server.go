// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// MetricsServer serves the registry on its own listener, separate from the
// main API, optionally behind basic auth.
type MetricsServer struct {
	manager        *Manager
	server         *http.Server
	basicAuthUsers map[string]string
}

// NewMetricsServer builds the standalone metrics listener. basicAuthUsers
// is a comma-separated list of user:password pairs; malformed entries are
// skipped.
func NewMetricsServer(manager *Manager, host string, port int, basicAuthUsers string) *MetricsServer {
	users := parseBasicAuthUsers(basicAuthUsers)

	var handler http.Handler = manager.Handler()
	if len(users) > 0 {
		handler = BasicAuth("metrics", users)(handler)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	return &MetricsServer{
		manager: manager,
		server: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", host, port),
			Handler: mux,
		},
		basicAuthUsers: users,
	}
}

func (s *MetricsServer) ListenAndServe() error {
	log.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	return s.server.ListenAndServe()
}

// Stop closes the listener immediately.
func (s *MetricsServer) Stop() error {
	return s.server.Close()
}

// Shutdown drains in-flight scrapes before closing.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func parseBasicAuthUsers(raw string) map[string]string {
	users := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		user, pass, ok := strings.Cut(entry, ":")
		if !ok || user == "" || pass == "" {
			log.Warn().Str("entry", entry).Msg("Skipping malformed basic auth entry")
			continue
		}
		users[strings.TrimSpace(user)] = strings.TrimSpace(pass)
	}
	return users
}

// BasicAuth guards a handler with constant-time credential checks.
func BasicAuth(realm string, users map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if ok {
				if expected, known := users[user]; known {
					if subtle.ConstantTimeCompare([]byte(pass), []byte(expected)) == 1 {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm=%q`, realm))
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		})
	}
}
