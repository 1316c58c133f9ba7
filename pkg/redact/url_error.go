// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package redact scrubs credentials out of values headed for logs. Upstream
// addon and debrid URLs routinely carry api keys in their query strings.
package redact

import (
	"errors"
	"net/url"
	"strings"
)

var sensitiveParams = []string{"apikey", "api_key", "passkey", "token", "password"}

// URLError rewrites any url.Error in err's chain so credential-bearing query
// parameters do not leak into logs. Other errors pass through unchanged.
func URLError(err error) error {
	if err == nil {
		return nil
	}

	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}

	return &url.Error{
		Op:  urlErr.Op,
		URL: URL(urlErr.URL),
		Err: urlErr.Err,
	}
}

// URL redacts sensitive query parameters in raw. Unparseable input is
// returned as-is.
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	query := u.Query()
	changed := false
	for key := range query {
		if isSensitive(key) {
			query.Set(key, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return raw
	}

	u.RawQuery = query.Encode()
	return u.String()
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, param := range sensitiveParams {
		if key == param {
			return true
		}
	}
	return false
}
