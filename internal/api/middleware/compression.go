// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"compress/flate"
	"compress/gzip"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// CompressionAlgorithm identifies a negotiated response encoding.
type CompressionAlgorithm int

const (
	AlgorithmNone CompressionAlgorithm = iota
	AlgorithmGzip
	AlgorithmBrotli
	AlgorithmZstd
	AlgorithmDeflate
)

// Size bands for picking the effective compression level. Small responses
// barely benefit from heavy compression; large ones amortize it.
const (
	smallResponse = 10 * 1024
	largeResponse = 100 * 1024
)

// compressionWriter defers the encoding choice until enough bytes arrived to
// clear the minimum size, then streams through the negotiated encoder.
type compressionWriter struct {
	http.ResponseWriter
	algorithm   CompressionAlgorithm
	writer      io.Writer
	size        int
	minSize     int
	baseLevel   int
	wroteHeader bool
	initialized bool
}

func (w *compressionWriter) Write(data []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}

	w.size += len(data)

	if !w.initialized && w.size >= w.minSize {
		w.initialized = true
		if w.compressibleContentType() {
			if err := w.initCompression(); err != nil {
				w.writer = w.ResponseWriter
			}
		} else {
			w.writer = w.ResponseWriter
		}
	}

	if w.writer == nil {
		w.writer = w.ResponseWriter
	}

	return w.writer.Write(data)
}

func (w *compressionWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	// Content-Length would be wrong once the body is recoded.
	if w.size == 0 {
		w.Header().Del("Content-Length")
	}

	w.ResponseWriter.WriteHeader(code)
}

func (w *compressionWriter) compressibleContentType() bool {
	contentType := w.Header().Get("Content-Type")
	return strings.Contains(contentType, "text/") ||
		strings.Contains(contentType, "application/json") ||
		strings.Contains(contentType, "application/xml") ||
		strings.Contains(contentType, "application/javascript")
}

func (w *compressionWriter) effectiveLevel() int {
	switch {
	case w.size < smallResponse:
		return max(w.baseLevel-2, 1)
	case w.size < largeResponse:
		return w.baseLevel
	default:
		return min(w.baseLevel+2, 9)
	}
}

func (w *compressionWriter) initCompression() error {
	level := w.effectiveLevel()

	switch w.algorithm {
	case AlgorithmZstd:
		encoder, err := zstd.NewWriter(w.ResponseWriter, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return err
		}
		w.Header().Set("Content-Encoding", "zstd")
		w.writer = encoder

	case AlgorithmBrotli:
		w.Header().Set("Content-Encoding", "br")
		w.writer = brotli.NewWriterLevel(w.ResponseWriter, level)

	case AlgorithmGzip:
		gz, err := gzip.NewWriterLevel(w.ResponseWriter, level)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Encoding", "gzip")
		w.writer = gz

	case AlgorithmDeflate:
		fl, err := flate.NewWriter(w.ResponseWriter, level)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Encoding", "deflate")
		w.writer = fl
	}

	return nil
}

func (w *compressionWriter) Flush() {
	if flusher, ok := w.writer.(http.Flusher); ok {
		flusher.Flush()
	}
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *compressionWriter) Close() error {
	if closer, ok := w.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// negotiateAlgorithm picks the strongest encoding the client accepts, in the
// order zstd > brotli > gzip > deflate.
func negotiateAlgorithm(acceptEncoding string, preferZstd, preferBrotli bool) CompressionAlgorithm {
	quality := parseAcceptEncoding(acceptEncoding)

	if preferZstd && quality["zstd"] > 0 {
		return AlgorithmZstd
	}
	if preferBrotli && quality["br"] > 0 {
		return AlgorithmBrotli
	}
	if quality["gzip"] > 0 {
		return AlgorithmGzip
	}
	if quality["deflate"] > 0 {
		return AlgorithmDeflate
	}
	return AlgorithmNone
}

// parseAcceptEncoding maps each offered encoding to its quality value. A
// wildcard offers every encoding we know at q=1.
func parseAcceptEncoding(acceptEncoding string) map[string]float64 {
	quality := make(map[string]float64)
	if acceptEncoding == "" {
		return quality
	}

	for _, part := range strings.Split(acceptEncoding, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		encoding := part
		qvalue := 1.0
		if enc, q, found := strings.Cut(part, ";q="); found {
			encoding = strings.TrimSpace(enc)
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(q), 64); err == nil && parsed >= 0 && parsed <= 1 {
				qvalue = parsed
			}
		}

		if encoding == "*" {
			for _, known := range []string{"zstd", "br", "gzip", "deflate"} {
				if _, seen := quality[known]; !seen {
					quality[known] = qvalue
				}
			}
			continue
		}
		quality[encoding] = qvalue
	}

	return quality
}

// SelectiveCompress compresses responses that grow past minSize, using the
// best encoding the client accepts. level is clamped to [1, 9] and adjusted
// per response size.
func SelectiveCompress(minSize, level int, preferZstd, preferBrotli bool) func(http.Handler) http.Handler {
	level = min(max(level, 1), 9)
	if minSize < 0 {
		minSize = 1024
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			algorithm := negotiateAlgorithm(r.Header.Get("Accept-Encoding"), preferZstd, preferBrotli)
			if algorithm == AlgorithmNone {
				next.ServeHTTP(w, r)
				return
			}

			wrapped := &compressionWriter{
				ResponseWriter: w,
				algorithm:      algorithm,
				minSize:        minSize,
				baseLevel:      level,
			}
			w.Header().Set("Vary", "Accept-Encoding")

			next.ServeHTTP(wrapped, r)

			if wrapped.writer != nil {
				wrapped.Close()
			}
		})
	}
}
