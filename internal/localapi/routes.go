// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package localapi

import (
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

func rateLimitMiddleware(limiter *rate.Limiter, next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	}
}

func bodySizeMiddleware(limitBytes int64, next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = struct {
			io.Reader
			io.Closer
		}{
			Reader: io.LimitReader(r.Body, limitBytes),
			Closer: r.Body,
		}
		next.ServeHTTP(w, r)
	}
}

// routes builds the loopback-only mux for SPEC_FULL.md §4.7.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/devices", s.handleListDevices)
	mux.HandleFunc("DELETE /v1/devices/{id}", s.handleDeleteDevice)
	mux.HandleFunc("POST /v1/devices/{id}/send", s.handleSendCommand)
	mux.HandleFunc("POST /v1/pair", s.handleStartPairing)
	mux.HandleFunc("POST /v1/pair/{id}/code", s.handleSubmitCode)

	return rateLimitMiddleware(rate.NewLimiter(20, 40),
		bodySizeMiddleware(1<<16, /* 64KB, generous for these small JSON bodies */
			mux,
		),
	)
}
