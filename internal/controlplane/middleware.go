// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package controlplane

import (
	"net/http"
	"time"

	"github.com/Donghh0221/afk/internal/afklog"
)

var middlewareLog = afklog.New("http")

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs every request's method, path, status and
// duration, grounded on internal/api/middleware/logging.go.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		middlewareLog.Printf("%s %s %d %s", r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}

// recoveryMiddleware turns a panicking handler into a 500 response
// instead of taking down the listener, grounded on
// internal/api/middleware/recovery.go.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				middlewareLog.Errorf("panic handling %s %s: %v", r.Method, r.URL.Path, rec)
				writeError(w, http.StatusInternalServerError, errInternalError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
