// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package controlplane

import (
	"encoding/json"
	"net/http"
)

// response is the standard API response envelope, grounded on
// internal/api/handlers/response.go's Response/ErrorInfo wrapper.
type response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *errorInfo  `json:"error,omitempty"`
}

type errorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes, matching the teacher's handlers/response.go set.
const (
	errBadRequest    = "BAD_REQUEST"
	errNotFound      = "NOT_FOUND"
	errConflict      = "CONFLICT"
	errInternalError = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response{Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response{Error: &errorInfo{Code: code, Message: message}})
}
