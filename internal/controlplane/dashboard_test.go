// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package controlplane

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDashboardEmpty(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "no active sessions")
}

func TestDashboardListsSessionEscaped(t *testing.T) {
	router, f := newTestRouter(t)

	dir := t.TempDir()
	ok, _ := f.AddProject("<proj>", dir)
	require.True(t, ok)
	_, err := f.NewSession(context.Background(), "<proj>", false, "", "fake", "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "&lt;proj&gt;")
	require.NotContains(t, body, "<proj>")
}
