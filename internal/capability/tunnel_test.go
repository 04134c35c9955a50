// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTunnelStartAndStopRoute(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("upstream response"))
	}))
	defer upstream.Close()

	tun := NewTunnel(TunnelConfig{Listen: ":0", PublicHost: "afk.example.ts.net"})

	info, err := tun.StartTunnel(context.Background(), "ch-1", strings.TrimPrefix(upstream.URL, "http://"))
	require.NoError(t, err)
	require.True(t, info.Active)
	require.Contains(t, info.URL, "ch-1")

	got := tun.GetTunnelInfo("ch-1")
	require.True(t, got.Active)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ch-1/", nil)
	tun.serveHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "upstream response", rec.Body.String())

	require.NoError(t, tun.Cleanup("ch-1"))
	got = tun.GetTunnelInfo("ch-1")
	require.False(t, got.Active)
}

func TestTunnelServeHTTPNotFoundForUnknownRoute(t *testing.T) {
	tun := NewTunnel(TunnelConfig{Listen: ":0", PublicHost: "afk.example.ts.net"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/unknown/", nil)
	tun.serveHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTunnelStopTunnelReportsWhetherRouteExisted(t *testing.T) {
	tun := NewTunnel(TunnelConfig{Listen: ":0", PublicHost: "afk.example.ts.net"})
	require.False(t, tun.StopTunnel("never-started"))
}
