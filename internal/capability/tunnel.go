// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/tailscale/tscert"

	"github.com/Donghh0221/afk/internal/afklog"
)

// TunnelConfig controls the shared public listener every session's
// tunnel route is published on.
type TunnelConfig struct {
	Listen       string // e.g. ":8443"
	PublicHost   string // e.g. "afk.example.ts.net"
	TLSTailscale bool
}

// TunnelInfo is returned by get_status/get_tunnel_info.
type TunnelInfo struct {
	URL    string
	Active bool
}

// Tunnel exposes a session's local dev server on a public HTTPS path,
// grounded on internal/proxy's single-listener, path-routed reverse
// proxy, generalized from static config-file routes to routes added and
// removed per session at runtime. cleanup(channel_id) tears down the
// tunnel for that session if one was started.
type Tunnel struct {
	cfg    TunnelConfig
	log    *afklog.Logger
	server *http.Server

	mu     sync.RWMutex
	routes map[string]*tunnelRoute // keyed by channel id
}

type tunnelRoute struct {
	pattern *regexp.Regexp
	proxy   *httputil.ReverseProxy
	url     string
}

// NewTunnel builds (but does not start) a shared tunnel listener.
func NewTunnel(cfg TunnelConfig) *Tunnel {
	t := &Tunnel{
		cfg:    cfg,
		log:    afklog.New("tunnel"),
		routes: make(map[string]*tunnelRoute),
	}
	t.server = &http.Server{
		Addr:              cfg.Listen,
		Handler:           http.HandlerFunc(t.serveHTTP),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if cfg.TLSTailscale {
		t.server.TLSConfig = &tls.Config{GetCertificate: tscert.GetCertificate}
	}
	return t
}

// Start runs the shared listener in the background.
func (t *Tunnel) Start(ctx context.Context) error {
	go func() {
		var err error
		if t.server.TLSConfig != nil {
			err = t.server.ListenAndServeTLS("", "")
		} else {
			err = t.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			t.log.Errorf("listener %s stopped: %v", t.cfg.Listen, err)
		}
	}()
	return nil
}

// Shutdown stops the shared listener.
func (t *Tunnel) Shutdown(ctx context.Context) error {
	return t.server.Shutdown(ctx)
}

// StartTunnel publishes channelID's local upstream at /<channelID>/ and
// returns the public URL.
func (t *Tunnel) StartTunnel(ctx context.Context, channelID, upstream string) (TunnelInfo, error) {
	if _, err := net.ResolveTCPAddr("tcp", stripScheme(upstream)); err != nil {
		return TunnelInfo{}, fmt.Errorf("invalid upstream %q: %w", upstream, err)
	}

	u, err := url.Parse("http://" + stripScheme(upstream))
	if err != nil {
		return TunnelInfo{}, fmt.Errorf("parse upstream %q: %w", upstream, err)
	}

	pattern, err := regexp.Compile("^/" + regexp.QuoteMeta(channelID) + "(/|$)")
	if err != nil {
		return TunnelInfo{}, fmt.Errorf("compile route for %q: %w", channelID, err)
	}

	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.FlushInterval = -1

	publicURL := fmt.Sprintf("https://%s/%s/", t.cfg.PublicHost, channelID)

	t.mu.Lock()
	t.routes[channelID] = &tunnelRoute{pattern: pattern, proxy: proxy, url: publicURL}
	t.mu.Unlock()

	t.log.Printf("tunnel started for %s -> %s (%s)", channelID, upstream, publicURL)
	return TunnelInfo{URL: publicURL, Active: true}, nil
}

// StopTunnel tears down channelID's route.
func (t *Tunnel) StopTunnel(channelID string) bool {
	t.mu.Lock()
	_, ok := t.routes[channelID]
	delete(t.routes, channelID)
	t.mu.Unlock()
	return ok
}

// GetTunnelInfo reports whether channelID currently has an active route.
func (t *Tunnel) GetTunnelInfo(channelID string) TunnelInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	route, ok := t.routes[channelID]
	if !ok {
		return TunnelInfo{}
	}
	return TunnelInfo{URL: route.url, Active: true}
}

// Cleanup implements the optional cleanup(channel_id) hook the session
// manager calls when a session stops or completes.
func (t *Tunnel) Cleanup(channelID string) error {
	t.StopTunnel(channelID)
	return nil
}

func (t *Tunnel) serveHTTP(w http.ResponseWriter, r *http.Request) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, route := range t.routes {
		if route.pattern.MatchString(r.URL.Path) {
			route.proxy.ServeHTTP(w, r)
			return
		}
	}
	http.NotFound(w, r)
}

func stripScheme(addr string) string {
	if u, err := url.Parse(addr); err == nil && u.Host != "" {
		return u.Host
	}
	return addr
}
