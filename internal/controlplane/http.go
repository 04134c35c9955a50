// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package controlplane

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/Donghh0221/afk/internal/afklog"
)

// HTTPControlPlane is the browser-facing control plane: channels have no
// external chat surface of their own, so create/close is local bookkeeping
// and every notification (send/edit message, permission prompts) is
// delivered to subscribers purely by the session read loop's publishes
// onto the Event Bus, which the HTTP router's SSE endpoint fans out.
// This satisfies both session.Manager's narrow ControlPlane interface and
// the fuller Port interface in port.go.
type HTTPControlPlane struct {
	publicBaseURL string
	log           *afklog.Logger

	mu       sync.RWMutex
	channels map[string]bool
}

// NewHTTPControlPlane builds a control plane whose get_channel_link
// returns URLs rooted at publicBaseURL (e.g. "http://localhost:8080").
func NewHTTPControlPlane(publicBaseURL string) *HTTPControlPlane {
	return &HTTPControlPlane{
		publicBaseURL: publicBaseURL,
		log:           afklog.New("controlplane-http"),
		channels:      make(map[string]bool),
	}
}

func newChannelID() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return "web:" + hex.EncodeToString(buf)
}

// CreateChannel implements session.ControlPlane.
func (c *HTTPControlPlane) CreateChannel(ctx context.Context, sessionName string) (string, error) {
	id := newChannelID()
	c.mu.Lock()
	c.channels[id] = true
	c.mu.Unlock()
	return id, nil
}

// CloseChannel implements session.ControlPlane.
func (c *HTTPControlPlane) CloseChannel(ctx context.Context, channelID string) error {
	c.mu.Lock()
	delete(c.channels, channelID)
	c.mu.Unlock()
	return nil
}

// SendMessage is a no-op: the browser observes
// agent output through the SSE event stream, not a pushed message id.
func (c *HTTPControlPlane) SendMessage(ctx context.Context, channelID, text string, silent bool) (string, error) {
	return "", nil
}

// EditMessage is unsupported over HTTP/SSE; the event stream is append-only.
func (c *HTTPControlPlane) EditMessage(ctx context.Context, channelID, messageID, text string) error {
	return nil
}

// SendPermissionRequest is a no-op: the AgentPermissionRequest event
// already carries everything a browser needs to render a prompt.
func (c *HTTPControlPlane) SendPermissionRequest(ctx context.Context, channelID, toolName, toolArgs, requestID string) error {
	return nil
}

// CreateSessionChannel implements Port in terms of CreateChannel.
func (c *HTTPControlPlane) CreateSessionChannel(ctx context.Context, name string) (string, error) {
	return c.CreateChannel(ctx, name)
}

// GetChannelLink returns the dashboard URL for channelID.
func (c *HTTPControlPlane) GetChannelLink(channelID string) (string, bool) {
	if c.publicBaseURL == "" {
		return "", false
	}
	return fmt.Sprintf("%s/sessions/%s", c.publicBaseURL, channelID), true
}

// CloseSessionChannel implements Port in terms of CloseChannel.
func (c *HTTPControlPlane) CloseSessionChannel(ctx context.Context, channelID string) error {
	return c.CloseChannel(ctx, channelID)
}

// SendPhoto is unsupported over HTTP/SSE; produced files reach the
// browser only as FileReady events on the SSE stream.
func (c *HTTPControlPlane) SendPhoto(ctx context.Context, channelID, photoPath, caption string) (string, error) {
	return "", fmt.Errorf("send_photo is not supported by the HTTP control plane")
}

// SendDocument is unsupported over HTTP/SSE, for the same reason as SendPhoto.
func (c *HTTPControlPlane) SendDocument(ctx context.Context, channelID, filePath, caption string) (string, error) {
	return "", fmt.Errorf("send_document is not supported by the HTTP control plane")
}

// DownloadVoice is unsupported: the HTTP control plane has no voice
// input, and the router exposes no voice upload route.
func (c *HTTPControlPlane) DownloadVoice(ctx context.Context, fileID string) (string, error) {
	return "", fmt.Errorf("download_voice is not supported by the HTTP control plane")
}

// Start is a no-op; the HTTP server's own listener lifecycle is managed
// by cmd/afkd, not by this control plane.
func (c *HTTPControlPlane) Start(ctx context.Context) error { return nil }

// Stop is a no-op for the same reason as Start.
func (c *HTTPControlPlane) Stop(ctx context.Context) error { return nil }
