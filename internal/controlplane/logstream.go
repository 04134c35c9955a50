// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package controlplane

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Donghh0221/afk/internal/afklog"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

var logStreamLog = afklog.New("logstream")

// logsStreamWebsocket implements the companion GET /api/logs/stream
// websocket SPEC_FULL.md §6 adds alongside the SSE event stream,
// grounded on internal/api/handlers/events.go's WebSocket handler:
// same upgrade, ping-ticker, and read-goroutine-for-close-detection
// shape, but polling LogLines for new lines instead of subscribing to
// the event bus.
func logsStreamWebsocket(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		pingTicker := time.NewTicker(54 * time.Second)
		defer pingTicker.Stop()

		pollTicker := time.NewTicker(2 * time.Second)
		defer pollTicker.Stop()

		var lastCount int
		for {
			select {
			case <-done:
				return
			case <-pingTicker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-pollTicker.C:
				if deps.LogLines == nil {
					continue
				}
				lines := deps.LogLines(500)
				if len(lines) <= lastCount {
					continue
				}
				for _, line := range lines[lastCount:] {
					if err := conn.WriteJSON(map[string]string{"line": line}); err != nil {
						logStreamLog.Warnf("write log line: %v", err)
						return
					}
				}
				lastCount = len(lines)
			}
		}
	}
}
