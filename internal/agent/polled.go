// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Donghh0221/afk/internal/afklog"
)

// RemoteClient is the narrow surface a polled-remote backend needs:
// submit a turn and get back a request id, then poll that id until it
// reaches a terminal state. Concrete implementations wrap a specific
// vendor's HTTP API; this package only owns the polling loop and event
// synthesis.
type RemoteClient interface {
	// Submit starts a background turn and returns an opaque request id.
	Submit(ctx context.Context, sessionID, text string) (requestID string, err error)
	// Poll returns the current status of a previously submitted request.
	Poll(ctx context.Context, requestID string) (RemoteStatus, error)
}

// RemoteStatus is one poll result.
type RemoteStatus struct {
	Terminal    bool
	SessionID   string
	AssistantText string
	FilePaths   []string
	CostUSD     float64
	Err         error
}

// PolledRemoteConfig parameterizes a PolledRemoteAdapter.
type PolledRemoteConfig struct {
	// PollInterval is how often Poll is called while a turn is pending.
	PollInterval time.Duration
	// CostRates maps a model or tier name to a $/unit rate, used when a
	// backend reports usage instead of cost directly. Unused by the
	// polling loop itself; callers that synthesize cost from usage units
	// read it off this config.
	CostRates map[string]float64
}

// PolledRemoteAdapter submits a turn to a remote backend and polls until
// it reaches a terminal state, emitting synthetic "assistant" progress
// events plus a final "assistant" and "result" event, matching the shape
// streaming-stdio consumers already expect.
type PolledRemoteAdapter struct {
	client RemoteClient
	cfg    PolledRemoteConfig
	log    *afklog.Logger

	mu        sync.Mutex
	alive     bool
	sessionID string
	// runCtx/runCancel bound the adapter's own lifetime (Start..Stop),
	// independent of whatever per-call ctx SendMessage is given. A
	// request-scoped ctx (e.g. an HTTP handler's r.Context()) is canceled
	// as soon as that call returns, which would otherwise kill
	// pollUntilDone before it ever observes a terminal status.
	runCtx    context.Context
	runCancel context.CancelFunc

	out chan Event
}

// NewPolledRemoteAdapter creates an adapter around client.
func NewPolledRemoteAdapter(client RemoteClient, cfg PolledRemoteConfig) *PolledRemoteAdapter {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	return &PolledRemoteAdapter{
		client: client,
		cfg:    cfg,
		log:    afklog.New("agent:polled"),
		out:    make(chan Event, 256),
	}
}

func (a *PolledRemoteAdapter) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

func (a *PolledRemoteAdapter) IsAlive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.alive
}

func (a *PolledRemoteAdapter) ReadResponses() <-chan Event { return a.out }

func (a *PolledRemoteAdapter) Start(ctx context.Context, workingDir, sessionID, stderrLogPath string) error {
	runCtx, runCancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.alive = true
	a.sessionID = sessionID
	a.runCtx = runCtx
	a.runCancel = runCancel
	a.mu.Unlock()
	return nil
}

func (a *PolledRemoteAdapter) SendMessage(ctx context.Context, text string) error {
	a.mu.Lock()
	if !a.alive {
		a.mu.Unlock()
		return fmt.Errorf("agent is not started")
	}
	sessionID := a.sessionID
	runCtx := a.runCtx
	a.mu.Unlock()

	requestID, err := a.client.Submit(ctx, sessionID, text)
	if err != nil {
		return fmt.Errorf("submit turn: %w", err)
	}

	// pollUntilDone runs on the adapter's own long-lived context, not the
	// caller's ctx: it must keep polling long after SendMessage returns.
	go a.pollUntilDone(runCtx, requestID)
	return nil
}

func (a *PolledRemoteAdapter) pollUntilDone(ctx context.Context, requestID string) {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := a.client.Poll(ctx, requestID)
		if err != nil {
			a.log.Warnf("poll failed for request %s: %v", requestID, err)
			continue
		}

		if status.SessionID != "" {
			a.mu.Lock()
			a.sessionID = status.SessionID
			a.mu.Unlock()
		}

		if !status.Terminal {
			a.emit(Event{"type": "assistant", "partial": true})
			continue
		}

		if status.Err != nil {
			a.emit(Event{"type": "result", "is_error": true, "errors": []string{status.Err.Error()}})
			return
		}

		a.emit(Event{
			"type": "assistant",
			"message": map[string]interface{}{
				"content": []map[string]interface{}{
					{"type": "text", "text": status.AssistantText},
				},
			},
		})
		for _, path := range status.FilePaths {
			a.emit(Event{"type": "file_output", "path": path})
		}
		a.emit(Event{"type": "result", "total_cost_usd": status.CostUSD})
		return
	}
}

func (a *PolledRemoteAdapter) emit(ev Event) {
	select {
	case a.out <- ev:
	default:
		a.log.Warnf("dropped agent event: output queue full")
	}
}

// SendPermissionResponse has no effect: polled remote backends run each
// turn to completion server-side without interactive permission prompts.
func (a *PolledRemoteAdapter) SendPermissionResponse(ctx context.Context, requestID string, allowed bool) error {
	return nil
}

func (a *PolledRemoteAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.alive {
		a.mu.Unlock()
		return nil
	}
	a.alive = false
	runCancel := a.runCancel
	a.mu.Unlock()
	if runCancel != nil {
		runCancel()
	}
	close(a.out)
	return nil
}
