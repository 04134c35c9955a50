// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestFireAndCompleteAdapterSendMessageReturnsBeforeChildFinishes guards
// against SendMessage blocking for an entire turn: the child sleeps well
// past any reasonable call-return budget before printing its result, so a
// synchronous implementation would make this test fail on the elapsed-time
// assertion, while the async drainTurn goroutine still delivers the event
// once the child exits.
func TestFireAndCompleteAdapterSendMessageReturnsBeforeChildFinishes(t *testing.T) {
	cfg := FireAndCompleteConfig{
		Command: "sh",
		BaseArgs: []string{"-c", `
			sleep 0.3
			echo '{"type":"result","total_cost_usd":0.02}'
		`},
		ResumeFlag:     "--resume",
		ResumeLastFlag: "--continue",
	}
	a := NewFireAndCompleteAdapter(cfg)
	require.NoError(t, a.Start(context.Background(), t.TempDir(), "", ""))

	start := time.Now()
	require.NoError(t, a.SendMessage(context.Background(), "hello"))
	elapsed := time.Since(start)
	require.Less(t, elapsed, 250*time.Millisecond,
		"SendMessage must return once the turn's child is launched, not block for its full duration")

	select {
	case ev := <-a.ReadResponses():
		require.Equal(t, "result", ev["type"])
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the turn's output to be drained asynchronously")
	}

	require.NoError(t, a.Stop(context.Background()))
}

// TestFireAndCompleteAdapterDeliversEventsAcrossTwoTurns drives two
// successive SendMessage calls, each spawning its own child, and checks
// both turns' output reaches ReadResponses through the same queue.
func TestFireAndCompleteAdapterDeliversEventsAcrossTwoTurns(t *testing.T) {
	cfg := FireAndCompleteConfig{
		Command: "sh",
		BaseArgs: []string{"-c", `
			echo '{"type":"system","session_id":"fc-1"}'
			echo '{"type":"result"}'
		`},
		ResumeFlag:     "--resume",
		ResumeLastFlag: "--continue",
	}
	a := NewFireAndCompleteAdapter(cfg)
	require.NoError(t, a.Start(context.Background(), t.TempDir(), "", ""))
	require.True(t, a.IsAlive())

	for turn := 0; turn < 2; turn++ {
		require.NoError(t, a.SendMessage(context.Background(), "hello"))

		var gotResult bool
		timeout := time.After(3 * time.Second)
		for !gotResult {
			select {
			case ev := <-a.ReadResponses():
				if ev["type"] == "result" {
					gotResult = true
				}
			case <-timeout:
				t.Fatalf("turn %d: timed out waiting for result", turn)
			}
		}
	}

	require.Equal(t, "fc-1", a.SessionID())
	require.NoError(t, a.Stop(context.Background()))
}

// TestFireAndCompleteAdapterStopWaitsForInFlightTurn exercises the Stop
// path while a turn's drainTurn goroutine is still running: Stop must wait
// for it to finish before closing a.out rather than racing a close against
// a concurrent send on the same channel.
func TestFireAndCompleteAdapterStopWaitsForInFlightTurn(t *testing.T) {
	cfg := FireAndCompleteConfig{
		Command:  "sh",
		BaseArgs: []string{"-c", "sleep 0.2; echo '{\"type\":\"result\"}'"},
	}
	a := NewFireAndCompleteAdapter(cfg)
	require.NoError(t, a.Start(context.Background(), t.TempDir(), "", ""))
	require.NoError(t, a.SendMessage(context.Background(), "hello"))

	require.NoError(t, a.Stop(context.Background()))
	require.False(t, a.IsAlive())

	// Stopping twice must stay safe.
	require.NoError(t, a.Stop(context.Background()))
}
