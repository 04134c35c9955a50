// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStreamingAdapterDeliversEventsAndCapturesSessionID(t *testing.T) {
	cfg := StreamingConfig{
		Command: "sh",
		BaseArgs: []string{"-c", `
			read _
			echo '{"type":"system","session_id":"abc-123"}'
			echo '{"type":"result"}'
		`},
		ResumeFlag: "--resume",
	}
	a := NewStreamingAdapter(cfg, nil)

	require.NoError(t, a.Start(context.Background(), t.TempDir(), "", ""))
	require.True(t, a.IsAlive())

	require.NoError(t, a.SendMessage(context.Background(), "hello"))

	var gotSystem, gotResult bool
	timeout := time.After(3 * time.Second)
	for !gotSystem || !gotResult {
		select {
		case ev, ok := <-a.ReadResponses():
			if !ok {
				t.Fatal("channel closed before both events observed")
			}
			switch ev["type"] {
			case "system":
				gotSystem = true
			case "result":
				gotResult = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for agent events")
		}
	}

	require.Equal(t, "abc-123", a.SessionID())
}

func TestStreamingAdapterUsePTYDeliversEvents(t *testing.T) {
	cfg := StreamingConfig{
		Command: "sh",
		BaseArgs: []string{"-c", `
			read _
			echo '{"type":"system","session_id":"pty-session"}'
			echo '{"type":"result"}'
		`},
		ResumeFlag: "--resume",
		UsePTY:     true,
	}
	a := NewStreamingAdapter(cfg, nil)

	require.NoError(t, a.Start(context.Background(), t.TempDir(), "", t.TempDir()+"/stderr.log"))
	require.True(t, a.IsAlive())

	require.NoError(t, a.SendMessage(context.Background(), "hello"))

	var gotResult bool
	timeout := time.After(3 * time.Second)
	for !gotResult {
		select {
		case ev, ok := <-a.ReadResponses():
			if !ok {
				t.Fatal("channel closed before result event observed")
			}
			if ev["type"] == "result" {
				gotResult = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for agent events over pty")
		}
	}

	require.NoError(t, a.Stop(context.Background()))
}

// TestStreamingAdapterSendPermissionResponseWireFormat pipes the child's
// stdin back out over stdout so the test can assert the exact bytes
// SendPermissionResponse writes match SPEC_FULL.md §6's literal
// permission_response wire format.
func TestStreamingAdapterSendPermissionResponseWireFormat(t *testing.T) {
	cfg := StreamingConfig{
		Command:    "sh",
		BaseArgs:   []string{"-c", `read line; echo "$line"`},
		ResumeFlag: "--resume",
	}
	a := NewStreamingAdapter(cfg, nil)

	require.NoError(t, a.Start(context.Background(), t.TempDir(), "", ""))
	require.NoError(t, a.SendPermissionResponse(context.Background(), "R1", true))

	select {
	case ev := <-a.ReadResponses():
		require.Equal(t, "permission_response", ev["type"])
		require.Equal(t, "R1", ev["id"])
		require.Equal(t, true, ev["allowed"])
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for echoed permission response")
	}
}

func TestStreamingAdapterStopIsIdempotent(t *testing.T) {
	cfg := StreamingConfig{Command: "sh", BaseArgs: []string{"-c", "sleep 30"}}
	a := NewStreamingAdapter(cfg, nil)

	require.NoError(t, a.Start(context.Background(), t.TempDir(), "", ""))
	require.NoError(t, a.Stop(context.Background()))
	require.NoError(t, a.Stop(context.Background()))
	require.False(t, a.IsAlive())
}
