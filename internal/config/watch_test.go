// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnFileWrite(t *testing.T) {
	path := writeConfigFixture(t, `{
		bot_token: "tok"
		group_id: "grp"
		auto_approve_tools: ["bash"]
	}`)

	loader := NewLoader()
	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(loader, path, func(cfg *Config) {
		reloaded <- cfg
	})
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(path, []byte(`{
		bot_token: "tok"
		group_id: "grp"
		auto_approve_tools: ["bash", "read"]
	}`), 0o644))

	select {
	case cfg := <-reloaded:
		require.ElementsMatch(t, []string{"bash", "read"}, cfg.AutoApproveTools)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestWatcherStopIsIdempotentAndSafe(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "afk.hjson")
	require.NoError(t, os.WriteFile(path, []byte(`{bot_token: "a", group_id: "b"}`), 0o644))

	loader := NewLoader()
	w, err := NewWatcher(loader, path, func(*Config) {})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, w.Stop())
}
