// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Donghh0221/afk/internal/afkerr"
)

func writeTemplateFixture(t *testing.T, root, name string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "template.yaml"), []byte(
		"name: "+name+"\ndescription: test fixture\ndefault_agent: fake\n",
	), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.go"), []byte("package main\n"), 0o644))
}

func TestTemplateStoreScaffoldCopiesFilesExcludingManifest(t *testing.T) {
	root := t.TempDir()
	writeTemplateFixture(t, root, "go-service")

	store := NewTemplateStore(root)
	worktree := t.TempDir()
	require.NoError(t, store.Scaffold(context.Background(), "go-service", worktree))

	_, err := os.Stat(filepath.Join(worktree, "template.yaml"))
	require.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(filepath.Join(worktree, "README.md"))
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(data))

	data, err = os.ReadFile(filepath.Join(worktree, "src", "main.go"))
	require.NoError(t, err)
	require.Equal(t, "package main\n", string(data))
}

func TestTemplateStoreScaffoldUnknownTemplate(t *testing.T) {
	store := NewTemplateStore(t.TempDir())
	err := store.Scaffold(context.Background(), "missing", t.TempDir())
	require.ErrorIs(t, err, afkerr.ErrTemplateUnknown)
}

func TestTemplateStoreMetadata(t *testing.T) {
	root := t.TempDir()
	writeTemplateFixture(t, root, "go-service")

	store := NewTemplateStore(root)
	meta, err := store.Metadata("go-service")
	require.NoError(t, err)
	require.Equal(t, "go-service", meta.Name)
	require.Equal(t, "fake", meta.DefaultAgent)
}

func TestTemplateStoreNames(t *testing.T) {
	root := t.TempDir()
	writeTemplateFixture(t, root, "go-service")
	writeTemplateFixture(t, root, "python-service")

	store := NewTemplateStore(root)
	require.ElementsMatch(t, []string{"go-service", "python-service"}, store.Names())
}
