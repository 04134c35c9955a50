// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package capability implements the optional plug-ins the core attaches
// to via narrow interfaces: workspace template scaffolding, commit-message
// derivation, speech-to-text transcription, and dev-server tunneling.
// Capabilities never call back into the session manager; they are called
// and, where they hold a cleanup hook, invoked on session teardown.
package capability

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Donghh0221/afk/internal/afkerr"
	"github.com/Donghh0221/afk/internal/afklog"
)

// TemplateMetadata is a scaffold's template.yaml manifest.
type TemplateMetadata struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	DefaultAgent string   `yaml:"default_agent,omitempty"`
	Capabilities []string `yaml:"capabilities,omitempty"`
}

const templateManifestFile = "template.yaml"

// TemplateStore copies a named scaffold directory into a fresh worktree,
// satisfying session.TemplateScaffolder. Templates live as subdirectories
// of a root dir; each carries a template.yaml manifest that is itself
// excluded from the copy.
type TemplateStore struct {
	root string
	log  *afklog.Logger
}

// NewTemplateStore returns a store rooted at root (e.g. ~/.afk/templates).
func NewTemplateStore(root string) *TemplateStore {
	return &TemplateStore{root: root, log: afklog.New("template")}
}

// Metadata loads a template's manifest.
func (s *TemplateStore) Metadata(name string) (TemplateMetadata, error) {
	dir := filepath.Join(s.root, name)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return TemplateMetadata{}, afkerr.ErrTemplateUnknown
	}

	data, err := os.ReadFile(filepath.Join(dir, templateManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return TemplateMetadata{Name: name}, nil
		}
		return TemplateMetadata{}, fmt.Errorf("read template manifest: %w", err)
	}

	var meta TemplateMetadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return TemplateMetadata{}, fmt.Errorf("parse template manifest: %w", err)
	}
	if meta.Name == "" {
		meta.Name = name
	}
	return meta, nil
}

// Names lists every registered template.
func (s *TemplateStore) Names() []string {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

// Scaffold copies every entry of template except its manifest into
// worktreePath, preserving the scaffold's directory structure.
func (s *TemplateStore) Scaffold(ctx context.Context, template, worktreePath string) error {
	srcDir := filepath.Join(s.root, template)
	info, err := os.Stat(srcDir)
	if err != nil || !info.IsDir() {
		return afkerr.ErrTemplateUnknown
	}

	s.log.Printf("scaffolding template %q into %s", template, worktreePath)

	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if rel == templateManifestFile {
			return nil
		}

		dst := filepath.Join(worktreePath, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		return copyFile(path, dst)
	})
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	info, err := os.Stat(src)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode()
	}
	if err := os.WriteFile(dst, data, mode); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}
