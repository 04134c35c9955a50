// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hjson/hjson-go/v4"
)

// Loader handles configuration file loading.
type Loader struct{}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and parses the configuration from the given path.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse hjson: %w", err)
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config from path (if non-empty and present),
// applies file-level defaults, then applies environment variable
// overrides on top — mirroring the teacher's applyDefaults pass but with
// an environment layer added per SPEC_FULL.md §6.
func (l *Loader) LoadWithDefaults(ctx context.Context, path string) (*Config, error) {
	var cfg *Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := l.Load(ctx, path)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
	}
	if cfg == nil {
		cfg = &Config{}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

// FindConfig searches for a config file in the current directory. It
// looks for afk.hjson first, then afk.json, matching the teacher's
// two-candidate FindConfig lookup.
func (l *Loader) FindConfig() (string, error) {
	candidates := []string{
		"afk.hjson",
		"afk.json",
	}

	for _, name := range candidates {
		path := filepath.Join(".", name)
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("config file not found (looked for afk.hjson, afk.json)")
}

// applyDefaults sets default values for missing config fields.
func applyDefaults(cfg *Config) {
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8080
	}
	if cfg.Agent == "" {
		cfg.Agent = "claude"
	}
	if cfg.DeepResearchModel == "" {
		cfg.DeepResearchModel = "o3-deep-research"
	}
	if cfg.DeepResearchMaxToolCalls == 0 {
		cfg.DeepResearchMaxToolCalls = 30
	}
	if cfg.StateDir == "" {
		cfg.StateDir = ".afk/state"
	}
	if cfg.LogDir == "" {
		cfg.LogDir = ".afk/logs"
	}
	if cfg.WorktreeBaseDir == "" {
		cfg.WorktreeBaseDir = ".afk-worktrees"
	}
	if cfg.DefaultBranch == "" {
		cfg.DefaultBranch = "main"
	}
	if cfg.TemplateDir == "" {
		cfg.TemplateDir = ".afk/templates"
	}
}

// applyEnvOverrides layers environment variables over file-based
// defaults, per SPEC_FULL.md §6: "environment variables as overrides
// applied after file defaults". Each key is independent; an unset
// variable leaves the file/default value untouched.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.BotToken = v
	}
	if v := os.Getenv("GROUP_ID"); v != "" {
		cfg.GroupID = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTPPort = n
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("AGENT"); v != "" {
		cfg.Agent = v
	}
	if v := os.Getenv("BASE_PATH"); v != "" {
		cfg.BasePath = v
	}
	if v := os.Getenv("DEEP_RESEARCH_MODEL"); v != "" {
		cfg.DeepResearchModel = v
	}
	if v := os.Getenv("DEEP_RESEARCH_MAX_TOOL_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DeepResearchMaxToolCalls = n
		}
	}
}
