// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config handles HJSON configuration loading for the supervisor,
// grounded on the teacher's internal/config package but carrying this
// repo's own keys instead of Trellis's terminal/workflow/service schema.
package config

// Config is the root configuration structure, loaded from afk.hjson (or
// afk.json) and overridable per-field by environment variables.
type Config struct {
	// BotToken and GroupID configure the chat control plane. Both must be
	// set together for that transport to start; the HTTP control plane
	// works without either.
	BotToken string `json:"bot_token"`
	GroupID  string `json:"group_id"`

	// HTTPPort is the port the HTTP/SSE control plane listens on.
	HTTPPort int `json:"http_port"`

	// OpenAIAPIKey enables the STT capability when set. afkd registers no
	// polled-remote agent adapter, with or without it.
	OpenAIAPIKey string `json:"openai_api_key"`

	// Agent is loaded from the file or AGENT (default "claude"). afkd does
	// not apply it to new sessions: a session created without an agent
	// name fails at the agent registry.
	Agent string `json:"agent"`

	// BasePath, when set, enables project auto-init: InitProject creates
	// <BasePath>/<name> and runs git init if it isn't already a repo.
	BasePath string `json:"base_path"`

	DeepResearchModel        string `json:"deep_research_model"`
	DeepResearchMaxToolCalls int    `json:"deep_research_max_tool_calls"`

	// AutoApproveTools lists tool names the session manager auto-approves
	// without a round trip through the control plane. Empty by default.
	AutoApproveTools []string `json:"auto_approve_tools"`

	// CostRates maps a model or tier name to a $/unit rate, mirroring
	// agent.PolledRemoteConfig.CostRates. afkd does not pass it to any
	// adapter.
	CostRates map[string]float64 `json:"cost_rates"`

	// PublicBaseURL is handed to the HTTP control plane for building
	// session links, and to the tunnel capability as the public host.
	PublicBaseURL string `json:"public_base_url"`

	StateDir        string `json:"state_dir"`
	LogDir          string `json:"log_dir"`
	WorktreeBaseDir string `json:"worktree_base_dir"`
	DefaultBranch   string `json:"default_branch"`
	TemplateDir     string `json:"template_dir"`
}
