// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package facade implements the Command Facade: the single
// synchronous-looking entry point SPEC_FULL.md §4.6 names, wiring
// together the session manager, the project/message stores, and the
// attached capabilities. Every control plane (HTTP/SSE, CLI, chat)
// drives the supervisor exclusively through this package.
package facade

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Donghh0221/afk/internal/afkerr"
	"github.com/Donghh0221/afk/internal/afklog"
	"github.com/Donghh0221/afk/internal/capability"
	"github.com/Donghh0221/afk/internal/session"
	"github.com/Donghh0221/afk/internal/store"
	"github.com/Donghh0221/afk/internal/workspace"
)

// SessionInfo is the list_sessions DTO.
type SessionInfo struct {
	ChannelID   string    `json:"channel_id"`
	Name        string    `json:"name"`
	ProjectName string    `json:"project_name"`
	AgentName   string    `json:"agent_name"`
	State       string    `json:"state"`
	Verbose     bool      `json:"verbose"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionStatus is the get_status DTO, including tunnel info when a
// Tunnel capability is attached.
type SessionStatus struct {
	SessionInfo
	WorkspacePath string              `json:"workspace_path"`
	Branch        string              `json:"branch"`
	Tunnel        *capability.TunnelInfo `json:"tunnel,omitempty"`
}

// Config configures a Facade.
type Config struct {
	BasePath string // enables init_project when non-empty
}

// Facade is the Command Facade. Optional dependencies (scaffolder, STT,
// Tunnel, commit-message generator) may be nil; the corresponding
// operations then report the capability as unavailable.
type Facade struct {
	cfg       Config
	sessions  *session.Manager
	projects  *store.ProjectStore
	messages  *store.MessageStore
	templates *capability.TemplateStore
	stt       *capability.STT
	tunnel    *capability.Tunnel
	commitMsg *capability.CommitMessageGenerator
	git       workspace.GitExecutor
	log       *afklog.Logger
}

// New builds a Facade. Every capability parameter may be nil.
func New(cfg Config, sessions *session.Manager, projects *store.ProjectStore, messages *store.MessageStore,
	templates *capability.TemplateStore, stt *capability.STT, tunnel *capability.Tunnel,
	commitMsg *capability.CommitMessageGenerator, git workspace.GitExecutor) *Facade {
	return &Facade{
		cfg:       cfg,
		sessions:  sessions,
		projects:  projects,
		messages:  messages,
		templates: templates,
		stt:       stt,
		tunnel:    tunnel,
		commitMsg: commitMsg,
		git:       git,
		log:       afklog.New("facade"),
	}
}

// AddProject registers name -> path. Fails if path is not a directory.
func (f *Facade) AddProject(name, path string) (bool, string) {
	if err := f.projects.Add(name, path); err != nil {
		return false, err.Error()
	}
	return true, fmt.Sprintf("project %q registered at %s", name, path)
}

// ListProjects returns every registered project.
func (f *Facade) ListProjects() map[string]store.ProjectRecord {
	return f.projects.List()
}

// RemoveProject unregisters name.
func (f *Facade) RemoveProject(name string) (bool, string) {
	if !f.projects.Remove(name) {
		return false, fmt.Sprintf("project %q is not registered", name)
	}
	return true, fmt.Sprintf("project %q removed", name)
}

// InitProject creates and/or registers <base>/<name>, initializing a VCS
// repo if the directory is not already one. Requires a configured base
// path (BASE_PATH).
func (f *Facade) InitProject(ctx context.Context, name string) (bool, string) {
	if f.cfg.BasePath == "" {
		return false, "init_project requires a configured base path"
	}

	path := filepath.Join(f.cfg.BasePath, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return false, fmt.Sprintf("create project directory: %v", err)
	}

	if _, err := os.Stat(filepath.Join(path, ".git")); os.IsNotExist(err) {
		if out, err := f.git.Run(ctx, path, "init"); err != nil {
			return false, fmt.Sprintf("git init failed: %v: %s", err, out)
		}
	}

	if err := f.projects.Add(name, path); err != nil {
		return false, err.Error()
	}
	return true, fmt.Sprintf("project %q initialized at %s", name, path)
}

// NewSession implements new_session. ChannelID, agentName, template and
// verbose are all optional; an empty agentName is rejected by the agent
// registry with a startup error.
func (f *Facade) NewSession(ctx context.Context, project string, verbose bool, channelID, agentName, template string) (*session.Session, error) {
	path, ok := f.projects.Path(project)
	if !ok {
		return nil, afkerr.ErrUnregisteredProject
	}

	return f.sessions.CreateSession(ctx, session.CreateParams{
		ProjectName: project,
		ProjectPath: path,
		ChannelID:   channelID,
		AgentName:   agentName,
		Template:    template,
		Verbose:     verbose,
	})
}

// SendMessage implements send_message, persisting the user turn to the
// channel's message log before forwarding it to the agent.
func (f *Facade) SendMessage(ctx context.Context, channelID, text string) bool {
	f.messages.Append(channelID, store.Message{Role: "user", Text: text, Timestamp: time.Now().UTC()})
	return f.sessions.SendMessage(ctx, channelID, text)
}

// SendVoice implements send_voice: transcribes audioPath via the
// attached STT capability, then forwards the transcript as a message.
// Returns false with an empty transcript if no STT capability is
// attached.
func (f *Facade) SendVoice(ctx context.Context, channelID, audioPath string) (bool, string) {
	if f.stt == nil {
		return false, ""
	}
	transcript, err := f.stt.Transcribe(ctx, audioPath)
	if err != nil {
		f.log.Warnf("transcribe voice note for %s: %v", channelID, err)
		return false, ""
	}
	return f.SendMessage(ctx, channelID, transcript), transcript
}

// Messages returns channelID's persisted message log, for the
// GET /api/sessions/{cid}/messages surface.
func (f *Facade) Messages(channelID string) ([]store.Message, error) {
	return f.messages.Load(channelID)
}

// ListSessions implements list_sessions.
func (f *Facade) ListSessions() []SessionInfo {
	records := f.sessions.List()
	out := make([]SessionInfo, 0, len(records))
	for _, rec := range records {
		out = append(out, toSessionInfo(rec))
	}
	return out
}

// StopSession implements stop_session.
func (f *Facade) StopSession(ctx context.Context, channelID string) bool {
	ok := f.sessions.StopSession(ctx, channelID)
	if ok && f.tunnel != nil {
		f.tunnel.StopTunnel(channelID)
	}
	return ok
}

// CompleteSession implements complete_session, using the attached
// commit-message capability if one is configured.
func (f *Facade) CompleteSession(ctx context.Context, channelID string) (bool, string) {
	var messageFn func(string) string
	if f.commitMsg != nil {
		if sess, ok := f.sessions.Get(channelID); ok {
			messageFn = f.commitMsg.MessageFunc(ctx, sess.Record().WorkspacePath)
		}
	}
	merged, detail := f.sessions.CompleteSession(ctx, channelID, messageFn)
	if merged && f.tunnel != nil {
		f.tunnel.StopTunnel(channelID)
	}
	return merged, detail
}

// GetStatus implements get_status.
func (f *Facade) GetStatus(channelID string) (SessionStatus, bool) {
	sess, ok := f.sessions.Get(channelID)
	if !ok {
		return SessionStatus{}, false
	}
	rec := sess.Record()
	status := SessionStatus{
		SessionInfo:   toSessionInfo(rec),
		WorkspacePath: rec.WorkspacePath,
		Branch:        rec.Branch,
	}
	if f.tunnel != nil {
		if info := f.tunnel.GetTunnelInfo(channelID); info.Active {
			status.Tunnel = &info
		}
	}
	return status, true
}

// PermissionResponse implements permission_response.
func (f *Facade) PermissionResponse(ctx context.Context, channelID, requestID string, allowed bool) bool {
	return f.sessions.PermissionResponse(ctx, channelID, requestID, allowed)
}

// StartTunnel implements start_tunnel. upstream is the local dev server
// address (e.g. "localhost:3000") the session's agent is running.
func (f *Facade) StartTunnel(ctx context.Context, channelID, upstream string) (capability.TunnelInfo, error) {
	if f.tunnel == nil {
		return capability.TunnelInfo{}, fmt.Errorf("no tunnel capability attached")
	}
	return f.tunnel.StartTunnel(ctx, channelID, upstream)
}

// StopTunnel implements stop_tunnel.
func (f *Facade) StopTunnel(channelID string) bool {
	if f.tunnel == nil {
		return false
	}
	return f.tunnel.StopTunnel(channelID)
}

// GetTunnelInfo implements get_tunnel_info.
func (f *Facade) GetTunnelInfo(channelID string) capability.TunnelInfo {
	if f.tunnel == nil {
		return capability.TunnelInfo{}
	}
	return f.tunnel.GetTunnelInfo(channelID)
}

// ListTemplates reports every registered scaffold name, or nil if no
// Template capability is attached.
func (f *Facade) ListTemplates() []string {
	if f.templates == nil {
		return nil
	}
	return f.templates.Names()
}

func toSessionInfo(rec session.Record) SessionInfo {
	return SessionInfo{
		ChannelID:   rec.ChannelID,
		Name:        rec.Name,
		ProjectName: rec.ProjectName,
		AgentName:   rec.AgentName,
		State:       string(rec.State),
		Verbose:     rec.Verbose,
		CreatedAt:   rec.CreatedAt,
	}
}
