// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session implements the Session Manager: the state machine that
// ties a project's git worktree to an Agent Port instance and a control
// plane channel, with atomic persistence for crash recovery. Grounded on
// internal/claude/manager.go's Manager/Session split, generalized from
// one fixed Claude-CLI backend to the Agent Port abstraction.
package session

import (
	"sync"
	"time"

	"github.com/Donghh0221/afk/internal/agent"
)

// State is a session's position in its lifecycle state machine.
type State string

const (
	StateIdle               State = "idle"
	StateRunning             State = "running"
	StateWaitingPermission  State = "waiting_permission"
	StateStopped            State = "stopped"
	StateSuspended          State = "suspended"
)

// Record is the persisted, JSON-serializable shape of a session. Runtime
// fields (the live agent Port, cancel func, log file paths) live only in
// Session and are rebuilt on recovery.
type Record struct {
	Name           string    `json:"name"`
	ProjectName    string    `json:"project_name"`
	ProjectPath    string    `json:"project_path"`
	WorkspacePath  string    `json:"workspace_path"`
	ChannelID      string    `json:"channel_id"`
	Branch         string    `json:"branch"`
	AgentName      string    `json:"agent_name"`
	AgentSessionID string    `json:"agent_session_id,omitempty"`
	State          State     `json:"state"`
	Verbose        bool      `json:"verbose"`
	ManagedChannel bool      `json:"managed_channel"`
	Template       string    `json:"template,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CleanupFunc is invoked by the manager on stop/complete for every
// capability attached to a session (tunnel teardown, STT session close,
// and so on), keyed by channel id per SPEC_FULL.md §4.7.
type CleanupFunc func(channelID string) error

// Session is the runtime state of one active session: the persisted
// Record plus the live agent connection and bookkeeping the manager
// needs to run its read loop and tear it down.
type Session struct {
	mu     sync.Mutex
	record Record

	port   agent.Port
	cancel func()

	stderrLogPath string
	rawLogPath    string
}

// Name returns the session's stable name.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Name
}

// Record returns a copy of the session's persisted fields.
func (s *Session) Record() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.record.State = state
	s.mu.Unlock()
}

func (s *Session) state() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.State
}
