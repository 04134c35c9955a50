// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package afkerr defines the error kinds the core distinguishes, so callers
// can branch on kind with errors.As/errors.Is instead of matching strings.
package afkerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions that carry no extra data.
var (
	ErrNotAVCSRepo         = errors.New("not a version-control repository")
	ErrWorktreeExists      = errors.New("worktree already exists")
	ErrSubscriberOverflow  = errors.New("subscriber queue full, event dropped")
	ErrUnregisteredProject = errors.New("project is not registered")
	ErrTemplateUnknown     = errors.New("template unknown")
	ErrSessionNotFound     = errors.New("session not found")
)

// ConfigError indicates missing or malformed configuration. Fatal at
// startup; a runtime ConfigError instead disables the affected feature
// with a logged warning.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Key, e.Reason)
}

// VCSError wraps a failed git invocation.
type VCSError struct {
	Op     string
	Output string
	Err    error
}

func (e *VCSError) Error() string {
	return fmt.Sprintf("vcs error during %s: %s: %v", e.Op, e.Output, e.Err)
}

func (e *VCSError) Unwrap() error { return e.Err }

// AgentStartupError indicates the agent subprocess failed to start. The
// caller is expected to roll back the half-created session.
type AgentStartupError struct {
	Agent string
	Err   error
}

func (e *AgentStartupError) Error() string {
	return fmt.Sprintf("agent %q failed to start: %v", e.Agent, e.Err)
}

func (e *AgentStartupError) Unwrap() error { return e.Err }

// AgentCrashError indicates a session's read loop terminated unexpectedly
// (as opposed to a deliberate stop/complete cancellation).
type AgentCrashError struct {
	SessionName string
	Err         error
}

func (e *AgentCrashError) Error() string {
	return fmt.Sprintf("agent for session %q crashed: %v", e.SessionName, e.Err)
}

func (e *AgentCrashError) Unwrap() error { return e.Err }

// MergeConflictError indicates complete_session's rebase failed. The
// session remains usable; the caller receives the detail message.
type MergeConflictError struct {
	Detail string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict: %s", e.Detail)
}

// RecoveryMismatchError indicates a persisted session record referenced a
// workspace or project that no longer exists.
type RecoveryMismatchError struct {
	ChannelID string
	Reason    string
}

func (e *RecoveryMismatchError) Error() string {
	return fmt.Sprintf("recovery mismatch for channel %q: %s", e.ChannelID, e.Reason)
}

// TransientTransportError indicates a control-plane send failed. Never
// raised into the domain layer; logged by the caller and discarded.
type TransientTransportError struct {
	ControlPlane string
	Err          error
}

func (e *TransientTransportError) Error() string {
	return fmt.Sprintf("%s transport error: %v", e.ControlPlane, e.Err)
}

func (e *TransientTransportError) Unwrap() error { return e.Err }
