// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events provides the supervisor's typed in-process event bus:
// producers (the session read loop, lifecycle operations) publish frozen
// event records; control planes subscribe to the exact type they want to
// render.
package events

import "time"

// Level is a hint carried on every event classifying its importance.
// It is guidance only: the core assigns it, the renderer decides how to
// present each level (skip / store / silent / notify).
type Level string

const (
	LevelInternal Level = "internal"
	LevelProgress Level = "progress"
	LevelInfo     Level = "info"
	LevelNotify   Level = "notify"
)

// Type identifies one of the frozen event records. Dotted names let the
// history query's pattern matcher apply wildcards (e.g. "agent.*").
type Type string

const (
	TypeAgentSystem            Type = "agent.system"
	TypeAgentAssistant         Type = "agent.assistant"
	TypeAgentPermissionRequest Type = "agent.permission_request"
	TypeAgentResult            Type = "agent.result"
	TypeAgentInputRequest      Type = "agent.input_request"
	TypeAgentStopped           Type = "agent.stopped"
	TypeFileReady              Type = "file.ready"
	TypeSessionCreated         Type = "session.created"
)

// Event is implemented by every frozen event record. Concrete fields are
// reached by type-asserting back to the struct a subscriber asked for — a
// subscription to a given Type only ever receives events of that concrete
// type.
type Event interface {
	EventType() Type
	EventChannelID() string
	EventLevel() Level
	EventTimestamp() time.Time
}

// common is embedded by every concrete event to avoid repeating the
// bookkeeping fields and their accessors.
type common struct {
	ChannelID string
	Timestamp time.Time
}

func (c common) EventChannelID() string    { return c.ChannelID }
func (c common) EventTimestamp() time.Time { return c.Timestamp }

// NewCommon builds the embedded bookkeeping fields with the current time.
func NewCommon(channelID string) common {
	return common{ChannelID: channelID, Timestamp: time.Now()}
}

// AgentSystem reports the agent's own system/startup message. Captures the
// agent-internal resumable session id on first occurrence.
type AgentSystem struct {
	common
	AgentSessionID string
}

func (AgentSystem) EventType() Type   { return TypeAgentSystem }
func (AgentSystem) EventLevel() Level { return LevelInternal }

// NewAgentSystem builds an AgentSystem event.
func NewAgentSystem(channelID, agentSessionID string) AgentSystem {
	return AgentSystem{common: NewCommon(channelID), AgentSessionID: agentSessionID}
}

// ContentBlock is one block of an assistant message: text, tool_use, or
// tool_result, as emitted by the agent's raw stream.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// AgentAssistant reports an assistant turn. Level is INFO if any block has
// type "text", otherwise PROGRESS (pure tool-use/tool-result).
type AgentAssistant struct {
	common
	ContentBlocks []ContentBlock
	SessionName   string
	Verbose       bool
	Level_        Level
}

func (AgentAssistant) EventType() Type     { return TypeAgentAssistant }
func (e AgentAssistant) EventLevel() Level { return e.Level_ }

// NewAgentAssistant builds an AgentAssistant event.
func NewAgentAssistant(channelID string, blocks []ContentBlock, sessionName string, verbose bool, level Level) AgentAssistant {
	return AgentAssistant{
		common:        NewCommon(channelID),
		ContentBlocks: blocks,
		SessionName:   sessionName,
		Verbose:       verbose,
		Level_:        level,
	}
}

// AgentPermissionRequest reports a tool permission prompt. Always NOTIFY.
type AgentPermissionRequest struct {
	common
	RequestID string
	ToolName  string
	ToolInput map[string]interface{}
}

func (AgentPermissionRequest) EventType() Type   { return TypeAgentPermissionRequest }
func (AgentPermissionRequest) EventLevel() Level { return LevelNotify }

// NewAgentPermissionRequest builds an AgentPermissionRequest event.
func NewAgentPermissionRequest(channelID, requestID, toolName string, toolInput map[string]interface{}) AgentPermissionRequest {
	return AgentPermissionRequest{
		common:    NewCommon(channelID),
		RequestID: requestID,
		ToolName:  toolName,
		ToolInput: toolInput,
	}
}

// AgentResult reports the terminal result of one agent turn.
type AgentResult struct {
	common
	CostUSD    float64
	DurationMs int64
}

func (AgentResult) EventType() Type   { return TypeAgentResult }
func (AgentResult) EventLevel() Level { return LevelNotify }

// NewAgentResult builds an AgentResult event.
func NewAgentResult(channelID string, costUSD float64, durationMs int64) AgentResult {
	return AgentResult{common: NewCommon(channelID), CostUSD: costUSD, DurationMs: durationMs}
}

// AgentInputRequest signals that the agent is idle and ready for the next
// operator message. Always published alongside AgentResult.
type AgentInputRequest struct {
	common
	SessionName string
}

func (AgentInputRequest) EventType() Type   { return TypeAgentInputRequest }
func (AgentInputRequest) EventLevel() Level { return LevelNotify }

// NewAgentInputRequest builds an AgentInputRequest event.
func NewAgentInputRequest(channelID, sessionName string) AgentInputRequest {
	return AgentInputRequest{common: NewCommon(channelID), SessionName: sessionName}
}

// AgentStopped reports that a session's agent exited unexpectedly (i.e.
// not as a result of stop_session/complete_session). Control planes close
// the channel in response.
type AgentStopped struct {
	common
	SessionName string
}

func (AgentStopped) EventType() Type   { return TypeAgentStopped }
func (AgentStopped) EventLevel() Level { return LevelNotify }

// NewAgentStopped builds an AgentStopped event.
func NewAgentStopped(channelID, sessionName string) AgentStopped {
	return AgentStopped{common: NewCommon(channelID), SessionName: sessionName}
}

// FileReady reports a file the agent produced. Renderers decide whether to
// upload it.
type FileReady struct {
	common
	FilePath string
	FileName string
}

func (FileReady) EventType() Type   { return TypeFileReady }
func (FileReady) EventLevel() Level { return LevelInfo }

// NewFileReady builds a FileReady event.
func NewFileReady(channelID, filePath, fileName string) FileReady {
	return FileReady{common: NewCommon(channelID), FilePath: filePath, FileName: fileName}
}

// SessionCreated reports a freshly created session, before its first agent
// event arrives.
type SessionCreated struct {
	common
	SessionName  string
	ProjectName  string
	ProjectPath  string
	WorktreePath string
	Verbose      bool
}

func (SessionCreated) EventType() Type   { return TypeSessionCreated }
func (SessionCreated) EventLevel() Level { return LevelInfo }

// NewSessionCreated builds a SessionCreated event.
func NewSessionCreated(channelID, sessionName, projectName, projectPath, worktreePath string, verbose bool) SessionCreated {
	return SessionCreated{
		common:       NewCommon(channelID),
		SessionName:  sessionName,
		ProjectName:  projectName,
		ProjectPath:  projectPath,
		WorktreePath: worktreePath,
		Verbose:      verbose,
	}
}

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// EventFilter selects events from the history query.
type EventFilter struct {
	Types     []Type // patterns, supports "prefix.*" wildcards
	ChannelID string
	Since     time.Time
	Until     time.Time
	Limit     int
}
