// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"os"

	"github.com/Donghh0221/afk/internal/agent"
	"github.com/Donghh0221/afk/internal/events"
)

// readLoop consumes one session's agent event stream for its lifetime.
// Every raw event is appended to the per-session raw log, classified, and
// republished as a typed event on the bus. On unexpected stream exit
// (anything other than being cancelled by stop_session/complete_session)
// the session is marked stopped, cleanup callbacks run, and an
// AgentStopped event is published so control planes can inform the
// operator. Grounded on internal/claude/manager.go's readLoop, adapted
// from claude's fixed StreamEvent struct to the Agent Port's generic
// agent.Event map so any backend's wire shape can drive classification.
func (m *Manager) readLoop(ctx context.Context, sess *Session) {
	rawLog, err := openAppendLog(sess.rawLogPath)
	if err != nil {
		m.log.Errorf("open raw log for session %s: %v", sess.Name(), err)
	}
	defer func() {
		if rawLog != nil {
			rawLog.Close()
		}
	}()

	responses := sess.port.ReadResponses()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-responses:
			if !ok {
				m.handleStreamEnded(ctx, sess)
				return
			}
			m.appendRawLog(rawLog, ev)
			m.classify(ctx, sess, ev)
		}
	}
}

func (m *Manager) appendRawLog(rawLog *os.File, ev agent.Event) {
	if rawLog == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	data = append(data, '\n')
	rawLog.Write(data)
}

// handleStreamEnded runs when an agent's response channel closes without
// the reader having been cancelled by stop_session/complete_session —
// i.e. the agent crashed or exited on its own.
func (m *Manager) handleStreamEnded(ctx context.Context, sess *Session) {
	rec := sess.Record()
	if rec.State == StateStopped {
		return
	}

	sess.setState(StateStopped)
	m.runCleanupCallbacks(rec.ChannelID)

	m.mu.Lock()
	delete(m.sessions, rec.ChannelID)
	m.mu.Unlock()
	m.persist()

	m.bus.Publish(ctx, events.NewAgentStopped(rec.ChannelID, rec.Name))

	if rec.ManagedChannel {
		if err := m.controlPlane.CloseChannel(ctx, rec.ChannelID); err != nil {
			m.log.Warnf("close channel %s after agent crash: %v", rec.ChannelID, err)
		}
	}
}

// classify implements SPEC_FULL.md §4.1's classification rules, mapping
// one raw agent event onto zero or more typed events.
func (m *Manager) classify(ctx context.Context, sess *Session, ev agent.Event) {
	rec := sess.Record()
	typ, _ := ev["type"].(string)

	switch typ {
	case "system":
		sid, _ := ev["session_id"].(string)
		if sid != "" {
			sess.mu.Lock()
			sess.record.AgentSessionID = sid
			sess.mu.Unlock()
			m.persist()
		}
		m.bus.Publish(ctx, events.NewAgentSystem(rec.ChannelID, sid))

	case "assistant":
		blocks := extractContentBlocks(ev)
		level := events.LevelProgress
		for _, b := range blocks {
			if b.Type == "text" {
				level = events.LevelInfo
				break
			}
		}
		m.bus.Publish(ctx, events.NewAgentAssistant(rec.ChannelID, blocks, rec.Name, rec.Verbose, level))

	case "permission_request":
		requestID, _ := ev["request_id"].(string)
		if requestID == "" {
			requestID, _ = ev["id"].(string)
		}
		toolName, _ := ev["tool_name"].(string)
		toolInput, _ := ev["tool_input"].(map[string]interface{})

		m.mu.RLock()
		approved := m.autoApprove[toolName]
		m.mu.RUnlock()
		if approved {
			if err := sess.port.SendPermissionResponse(ctx, requestID, true); err != nil {
				m.log.Warnf("auto-approve %s for session %s: %v", toolName, rec.Name, err)
			}
			return
		}

		sess.setState(StateWaitingPermission)
		m.bus.Publish(ctx, events.NewAgentPermissionRequest(rec.ChannelID, requestID, toolName, toolInput))

	case "result":
		costUSD, _ := ev["total_cost_usd"].(float64)
		var durationMs int64
		if v, ok := ev["duration_ms"].(float64); ok {
			durationMs = int64(v)
		}
		sess.setState(StateIdle)
		m.bus.Publish(ctx, events.NewAgentResult(rec.ChannelID, costUSD, durationMs))
		m.bus.Publish(ctx, events.NewAgentInputRequest(rec.ChannelID, rec.Name))

	case "file_output":
		path, _ := ev["path"].(string)
		m.bus.Publish(ctx, events.NewFileReady(rec.ChannelID, path, baseName(path)))
	}
}

func extractContentBlocks(ev agent.Event) []events.ContentBlock {
	raw, ok := ev["content"]
	if !ok {
		if msg, ok := ev["message"].(map[string]interface{}); ok {
			raw = msg["content"]
		}
	}

	// A bare string content is a plain-text reply, not a block list: treat
	// it as a single text block so it classifies as INFO rather than
	// falling through to PROGRESS.
	if text, ok := raw.(string); ok {
		if text == "" {
			return nil
		}
		return []events.ContentBlock{{Type: "text", Text: text}}
	}

	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	blocks := make([]events.ContentBlock, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		blockType, _ := m["type"].(string)
		text, _ := m["text"].(string)
		blocks = append(blocks, events.ContentBlock{Type: blockType, Text: text})
	}
	return blocks
}

func openAppendLog(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
