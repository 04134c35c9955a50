// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Donghh0221/afk/internal/agent"
	"github.com/Donghh0221/afk/internal/events"
)

// TestExtractContentBlocksClassification drives SPEC_FULL.md §8's
// classification testable property directly against extractContentBlocks:
// a bare string is a plain-text reply (INFO), a block list with any text
// block is INFO, and a block list with none (or an empty list) is
// PROGRESS.
func TestExtractContentBlocksClassification(t *testing.T) {
	levelOf := func(blocks []events.ContentBlock) events.Level {
		for _, b := range blocks {
			if b.Type == "text" {
				return events.LevelInfo
			}
		}
		return events.LevelProgress
	}

	t.Run("string content classifies as INFO", func(t *testing.T) {
		blocks := extractContentBlocks(agent.Event{"type": "assistant", "content": "plain reply"})
		require.Equal(t, events.LevelInfo, levelOf(blocks))
		require.Len(t, blocks, 1)
		require.Equal(t, "plain reply", blocks[0].Text)
	})

	t.Run("empty string content has no blocks", func(t *testing.T) {
		blocks := extractContentBlocks(agent.Event{"type": "assistant", "content": ""})
		require.Empty(t, blocks)
	})

	t.Run("block list with a text block classifies as INFO", func(t *testing.T) {
		blocks := extractContentBlocks(agent.Event{
			"type": "assistant",
			"content": []interface{}{
				map[string]interface{}{"type": "tool_use"},
				map[string]interface{}{"type": "text", "text": "done"},
			},
		})
		require.Equal(t, events.LevelInfo, levelOf(blocks))
	})

	t.Run("pure tool-use block list classifies as PROGRESS", func(t *testing.T) {
		blocks := extractContentBlocks(agent.Event{
			"type": "assistant",
			"content": []interface{}{
				map[string]interface{}{"type": "tool_use"},
				map[string]interface{}{"type": "tool_result"},
			},
		})
		require.Equal(t, events.LevelProgress, levelOf(blocks))
	})

	t.Run("empty block list classifies as PROGRESS", func(t *testing.T) {
		blocks := extractContentBlocks(agent.Event{"type": "assistant", "content": []interface{}{}})
		require.Equal(t, events.LevelProgress, levelOf(blocks))
	})

	t.Run("string content nested under message key classifies as INFO", func(t *testing.T) {
		blocks := extractContentBlocks(agent.Event{
			"type":    "assistant",
			"message": map[string]interface{}{"content": "nested reply"},
		})
		require.Equal(t, events.LevelInfo, levelOf(blocks))
	})
}
