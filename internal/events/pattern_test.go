// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPatternMatcherWildcards(t *testing.T) {
	pm := NewPatternMatcher()

	require.True(t, pm.Match(TypeAgentSystem, "*"))
	require.True(t, pm.Match(TypeAgentSystem, "agent.*"))
	require.True(t, pm.Match(TypeAgentAssistant, "agent.*"))
	require.False(t, pm.Match(TypeFileReady, "agent.*"))
	require.True(t, pm.Match(TypeFileReady, "*.ready"))
	require.True(t, pm.Match(TypeAgentSystem, string(TypeAgentSystem)))
	require.False(t, pm.Match(TypeAgentSystem, string(TypeAgentResult)))
}

func TestPatternMatcherCompile(t *testing.T) {
	pm := NewPatternMatcher()

	compiled, err := pm.Compile("agent.*")
	require.NoError(t, err)
	require.True(t, compiled.Match(TypeAgentResult))
	require.False(t, compiled.Match(TypeFileReady))

	_, err = pm.Compile("")
	require.Error(t, err)
}
