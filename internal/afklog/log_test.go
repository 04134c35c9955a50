// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package afklog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTailCapturesLoggedLines(t *testing.T) {
	l := New("tailtest")
	l.Printf("hello %d", 1)
	l.Warnf("careful")

	lines := Tail(0)
	require.NotEmpty(t, lines)
	require.Contains(t, lines[len(lines)-2], "hello 1")
	require.Contains(t, lines[len(lines)-1], "WARN: careful")
}
