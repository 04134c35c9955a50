// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryResolvesByName(t *testing.T) {
	r := NewRegistry()
	r.Register("fake", func() Port {
		return NewStreamingAdapter(StreamingConfig{Command: "true"}, nil)
	})

	port, err := r.New("fake")
	require.NoError(t, err)
	require.NotNil(t, port)
}

func TestRegistryErrorsOnUnknownName(t *testing.T) {
	r := NewRegistry()
	_, err := r.New("does-not-exist")
	require.Error(t, err)
}
