// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeGit struct {
	diffstat string
	err      error
}

func (f *fakeGit) Run(ctx context.Context, dir string, args ...string) (string, error) {
	return f.diffstat, f.err
}

func TestCommitMessageGeneratorSummarizesTrailer(t *testing.T) {
	git := &fakeGit{diffstat: " main.go | 10 ++++++----\n 1 file changed, 6 insertions(+), 4 deletions(-)\n"}
	gen := NewCommitMessageGenerator(git)

	fn := gen.MessageFunc(context.Background(), "/tmp/worktree")
	msg := fn("M\tmain.go")

	require.True(t, strings.HasPrefix(msg, "session checkpoint:"))
	require.Contains(t, msg, "1 file changed")
}

func TestCommitMessageGeneratorFallsBackOnEmptyDiffstat(t *testing.T) {
	git := &fakeGit{diffstat: ""}
	gen := NewCommitMessageGenerator(git)

	fn := gen.MessageFunc(context.Background(), "/tmp/worktree")
	require.Equal(t, "session checkpoint", fn(""))
}

func TestCommitMessageGeneratorFallsBackOnGitError(t *testing.T) {
	git := &fakeGit{err: errors.New("boom")}
	gen := NewCommitMessageGenerator(git)

	fn := gen.MessageFunc(context.Background(), "/tmp/worktree")
	require.Equal(t, "session checkpoint", fn(""))
}

func TestFileCountCountsDiffstatEntries(t *testing.T) {
	diffstat := " a.go | 2 +-\n b.go | 4 ++--\n 2 files changed, 4 insertions(+), 2 deletions(-)\n"
	require.Equal(t, 2, FileCount(diffstat))
}
