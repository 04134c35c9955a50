// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"bufio"
	"context"
	"strings"

	"github.com/Donghh0221/afk/internal/workspace"
)

// CommitMessageGenerator derives a one-line commit message from the
// worktree's staged diffstat, for use as the Workspace Protocol's
// optional message_fn. It runs its own `git diff --stat` rather than
// reusing the name-status output commit_all already derives a fallback
// from, giving a file-count-and-churn summary instead of a per-file list.
type CommitMessageGenerator struct {
	git workspace.GitExecutor
}

// NewCommitMessageGenerator wraps git for diffstat-based summaries.
func NewCommitMessageGenerator(git workspace.GitExecutor) *CommitMessageGenerator {
	return &CommitMessageGenerator{git: git}
}

// MessageFunc returns a func(nameStatus string) string bound to
// worktreePath, suitable for workspace.Manager.CommitAll and
// session.Manager.CompleteSession's messageFn parameter.
func (g *CommitMessageGenerator) MessageFunc(ctx context.Context, worktreePath string) func(string) string {
	return func(nameStatus string) string {
		out, err := g.git.Run(ctx, worktreePath, "diff", "--cached", "--stat")
		if err != nil || strings.TrimSpace(out) == "" {
			return "session checkpoint"
		}
		return summarizeDiffstat(out)
	}
}

// summarizeDiffstat turns `git diff --stat` output's trailer line
// ("3 files changed, 40 insertions(+), 2 deletions(-)") into a one-line
// commit message; returns plain "session checkpoint" if the trailer is
// absent.
func summarizeDiffstat(diffstat string) string {
	lines := strings.Split(strings.TrimRight(diffstat, "\n"), "\n")
	if len(lines) == 0 {
		return "session checkpoint"
	}
	trailer := strings.TrimSpace(lines[len(lines)-1])
	if trailer == "" || !strings.Contains(trailer, "changed") {
		return "session checkpoint"
	}
	return "session checkpoint: " + trailer
}

// FileCount counts file entries in a `git diff --stat` body, excluding
// its summary trailer — a helper for callers that want a bare number.
func FileCount(diffstat string) int {
	count := 0
	scanner := bufio.NewScanner(strings.NewReader(diffstat))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "|") {
			count++
		}
	}
	return count
}
