// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"context"
	"fmt"
	"strings"

	"github.com/Donghh0221/afk/internal/afkerr"
	"github.com/Donghh0221/afk/internal/afklog"
)

// Manager runs the Workspace Isolation Protocol operations against a repo
// through a GitExecutor. Grounded on the teacher's worktree.WorktreeManager,
// trimmed to the subset of commands a session needs: create/remove a
// worktree on a dedicated branch, commit staged work, and rebase a
// completed session's branch onto its parent before fast-forwarding.
type Manager struct {
	git GitExecutor
	log *afklog.Logger
}

// NewManager creates a workspace manager backed by git.
func NewManager(git GitExecutor) *Manager {
	return &Manager{git: git, log: afklog.New("workspace")}
}

// IsRepo reports whether dir is inside a git working tree.
func (m *Manager) IsRepo(ctx context.Context, dir string) bool {
	_, err := m.git.Run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil
}

// CreateWorktree adds a new worktree at worktreePath on a freshly created
// branch branchName, based on the repo's current HEAD. Returns
// afkerr.ErrWorktreeExists if the path is already a registered worktree.
func (m *Manager) CreateWorktree(ctx context.Context, repo, worktreePath, branchName string) error {
	if !m.IsRepo(ctx, repo) {
		return afkerr.ErrNotAVCSRepo
	}

	existing, err := m.ListAFKWorktrees(ctx, repo)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.Path == worktreePath {
			return afkerr.ErrWorktreeExists
		}
	}

	out, err := m.git.Run(ctx, repo, "worktree", "add", "-b", branchName, worktreePath)
	if err != nil {
		return &afkerr.VCSError{Op: "worktree add", Output: out, Err: err}
	}
	return nil
}

// RemoveWorktree removes a worktree and its branch. This is best-effort per
// SPEC_FULL.md §4.2: failures are logged, never returned, since a stray
// worktree left behind must not block session teardown.
func (m *Manager) RemoveWorktree(ctx context.Context, repo, worktreePath, branchName string) {
	if out, err := m.git.Run(ctx, repo, "worktree", "remove", "--force", worktreePath); err != nil {
		m.log.Warnf("worktree remove %s failed: %v: %s", worktreePath, err, strings.TrimSpace(out))
	}
	if out, err := m.git.Run(ctx, repo, "branch", "-D", branchName); err != nil {
		m.log.Warnf("branch delete %s failed: %v: %s", branchName, err, strings.TrimSpace(out))
	}
}

// CommitAll stages every change in worktreePath and commits it. messageFn,
// when non-nil, receives the `git diff --cached --name-status` output and
// returns the commit message to use; when nil a generic summary message is
// derived from the same output. Returns hadChanges=false when there was
// nothing to commit.
func (m *Manager) CommitAll(ctx context.Context, worktreePath string, messageFn func(nameStatus string) string) (hadChanges bool, detail string, err error) {
	if _, err := m.git.Run(ctx, worktreePath, "add", "-A"); err != nil {
		return false, "", fmt.Errorf("git add -A: %w", err)
	}

	statusOut, err := m.git.Run(ctx, worktreePath, "diff", "--cached", "--name-status")
	if err != nil {
		return false, "", fmt.Errorf("git diff --cached: %w", err)
	}
	if strings.TrimSpace(statusOut) == "" {
		return false, "", nil
	}

	message := parseNameStatus(statusOut)
	if messageFn != nil {
		message = messageFn(statusOut)
	}

	if out, err := m.git.Run(ctx, worktreePath, "commit", "-m", message); err != nil {
		return false, "", &afkerr.VCSError{Op: "commit", Output: out, Err: err}
	}
	return true, message, nil
}

// RebaseThenFastForward rebases branch's worktree onto repo's current HEAD
// of its parent branch, removes the worktree once the rebase succeeds, and
// fast-forwards the parent branch to the rebased commit. Ordering matters:
// the worktree must be gone before the branch it checked out can be
// fast-forwarded in the main repo (SPEC_FULL.md §4.2). On rebase conflict
// the rebase is aborted, the worktree is left in place, and a
// MergeConflictError is returned.
func (m *Manager) RebaseThenFastForward(ctx context.Context, repo, parentBranch, branch, worktreePath string) (merged bool, detail string, err error) {
	if out, rerr := m.git.Run(ctx, worktreePath, "rebase", parentBranch); rerr != nil {
		m.git.Run(ctx, worktreePath, "rebase", "--abort")
		return false, "", &afkerr.MergeConflictError{Detail: strings.TrimSpace(out)}
	}

	if out, rerr := m.git.Run(ctx, repo, "worktree", "remove", "--force", worktreePath); rerr != nil {
		m.log.Warnf("worktree remove %s failed: %v: %s", worktreePath, rerr, strings.TrimSpace(out))
	}

	// Best-effort: abort any partial merge left on the project's main
	// checkout before fast-forwarding it, per SPEC_FULL.md §4.2.
	m.git.Run(ctx, repo, "merge", "--abort")

	out, err := m.git.Run(ctx, repo, "merge", "--ff-only", branch)
	if err != nil {
		return false, "", &afkerr.VCSError{Op: "merge --ff-only", Output: out, Err: err}
	}

	m.git.Run(ctx, repo, "branch", "-D", branch)

	return true, strings.TrimSpace(out), nil
}

// ListAFKWorktrees returns every registered worktree whose branch carries
// the afk/ prefix used for session branches.
func (m *Manager) ListAFKWorktrees(ctx context.Context, repo string) ([]WorktreeEntry, error) {
	out, err := m.git.Run(ctx, repo, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, &afkerr.VCSError{Op: "worktree list", Output: out, Err: err}
	}

	all := parseWorktreeListPorcelain(out)
	result := make([]WorktreeEntry, 0, len(all))
	for _, e := range all {
		if strings.HasPrefix(e.Branch, "afk/") {
			result = append(result, e)
		}
	}
	return result, nil
}
