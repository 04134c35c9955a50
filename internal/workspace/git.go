// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package workspace implements the Workspace Isolation Protocol: creating
// and removing per-session git worktrees, committing staged changes, and
// the rebase-then-fast-forward completion workflow. Grounded on the
// teacher's internal/worktree package (GitExecutor interface, porcelain
// parsing), generalized from an interactive worktree-switcher into the
// session manager's isolation primitive.
package workspace

import (
	"bytes"
	"context"
	"os/exec"
)

// GitExecutor runs git commands against a working directory. Abstracted so
// tests can substitute a fake instead of shelling out to git, following the
// teacher's worktree.GitExecutor split between RealGitExecutor and test
// doubles.
type GitExecutor interface {
	// Run executes `git <args...>` with -C dir (when dir is non-empty) and
	// returns combined stdout+stderr. A non-nil error means the command
	// exited non-zero; the output is still returned for error messages.
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// RealGitExecutor shells out to the git binary.
type RealGitExecutor struct{}

// NewRealGitExecutor creates a new git executor.
func NewRealGitExecutor() *RealGitExecutor { return &RealGitExecutor{} }

func (e *RealGitExecutor) Run(ctx context.Context, dir string, args ...string) (string, error) {
	full := args
	if dir != "" {
		full = append([]string{"-C", dir}, args...)
	}
	cmd := exec.CommandContext(ctx, "git", full...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}
