// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package workspace

import "strings"

// WorktreeEntry is one entry from `git worktree list --porcelain`.
type WorktreeEntry struct {
	Path   string
	Branch string
	Commit string
	Bare   bool
}

// parseWorktreeListPorcelain parses the output of
// `git worktree list --porcelain`. Grounded on the teacher's
// worktree.ParseWorktreeListPorcelain, which favors this format over the
// plain listing because it handles paths containing spaces correctly.
func parseWorktreeListPorcelain(output string) []WorktreeEntry {
	result := []WorktreeEntry{}

	blocks := strings.Split(output, "\n\n")
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		entry := parseWorktreeBlock(block)
		if entry.Path != "" {
			result = append(result, entry)
		}
	}
	return result
}

func parseWorktreeBlock(block string) WorktreeEntry {
	var entry WorktreeEntry
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "worktree "):
			entry.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			entry.Commit = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			ref := strings.TrimPrefix(line, "branch ")
			entry.Branch = strings.TrimPrefix(ref, "refs/heads/")
		case line == "bare":
			entry.Bare = true
		}
	}
	return entry
}

// parseNameStatus turns `git diff --cached --name-status` output into a
// one-line commit message summarizing the staged change, used as the
// commit_all fallback when no message function is supplied.
func parseNameStatus(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	counts := map[string]int{"A": 0, "M": 0, "D": 0, "R": 0}
	for _, line := range lines {
		if line == "" {
			continue
		}
		code := line[:1]
		switch code {
		case "A":
			counts["A"]++
		case "M":
			counts["M"]++
		case "D":
			counts["D"]++
		case "R":
			counts["R"]++
		}
	}

	var parts []string
	if counts["A"] > 0 {
		parts = append(parts, pluralize(counts["A"], "addition"))
	}
	if counts["M"] > 0 {
		parts = append(parts, pluralize(counts["M"], "modification"))
	}
	if counts["D"] > 0 {
		parts = append(parts, pluralize(counts["D"], "deletion"))
	}
	if counts["R"] > 0 {
		parts = append(parts, pluralize(counts["R"], "rename"))
	}
	if len(parts) == 0 {
		return "session checkpoint"
	}
	return "session checkpoint: " + strings.Join(parts, ", ")
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return itoa(n) + " " + noun + "s"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
