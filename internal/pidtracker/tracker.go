// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package pidtracker keeps a record of long-running subprocess PIDs (in
// afkd, the streaming agent adapter's children) so they can be terminated
// together on shutdown, and so a crashed daemon's orphans can be cleaned
// up on the next startup. Grounded on original_source/afk/core/
// subprocess_tracker.py, reworked from Python's module-level atexit
// singleton into an explicit dependency: the daemon entry point owns a
// *Tracker and wires its Shutdown into its own signal handling, rather
// than the tracker installing a global hook behind the caller's back
// (SPEC_FULL.md §9).
package pidtracker

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	gops "github.com/mitchellh/go-ps"

	"github.com/Donghh0221/afk/internal/afklog"
)

// Tracker records tracked PIDs in memory and mirrors them to a PID file so
// a later process (a fresh daemon instance) can find and clean up orphans
// left behind by a crash that skipped normal shutdown.
type Tracker struct {
	mu      sync.Mutex
	pids    map[int]struct{}
	pidFile string
	log     *afklog.Logger
}

// New creates a tracker that persists its PID set to pidFile. pidFile may
// be empty, in which case tracking still works in-memory but nothing
// survives a crash.
func New(pidFile string) *Tracker {
	return &Tracker{
		pids:    make(map[int]struct{}),
		pidFile: pidFile,
		log:     afklog.New("pidtracker"),
	}
}

// Track registers pid as a long-running subprocess to signal on shutdown.
func (t *Tracker) Track(pid int) {
	t.mu.Lock()
	t.pids[pid] = struct{}{}
	t.mu.Unlock()
	t.save()
}

// Untrack removes pid, typically once its owning process has exited
// normally and no longer needs to be signalled on shutdown.
func (t *Tracker) Untrack(pid int) {
	t.mu.Lock()
	delete(t.pids, pid)
	t.mu.Unlock()
	t.save()
}

// Shutdown sends SIGTERM to every tracked PID and clears the set. Callers
// wire this into their own signal handling or deferred cleanup — nothing
// here runs implicitly.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	pids := make([]int, 0, len(t.pids))
	for pid := range t.pids {
		pids = append(pids, pid)
	}
	t.pids = make(map[int]struct{})
	t.mu.Unlock()

	for _, pid := range pids {
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
			t.log.Warnf("failed to signal tracked pid %d: %v", pid, err)
		}
	}
	t.save()
}

// CleanupStalePIDs reads the PID file left behind by a previous process
// (presumably one that crashed without calling Shutdown), signals every
// PID still alive, and removes the file. Call once at startup before any
// new subprocesses are tracked.
func (t *Tracker) CleanupStalePIDs() {
	if t.pidFile == "" {
		return
	}
	data, err := os.ReadFile(t.pidFile)
	if err != nil {
		return
	}

	killed := 0
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		if !processAlive(pid) {
			continue
		}
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
			t.log.Warnf("could not kill stale pid %d: %v", pid, err)
			continue
		}
		killed++
		t.log.Printf("killed stale subprocess pid %d", pid)
	}
	if killed > 0 {
		t.log.Printf("cleaned up %d stale subprocess(es)", killed)
	}
	os.Remove(t.pidFile)
}

func processAlive(pid int) bool {
	proc, err := gops.FindProcess(pid)
	return err == nil && proc != nil
}

func (t *Tracker) save() {
	if t.pidFile == "" {
		return
	}

	t.mu.Lock()
	lines := make([]string, 0, len(t.pids))
	for pid := range t.pids {
		lines = append(lines, strconv.Itoa(pid))
	}
	t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(t.pidFile), 0o755); err != nil {
		t.log.Warnf("could not create pid file directory: %v", err)
		return
	}

	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	if err := os.WriteFile(t.pidFile, []byte(content), 0o644); err != nil {
		t.log.Warnf("could not write pid file: %v", err)
	}
}
