// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Donghh0221/afk/internal/agent"
	"github.com/Donghh0221/afk/internal/events"
	"github.com/Donghh0221/afk/internal/workspace"
)

// fakeGit is a minimal workspace.GitExecutor double: every call succeeds
// with empty output unless a canned response is registered for a prefix.
type fakeGit struct {
	responses map[string]struct {
		out string
		err error
	}
	calls []string
}

func newFakeGit() *fakeGit {
	return &fakeGit{responses: make(map[string]struct {
		out string
		err error
	})}
}

func (f *fakeGit) on(prefix, out string, err error) {
	f.responses[prefix] = struct {
		out string
		err error
	}{out, err}
}

func (f *fakeGit) Run(ctx context.Context, dir string, args ...string) (string, error) {
	key := ""
	for _, a := range args {
		key += a + " "
	}
	f.calls = append(f.calls, key)
	for prefix, res := range f.responses {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			return res.out, res.err
		}
	}
	return "", nil
}

type fakePort struct {
	startErr  error
	sessionID string
	alive     bool
	out       chan agent.Event
	started   []string // workingDir values Start was called with, for assertions
	startIDs  []string // sessionID values Start was called with

	sentMessages []string
	permResponses []struct {
		requestID string
		allowed   bool
	}
}

func newFakePort() *fakePort {
	return &fakePort{out: make(chan agent.Event, 16)}
}

func (p *fakePort) SessionID() string { return p.sessionID }
func (p *fakePort) IsAlive() bool     { return p.alive }
func (p *fakePort) Start(ctx context.Context, workingDir, sessionID, stderrLogPath string) error {
	if p.startErr != nil {
		return p.startErr
	}
	p.alive = true
	p.started = append(p.started, workingDir)
	p.startIDs = append(p.startIDs, sessionID)
	return nil
}
func (p *fakePort) SendMessage(ctx context.Context, text string) error {
	p.sentMessages = append(p.sentMessages, text)
	return nil
}
func (p *fakePort) SendPermissionResponse(ctx context.Context, requestID string, allowed bool) error {
	p.permResponses = append(p.permResponses, struct {
		requestID string
		allowed   bool
	}{requestID, allowed})
	return nil
}
func (p *fakePort) ReadResponses() <-chan agent.Event { return p.out }
func (p *fakePort) Stop(ctx context.Context) error {
	p.alive = false
	return nil
}

type fakeControlPlane struct {
	created []string
	closed  []string
}

func (f *fakeControlPlane) CreateChannel(ctx context.Context, sessionName string) (string, error) {
	id := "ch-" + sessionName
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeControlPlane) CloseChannel(ctx context.Context, channelID string) error {
	f.closed = append(f.closed, channelID)
	return nil
}

func newTestManager(t *testing.T, git workspace.GitExecutor, port agent.Port, cp ControlPlane) (*Manager, *events.Bus) {
	bus := events.NewBus(events.BusConfig{})
	ws := workspace.NewManager(git)
	registry := agent.NewRegistry()
	registry.Register("fake", func() agent.Port { return port })

	cfg := Config{
		StateDir:        t.TempDir(),
		LogDir:          t.TempDir(),
		WorktreeBaseDir: t.TempDir(),
		DefaultBranch:   "main",
	}
	return NewManager(cfg, bus, ws, registry, cp, nil), bus
}

func TestCreateSessionPublishesSessionCreated(t *testing.T) {
	git := newFakeGit()
	port := newFakePort()
	cp := &fakeControlPlane{}
	m, bus := newTestManager(t, git, port, cp)

	sub, ch, err := bus.Subscribe(events.TypeSessionCreated, 4)
	require.NoError(t, err)
	defer bus.Unsubscribe(sub)

	sess, err := m.CreateSession(context.Background(), CreateParams{
		ProjectName: "Demo",
		ProjectPath: "/repo/demo",
		AgentName:   "fake",
	})
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.True(t, port.alive)
	require.Len(t, cp.created, 1)

	select {
	case ev := <-ch:
		sc := ev.(events.SessionCreated)
		require.Equal(t, "Demo", sc.ProjectName)
	case <-time.After(time.Second):
		t.Fatal("expected SessionCreated event")
	}
}

func TestStopSessionRemovesFromTableAndClosesManagedChannel(t *testing.T) {
	git := newFakeGit()
	port := newFakePort()
	cp := &fakeControlPlane{}
	m, _ := newTestManager(t, git, port, cp)

	sess, err := m.CreateSession(context.Background(), CreateParams{
		ProjectName: "demo",
		ProjectPath: "/repo/demo",
		AgentName:   "fake",
	})
	require.NoError(t, err)

	channelID := sess.Record().ChannelID
	require.True(t, m.StopSession(context.Background(), channelID))
	require.False(t, port.alive)
	require.Len(t, cp.closed, 1)

	_, ok := m.Get(channelID)
	require.False(t, ok)

	// Stopping again is a no-op, never a panic.
	require.False(t, m.StopSession(context.Background(), channelID))
}

func TestCompleteSessionRestartsAgentOnRebaseFailure(t *testing.T) {
	git := newFakeGit()
	git.on("rebase main", "CONFLICT", errors.New("exit status 1"))
	port := newFakePort()
	cp := &fakeControlPlane{}
	m, _ := newTestManager(t, git, port, cp)

	sess, err := m.CreateSession(context.Background(), CreateParams{
		ProjectName: "demo",
		ProjectPath: "/repo/demo",
		AgentName:   "fake",
	})
	require.NoError(t, err)
	channelID := sess.Record().ChannelID

	merged, detail := m.CompleteSession(context.Background(), channelID, nil)
	require.False(t, merged)
	require.NotEmpty(t, detail)

	// Session remains usable after a failed rebase.
	_, ok := m.Get(channelID)
	require.True(t, ok)
	require.True(t, port.alive)
}

// fakeProjectStore is a minimal ProjectStore double keyed by project name.
type fakeProjectStore struct {
	paths map[string]string
}

func (f *fakeProjectStore) Path(name string) (string, bool) {
	p, ok := f.paths[name]
	return p, ok
}

func (f *fakeProjectStore) Names() []string {
	names := make([]string, 0, len(f.paths))
	for n := range f.paths {
		names = append(names, n)
	}
	return names
}

// waitForEvent reads one event off ch or fails the test after a timeout.
func waitForEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// TestCreateSendResultFlow drives SPEC_FULL.md §8 scenario 1: a streaming
// agent reports a system event carrying its session id, an assistant text
// reply after send_message, and a result — the read loop must publish
// AgentSystem, AgentAssistant(level=INFO), AgentResult, and
// AgentInputRequest in that order, and leave the session idle with the
// agent's reported session id recorded.
func TestCreateSendResultFlow(t *testing.T) {
	git := newFakeGit()
	port := newFakePort()
	cp := &fakeControlPlane{}
	m, bus := newTestManager(t, git, port, cp)

	systemCh := subscribeT(t, bus, events.TypeAgentSystem)
	assistantCh := subscribeT(t, bus, events.TypeAgentAssistant)
	resultCh := subscribeT(t, bus, events.TypeAgentResult)
	inputCh := subscribeT(t, bus, events.TypeAgentInputRequest)

	sess, err := m.CreateSession(context.Background(), CreateParams{
		ProjectName: "demo",
		ProjectPath: "/repo/demo",
		AgentName:   "fake",
	})
	require.NoError(t, err)
	channelID := sess.Record().ChannelID

	port.out <- agent.Event{"type": "system", "session_id": "S1"}
	sysEv := waitForEvent(t, systemCh).(events.AgentSystem)
	require.Equal(t, "S1", sysEv.AgentSessionID)

	require.True(t, m.SendMessage(context.Background(), channelID, "hi"))
	require.Equal(t, []string{"hi"}, port.sentMessages)

	port.out <- agent.Event{
		"type": "assistant",
		"content": []interface{}{
			map[string]interface{}{"type": "text", "text": "ok"},
		},
	}
	asstEv := waitForEvent(t, assistantCh).(events.AgentAssistant)
	require.Equal(t, events.LevelInfo, asstEv.EventLevel())

	port.out <- agent.Event{"type": "result", "total_cost_usd": 0.01, "duration_ms": float64(1234)}
	resEv := waitForEvent(t, resultCh).(events.AgentResult)
	require.Equal(t, 0.01, resEv.CostUSD)
	require.Equal(t, int64(1234), resEv.DurationMs)
	waitForEvent(t, inputCh)

	require.Eventually(t, func() bool {
		rec := sess.Record()
		return rec.State == StateIdle && rec.AgentSessionID == "S1"
	}, time.Second, 10*time.Millisecond)
}

// TestPermissionRequestFlow drives SPEC_FULL.md §8 scenario 2: a
// permission_request moves the session to waiting_permission and publishes
// AgentPermissionRequest; permission_response forwards the operator's
// decision to the agent and returns the session to running.
func TestPermissionRequestFlow(t *testing.T) {
	git := newFakeGit()
	port := newFakePort()
	cp := &fakeControlPlane{}
	m, bus := newTestManager(t, git, port, cp)

	permCh := subscribeT(t, bus, events.TypeAgentPermissionRequest)

	sess, err := m.CreateSession(context.Background(), CreateParams{
		ProjectName: "demo",
		ProjectPath: "/repo/demo",
		AgentName:   "fake",
	})
	require.NoError(t, err)
	channelID := sess.Record().ChannelID

	port.out <- agent.Event{
		"type":       "permission_request",
		"request_id": "R1",
		"tool_name":  "Bash",
		"tool_input": map[string]interface{}{"command": "rm"},
	}
	permEv := waitForEvent(t, permCh).(events.AgentPermissionRequest)
	require.Equal(t, "R1", permEv.RequestID)
	require.Equal(t, "Bash", permEv.ToolName)

	require.Eventually(t, func() bool {
		return sess.Record().State == StateWaitingPermission
	}, time.Second, 10*time.Millisecond)

	require.True(t, m.PermissionResponse(context.Background(), channelID, "R1", true))
	require.Len(t, port.permResponses, 1)
	require.Equal(t, "R1", port.permResponses[0].requestID)
	require.True(t, port.permResponses[0].allowed)
	require.Equal(t, StateRunning, sess.Record().State)
}

// TestCompleteSessionMergeHappyPath drives SPEC_FULL.md §8 scenario 3: a
// clean rebase removes the worktree, fast-forwards main, deletes the
// branch, and drops the session from both the live table and the
// persisted one.
func TestCompleteSessionMergeHappyPath(t *testing.T) {
	git := newFakeGit()
	git.on("diff --cached --name-status", "M file.txt\n", nil)
	port := newFakePort()
	cp := &fakeControlPlane{}
	m, _ := newTestManager(t, git, port, cp)

	sess, err := m.CreateSession(context.Background(), CreateParams{
		ProjectName: "demo",
		ProjectPath: "/repo/demo",
		AgentName:   "fake",
	})
	require.NoError(t, err)
	channelID := sess.Record().ChannelID

	merged, _ := m.CompleteSession(context.Background(), channelID, nil)
	require.True(t, merged)

	_, ok := m.Get(channelID)
	require.False(t, ok)

	records, err := loadRecords(m.sessionsFile())
	require.NoError(t, err)
	for _, r := range records {
		require.NotEqual(t, channelID, r.ChannelID)
	}

	// SPEC_FULL.md §4.2 requires aborting any partial merge on main before
	// fast-forwarding it; guard the ordering against the two git calls.
	abortIdx, ffIdx := -1, -1
	for i, c := range git.calls {
		switch {
		case abortIdx == -1 && len(c) >= len("merge --abort") && c[:len("merge --abort")] == "merge --abort":
			abortIdx = i
		case ffIdx == -1 && len(c) >= len("merge --ff-only") && c[:len("merge --ff-only")] == "merge --ff-only":
			ffIdx = i
		}
	}
	require.NotEqual(t, -1, abortIdx, "expected a merge --abort call before the fast-forward")
	require.NotEqual(t, -1, ffIdx, "expected a merge --ff-only call")
	require.Less(t, abortIdx, ffIdx, "merge --abort must run before merge --ff-only")
}

// TestRecoverSessionsResumesWithSameAgentSessionID drives SPEC_FULL.md §8
// scenario 5: a fresh Manager pointed at the same state dir restores the
// persisted session and starts its agent with exactly the persisted
// agent_session_id, in resume mode.
func TestRecoverSessionsResumesWithSameAgentSessionID(t *testing.T) {
	git := newFakeGit()
	port := newFakePort()
	cp := &fakeControlPlane{}
	m, _ := newTestManager(t, git, port, cp)

	workspacePath := t.TempDir()
	rec := Record{
		Name:           "demo-260101-000000",
		ProjectName:    "demo",
		ProjectPath:    "/repo/demo",
		WorkspacePath:  workspacePath,
		ChannelID:      "ch-demo-1",
		Branch:         "afk/demo-260101-000000",
		AgentName:      "fake",
		AgentSessionID: "S1",
		State:          StateSuspended,
	}
	require.NoError(t, saveRecords(m.sessionsFile(), []Record{rec}))

	projects := &fakeProjectStore{paths: map[string]string{"demo": "/repo/demo"}}
	require.NoError(t, m.RecoverSessions(context.Background(), projects))

	recovered, ok := m.Get("ch-demo-1")
	require.True(t, ok)
	require.Equal(t, workspacePath, recovered.Record().WorkspacePath)
	require.Equal(t, "S1", recovered.Record().AgentSessionID)
	require.Equal(t, []string{"S1"}, port.startIDs)
}

// TestCleanupOrphanWorktreesSkipsRecovered drives SPEC_FULL.md §8 scenario
// 6: of two afk/-branch worktrees on disk, the one backing a recovered
// session survives cleanup and the other is removed.
func TestCleanupOrphanWorktreesSkipsRecovered(t *testing.T) {
	git := newFakeGit()
	port := newFakePort()
	cp := &fakeControlPlane{}
	m, _ := newTestManager(t, git, port, cp)

	worktreeA := filepath.Join(m.cfg.WorktreeBaseDir, "demo-a")
	worktreeB := filepath.Join(m.cfg.WorktreeBaseDir, "demo-b")
	require.NoError(t, os.MkdirAll(worktreeA, 0o755))
	git.on("worktree list --porcelain", fmt.Sprintf(
		"worktree %s\nHEAD aaaa\nbranch refs/heads/afk/a\n\nworktree %s\nHEAD bbbb\nbranch refs/heads/afk/b\n",
		worktreeA, worktreeB,
	), nil)

	rec := Record{
		Name:           "demo-a",
		ProjectName:    "demo",
		ProjectPath:    "/repo/demo",
		WorkspacePath:  worktreeA,
		ChannelID:      "ch-demo-a",
		Branch:         "afk/a",
		AgentName:      "fake",
		AgentSessionID: "S-a",
		State:          StateIdle,
	}
	require.NoError(t, saveRecords(m.sessionsFile(), []Record{rec}))

	projects := &fakeProjectStore{paths: map[string]string{"demo": "/repo/demo"}}
	require.NoError(t, m.RecoverSessions(context.Background(), projects))

	m.CleanupOrphanWorktrees(context.Background(), projects)

	var removedB, removedA bool
	for _, c := range git.calls {
		if c == fmt.Sprintf("worktree remove --force %s ", worktreeB) {
			removedB = true
		}
		if c == fmt.Sprintf("worktree remove --force %s ", worktreeA) {
			removedA = true
		}
	}
	require.True(t, removedB, "expected orphan worktree b to be removed")
	require.False(t, removedA, "recovered worktree a must not be removed")
}

func subscribeT(t *testing.T, bus *events.Bus, typ events.Type) <-chan events.Event {
	t.Helper()
	sub, ch, err := bus.Subscribe(typ, 8)
	require.NoError(t, err)
	t.Cleanup(func() { bus.Unsubscribe(sub) })
	return ch
}
