// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Donghh0221/afk/internal/afkerr"
	"github.com/Donghh0221/afk/internal/afklog"
	"github.com/Donghh0221/afk/internal/agent"
	"github.com/Donghh0221/afk/internal/events"
	"github.com/Donghh0221/afk/internal/workspace"
)

// ControlPlane is the narrow slice of a control plane the Session Manager
// needs: creating a channel for an unmanaged session and closing one on
// teardown. Concrete control planes (HTTP/SSE, CLI) implement this plus
// their own much larger outward-facing surface.
type ControlPlane interface {
	CreateChannel(ctx context.Context, sessionName string) (channelID string, err error)
	CloseChannel(ctx context.Context, channelID string) error
}

// ProjectStore is the narrow slice of the project registry recovery and
// orphan cleanup need.
type ProjectStore interface {
	Path(name string) (string, bool)
	Names() []string
}

// TemplateScaffolder copies a named template's files into a fresh
// worktree. Optional: a nil Scaffolder means templates are unsupported.
type TemplateScaffolder interface {
	Scaffold(ctx context.Context, template, worktreePath string) error
}

// CreateParams are the inputs to CreateSession.
type CreateParams struct {
	ProjectName string
	ProjectPath string
	ChannelID   string // empty means the manager asks the control plane for one
	AgentName   string
	Template    string
	Verbose     bool
}

// Config configures a Manager.
type Config struct {
	StateDir         string // holds sessions.json
	LogDir           string // holds per-session raw/stderr logs
	WorktreeBaseDir  string // parent directory worktrees are created under
	DefaultBranch    string // the project's integration branch, e.g. "main"
	AutoApproveTools []string
}

// Manager owns every active session and the state machine governing it.
// Grounded on internal/claude/manager.go's Manager, generalized from a
// claude-specific session table to the Agent Port abstraction and the
// richer create/stop/complete lifecycle SPEC_FULL.md §4.1 names.
type Manager struct {
	cfg          Config
	bus          *events.Bus
	workspace    *workspace.Manager
	registry     *agent.Registry
	controlPlane ControlPlane
	scaffolder   TemplateScaffolder
	log          *afklog.Logger

	mu           sync.RWMutex
	sessions     map[string]*Session // keyed by channel id
	capabilities []CleanupFunc
	autoApprove  map[string]bool
}

// NewManager creates a session manager. scaffolder may be nil.
func NewManager(cfg Config, bus *events.Bus, ws *workspace.Manager, registry *agent.Registry, controlPlane ControlPlane, scaffolder TemplateScaffolder) *Manager {
	approve := make(map[string]bool, len(cfg.AutoApproveTools))
	for _, name := range cfg.AutoApproveTools {
		approve[name] = true
	}
	if cfg.DefaultBranch == "" {
		cfg.DefaultBranch = "main"
	}
	return &Manager{
		cfg:          cfg,
		bus:          bus,
		workspace:    ws,
		registry:     registry,
		controlPlane: controlPlane,
		scaffolder:   scaffolder,
		log:          afklog.New("session"),
		sessions:     make(map[string]*Session),
		autoApprove:  approve,
	}
}

// SetAutoApprove replaces the set of tool names auto-approved without a
// control-plane round trip. Safe to call while sessions are running —
// config.Watcher calls this on every debounced config file reload.
func (m *Manager) SetAutoApprove(tools []string) {
	approve := make(map[string]bool, len(tools))
	for _, name := range tools {
		approve[name] = true
	}
	m.mu.Lock()
	m.autoApprove = approve
	m.mu.Unlock()
}

// AttachCapability registers a cleanup callback invoked for every
// session's channel id on stop/complete, per SPEC_FULL.md §4.7.
func (m *Manager) AttachCapability(fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capabilities = append(m.capabilities, fn)
}

func (m *Manager) sessionsFile() string { return filepath.Join(m.cfg.StateDir, "sessions.json") }

// Get returns the live session for a channel id, if any.
func (m *Manager) Get(channelID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[channelID]
	return s, ok
}

// List returns every active session's record.
func (m *Manager) List() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Record())
	}
	return out
}

// CreateSession implements SPEC_FULL.md §4.1's create_session operation.
func (m *Manager) CreateSession(ctx context.Context, params CreateParams) (*Session, error) {
	if !m.workspace.IsRepo(ctx, params.ProjectPath) {
		return nil, afkerr.ErrNotAVCSRepo
	}

	sessionName := fmt.Sprintf("%s-%s", strings.ToLower(params.ProjectName), time.Now().UTC().Format("060102-150405"))
	branch := "afk/" + sessionName
	worktreePath := filepath.Join(m.cfg.WorktreeBaseDir, sessionName)

	if _, err := os.Stat(worktreePath); err == nil {
		m.log.Warnf("stale worktree path %s found, removing before create", worktreePath)
		m.workspace.RemoveWorktree(ctx, params.ProjectPath, worktreePath, branch)
		os.RemoveAll(worktreePath)
	}

	if err := m.workspace.CreateWorktree(ctx, params.ProjectPath, worktreePath, branch); err != nil {
		return nil, err
	}

	if params.Template != "" {
		if m.scaffolder == nil {
			m.workspace.RemoveWorktree(ctx, params.ProjectPath, worktreePath, branch)
			return nil, afkerr.ErrTemplateUnknown
		}
		if err := m.scaffolder.Scaffold(ctx, params.Template, worktreePath); err != nil {
			m.workspace.RemoveWorktree(ctx, params.ProjectPath, worktreePath, branch)
			return nil, fmt.Errorf("scaffold template %q: %w", params.Template, err)
		}
	}

	rawLogPath := filepath.Join(m.cfg.LogDir, sessionName+".jsonl")
	stderrLogPath := filepath.Join(m.cfg.LogDir, sessionName+".stderr.log")
	if err := os.MkdirAll(m.cfg.LogDir, 0o755); err != nil {
		m.workspace.RemoveWorktree(ctx, params.ProjectPath, worktreePath, branch)
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	channelID := params.ChannelID
	managedChannel := false
	if channelID == "" {
		var err error
		channelID, err = m.controlPlane.CreateChannel(ctx, sessionName)
		if err != nil {
			m.workspace.RemoveWorktree(ctx, params.ProjectPath, worktreePath, branch)
			return nil, fmt.Errorf("create channel: %w", err)
		}
		managedChannel = true
	}

	port, err := m.registry.New(params.AgentName)
	if err != nil {
		m.workspace.RemoveWorktree(ctx, params.ProjectPath, worktreePath, branch)
		return nil, &afkerr.AgentStartupError{Agent: params.AgentName, Err: err}
	}

	if err := port.Start(ctx, worktreePath, "", stderrLogPath); err != nil {
		m.workspace.RemoveWorktree(ctx, params.ProjectPath, worktreePath, branch)
		return nil, &afkerr.AgentStartupError{Agent: params.AgentName, Err: err}
	}

	sess := &Session{
		record: Record{
			Name:           sessionName,
			ProjectName:    params.ProjectName,
			ProjectPath:    params.ProjectPath,
			WorkspacePath:  worktreePath,
			ChannelID:      channelID,
			Branch:         branch,
			AgentName:      params.AgentName,
			State:          StateIdle,
			Verbose:        params.Verbose,
			ManagedChannel: managedChannel,
			Template:       params.Template,
			CreatedAt:      time.Now().UTC(),
		},
		port:          port,
		stderrLogPath: stderrLogPath,
		rawLogPath:    rawLogPath,
	}

	readerCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel

	m.mu.Lock()
	m.sessions[channelID] = sess
	m.mu.Unlock()

	m.persist()

	m.bus.Publish(ctx, events.NewSessionCreated(channelID, sessionName, params.ProjectName, params.ProjectPath, worktreePath, params.Verbose))

	go m.readLoop(readerCtx, sess)

	return sess, nil
}

// StopSession implements SPEC_FULL.md §4.1's stop_session operation.
func (m *Manager) StopSession(ctx context.Context, channelID string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[channelID]
	if ok {
		delete(m.sessions, channelID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	sess.setState(StateStopped)
	sess.cancel()
	m.runCleanupCallbacks(channelID)

	if err := sess.port.Stop(ctx); err != nil {
		m.log.Warnf("agent stop for session %s: %v", sess.Name(), err)
	}

	rec := sess.Record()
	rec.AgentSessionID = sess.port.SessionID()
	m.workspace.RemoveWorktree(ctx, rec.ProjectPath, rec.WorkspacePath, rec.Branch)

	m.persist()

	if rec.ManagedChannel {
		if err := m.controlPlane.CloseChannel(ctx, channelID); err != nil {
			m.log.Warnf("close channel %s: %v", channelID, err)
		}
	}
	return true
}

// CompleteSession implements SPEC_FULL.md §4.1's complete_session merge
// workflow.
func (m *Manager) CompleteSession(ctx context.Context, channelID string, messageFn func(nameStatus string) string) (bool, string) {
	m.mu.RLock()
	sess, ok := m.sessions[channelID]
	m.mu.RUnlock()
	if !ok {
		return false, "session not found"
	}

	m.runCleanupCallbacks(channelID)

	if err := sess.port.Stop(ctx); err != nil {
		m.log.Warnf("agent stop for session %s: %v", sess.Name(), err)
	}

	rec := sess.Record()
	agentSessionID := sess.port.SessionID()

	if _, _, err := m.workspace.CommitAll(ctx, rec.WorkspacePath, messageFn); err != nil {
		m.log.Warnf("commit_all for session %s: %v", rec.Name, err)
	}

	merged, detail, err := m.workspace.RebaseThenFastForward(ctx, rec.ProjectPath, m.cfg.DefaultBranch, rec.Branch, rec.WorkspacePath)
	if err != nil || !merged {
		m.log.Warnf("complete_session rebase failed for %s: %v", rec.Name, err)
		if detail == "" && err != nil {
			detail = err.Error()
		}
		if startErr := sess.port.Start(ctx, rec.WorkspacePath, agentSessionID, sess.stderrLogPath); startErr != nil {
			m.log.Errorf("failed to restart agent for session %s after rebase failure: %v", rec.Name, startErr)
		}
		sess.mu.Lock()
		sess.record.AgentSessionID = agentSessionID
		sess.mu.Unlock()
		m.persist()
		return false, detail
	}

	m.mu.Lock()
	delete(m.sessions, channelID)
	m.mu.Unlock()
	m.persist()

	if rec.ManagedChannel {
		if err := m.controlPlane.CloseChannel(ctx, channelID); err != nil {
			m.log.Warnf("close channel %s: %v", channelID, err)
		}
	}
	return true, detail
}

// SendMessage pushes a user turn to the session on channelID.
func (m *Manager) SendMessage(ctx context.Context, channelID, text string) bool {
	sess, ok := m.Get(channelID)
	if !ok {
		return false
	}
	if err := sess.port.SendMessage(ctx, text); err != nil {
		m.log.Warnf("send_message to session %s: %v", sess.Name(), err)
		return false
	}
	sess.setState(StateRunning)
	return true
}

// PermissionResponse acknowledges a pending permission prompt for channelID.
func (m *Manager) PermissionResponse(ctx context.Context, channelID, requestID string, allowed bool) bool {
	sess, ok := m.Get(channelID)
	if !ok {
		return false
	}
	if err := sess.port.SendPermissionResponse(ctx, requestID, allowed); err != nil {
		m.log.Warnf("permission_response to session %s: %v", sess.Name(), err)
		return false
	}
	sess.setState(StateRunning)
	return true
}

func (m *Manager) runCleanupCallbacks(channelID string) {
	m.mu.RLock()
	callbacks := append([]CleanupFunc{}, m.capabilities...)
	m.mu.RUnlock()
	for _, fn := range callbacks {
		if err := fn(channelID); err != nil {
			m.log.Warnf("capability cleanup for channel %s: %v", channelID, err)
		}
	}
}

func (m *Manager) persist() {
	m.mu.RLock()
	records := make([]Record, 0, len(m.sessions))
	for _, s := range m.sessions {
		records = append(records, s.Record())
	}
	m.mu.RUnlock()

	if err := saveRecords(m.sessionsFile(), records); err != nil {
		m.log.Errorf("persist sessions: %v", err)
	}
}

// RecoverSessions reloads the persisted table at startup, skipping
// entries whose workspace or project no longer exists, and restarts an
// agent for every survivor in resume mode. Recovery runs concurrently
// across entries since each one's workspace/agent-start I/O is
// independent (SPEC_FULL.md §4.1).
func (m *Manager) RecoverSessions(ctx context.Context, projects ProjectStore) error {
	records, err := loadRecords(m.sessionsFile())
	if err != nil {
		return fmt.Errorf("load sessions for recovery: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	var mu sync.Mutex
	recovered := make([]*Session, 0, len(records))

	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			if _, err := os.Stat(rec.WorkspacePath); err != nil {
				m.log.Warnf("skipping recovery of %s: workspace missing: %v", rec.Name, err)
				return nil
			}
			if _, ok := projects.Path(rec.ProjectName); !ok {
				m.log.Warnf("skipping recovery of %s: project %q unregistered", rec.Name, rec.ProjectName)
				return nil
			}
			if rec.AgentSessionID == "" {
				m.log.Warnf("skipping recovery of %s: no agent session id", rec.Name)
				return nil
			}

			port, err := m.registry.New(rec.AgentName)
			if err != nil {
				m.log.Warnf("skipping recovery of %s: %v", rec.Name, err)
				return nil
			}
			stderrLogPath := filepath.Join(m.cfg.LogDir, rec.Name+".stderr.log")
			if err := port.Start(gctx, rec.WorkspacePath, rec.AgentSessionID, stderrLogPath); err != nil {
				m.log.Warnf("failed to resume session %s: %v", rec.Name, err)
				return nil
			}

			readerCtx, cancel := context.WithCancel(context.Background())
			sess := &Session{record: rec, port: port, cancel: cancel, stderrLogPath: stderrLogPath,
				rawLogPath: filepath.Join(m.cfg.LogDir, rec.Name+".jsonl")}

			mu.Lock()
			recovered = append(recovered, sess)
			mu.Unlock()

			go m.readLoop(readerCtx, sess)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	m.mu.Lock()
	for _, sess := range recovered {
		m.sessions[sess.Record().ChannelID] = sess
	}
	m.mu.Unlock()

	m.log.Printf("recovered %d of %d persisted sessions", len(recovered), len(records))
	m.persist()
	return nil
}

// CleanupOrphanWorktrees removes every afk/-branch worktree that is not
// the workspace of a currently active session. Must run after
// RecoverSessions so recovered workspaces aren't reaped.
func (m *Manager) CleanupOrphanWorktrees(ctx context.Context, projects ProjectStore) {
	m.mu.RLock()
	active := make(map[string]bool, len(m.sessions))
	for _, s := range m.sessions {
		active[s.Record().WorkspacePath] = true
	}
	m.mu.RUnlock()

	for _, name := range projects.Names() {
		path, ok := projects.Path(name)
		if !ok {
			continue
		}
		entries, err := m.workspace.ListAFKWorktrees(ctx, path)
		if err != nil {
			m.log.Warnf("list worktrees for project %s: %v", name, err)
			continue
		}
		for _, e := range entries {
			if active[e.Path] {
				continue
			}
			m.log.Printf("removing orphan worktree %s (branch %s)", e.Path, e.Branch)
			m.workspace.RemoveWorktree(ctx, path, e.Path, e.Branch)
		}
	}
}

// SuspendAllSessions performs a graceful shutdown: every session's reader
// is cancelled, cleanup callbacks run, the agent is stopped, and the
// session is marked suspended and persisted. Workspaces are left intact
// so a later RecoverSessions can resume them.
func (m *Manager) SuspendAllSessions(ctx context.Context) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, sess := range sessions {
		rec := sess.Record()
		sess.cancel()
		m.runCleanupCallbacks(rec.ChannelID)
		if err := sess.port.Stop(ctx); err != nil {
			m.log.Warnf("agent stop during suspend for %s: %v", rec.Name, err)
		}
		sess.mu.Lock()
		sess.record.AgentSessionID = sess.port.SessionID()
		sess.record.State = StateSuspended
		sess.mu.Unlock()
	}

	m.persist()
}
