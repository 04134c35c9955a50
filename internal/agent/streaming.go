// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/Donghh0221/afk/internal/afklog"
	"github.com/Donghh0221/afk/internal/pidtracker"
)

// StreamingConfig parameterizes a StreamingAdapter: the binary to invoke
// and the flags it expects for stream-json I/O and conversation resume.
type StreamingConfig struct {
	// Command is the executable name, e.g. "claude".
	Command string
	// BaseArgs are flags always passed (output/input format, permission
	// prompt wiring). Resume flags are appended by Start when a session
	// id is supplied.
	BaseArgs []string
	// ResumeFlag is the flag name used to resume a prior conversation by
	// id, e.g. "--resume".
	ResumeFlag string
	// UsePTY starts the child attached to a pseudo-terminal instead of
	// plain pipes, for agent CLIs that detect a TTY and only emit
	// colored/interactive output when one is present.
	UsePTY bool
}

// StreamingAdapter runs a single persistent child process and exchanges
// newline-delimited JSON over its stdin/stdout. Grounded directly on the
// teacher's claude.Session: a generation counter distinguishes a process
// that exited intentionally (Stop called, or a newer Start superseded it)
// from one that crashed, and a background readLoop fans decoded lines
// into a single output channel.
type StreamingAdapter struct {
	cfg     StreamingConfig
	tracker *pidtracker.Tracker
	log     *afklog.Logger

	mu            sync.Mutex
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	cancel        context.CancelFunc
	sessionID     string
	alive         bool
	stopRequested bool
	gen           uint64
	exited        chan struct{}

	out chan Event
}

// NewStreamingAdapter creates an adapter for one session. tracker may be
// nil to skip subprocess tracking (tests).
func NewStreamingAdapter(cfg StreamingConfig, tracker *pidtracker.Tracker) *StreamingAdapter {
	return &StreamingAdapter{
		cfg:     cfg,
		tracker: tracker,
		log:     afklog.New("agent:streaming"),
		out:     make(chan Event, 256),
	}
}

func (a *StreamingAdapter) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

func (a *StreamingAdapter) IsAlive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.alive
}

func (a *StreamingAdapter) ReadResponses() <-chan Event { return a.out }

func (a *StreamingAdapter) Start(ctx context.Context, workingDir, sessionID, stderrLogPath string) error {
	a.mu.Lock()
	if a.alive {
		a.mu.Unlock()
		return nil
	}
	gen := a.gen + 1
	a.gen = gen
	a.stopRequested = false
	a.mu.Unlock()

	args := append([]string{}, a.cfg.BaseArgs...)
	if sessionID != "" {
		args = append(args, a.cfg.ResumeFlag, sessionID)
	}

	cmdCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cmdCtx, a.cfg.Command, args...)
	cmd.Dir = workingDir
	cmd.Env = scrubbedEnviron(os.Environ())
	cmd.SysProcAttr = setpgidAttr()

	stderrWriter, closeStderr, err := openStderrSink(stderrLogPath)
	if err != nil {
		cancel()
		return fmt.Errorf("agent stderr sink: %w", err)
	}

	var stdinPipe io.WriteCloser
	var stdoutPipe io.Reader

	if a.cfg.UsePTY {
		cmd.Env = append(cmd.Env, "TERM=xterm-256color")
		ptmx, err := pty.Start(cmd)
		if err != nil {
			cancel()
			closeStderr()
			return fmt.Errorf("agent pty start: %w", err)
		}
		stdinPipe = ptmx
		stdoutPipe = io.TeeReader(ptmx, stderrWriter)
	} else {
		cmd.Stderr = stderrWriter

		stdinPipe, err = cmd.StdinPipe()
		if err != nil {
			cancel()
			closeStderr()
			return fmt.Errorf("agent stdin pipe: %w", err)
		}
		stdoutPipe, err = cmd.StdoutPipe()
		if err != nil {
			cancel()
			closeStderr()
			return fmt.Errorf("agent stdout pipe: %w", err)
		}

		if err := cmd.Start(); err != nil {
			cancel()
			closeStderr()
			return fmt.Errorf("agent start: %w", err)
		}
	}

	if a.tracker != nil {
		a.tracker.Track(cmd.Process.Pid)
	}

	exited := make(chan struct{})

	a.mu.Lock()
	a.cmd = cmd
	a.stdin = stdinPipe
	a.cancel = cancel
	a.alive = true
	a.exited = exited
	a.mu.Unlock()

	go a.readLoop(stdoutPipe, cmd, gen, closeStderr, exited)

	return nil
}

func (a *StreamingAdapter) readLoop(stdout io.Reader, cmd *exec.Cmd, gen uint64, closeStderr func(), exited chan struct{}) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			a.log.Warnf("malformed agent event line: %v", err)
			continue
		}

		if sid, ok := ev["session_id"].(string); ok && sid != "" {
			a.mu.Lock()
			a.sessionID = sid
			a.mu.Unlock()
		}

		select {
		case a.out <- ev:
		default:
			a.log.Warnf("dropped agent event: output queue full")
		}
	}

	cmd.Wait()
	closeStderr()
	if a.tracker != nil && cmd.Process != nil {
		a.tracker.Untrack(cmd.Process.Pid)
	}

	a.mu.Lock()
	stale := a.gen != gen
	crashed := false
	if !stale {
		a.alive = false
		a.cmd = nil
		a.stdin = nil
		a.cancel = nil
		crashed = !a.stopRequested
	}
	a.mu.Unlock()
	close(exited)
	if stale {
		return
	}

	if crashed {
		select {
		case a.out <- Event{"type": "agent_crash"}:
		default:
		}
	}
	close(a.out)
}

func (a *StreamingAdapter) SendMessage(ctx context.Context, text string) error {
	msg := map[string]interface{}{
		"type": "user",
		"message": map[string]interface{}{
			"role": "user",
			"content": []map[string]interface{}{
				{"type": "text", "text": text},
			},
		},
	}
	return a.writeStdin(msg)
}

func (a *StreamingAdapter) SendPermissionResponse(ctx context.Context, requestID string, allowed bool) error {
	msg := map[string]interface{}{
		"type":    "permission_response",
		"id":      requestID,
		"allowed": allowed,
	}
	return a.writeStdin(msg)
}

func (a *StreamingAdapter) writeStdin(msg interface{}) error {
	a.mu.Lock()
	stdin := a.stdin
	a.mu.Unlock()
	if stdin == nil {
		return fmt.Errorf("agent is not running")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = stdin.Write(data)
	return err
}

func (a *StreamingAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.alive {
		a.mu.Unlock()
		return nil
	}
	a.stopRequested = true
	cmd := a.cmd
	exited := a.exited
	a.mu.Unlock()

	if cmd == nil || cmd.Process == nil || exited == nil {
		return nil
	}

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		pgid = cmd.Process.Pid
	}
	syscall.Kill(-pgid, syscall.SIGTERM)

	select {
	case <-exited:
	case <-time.After(stopGracePeriod):
		syscall.Kill(-pgid, syscall.SIGKILL)
		<-exited
	}
	return nil
}
