// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"io"
	"os"
	"syscall"
)

// setpgidAttr puts a spawned child in its own process group so Stop can
// signal the whole group (the child plus any of its own descendants)
// instead of just the direct child. Grounded on service.Process's exec
// setup in the teacher.
func setpgidAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// openStderrSink returns a writer for a child's stderr and a close
// function to call once the child has exited. An empty path sinks to the
// supervisor's own stderr and the close function is a no-op.
func openStderrSink(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
