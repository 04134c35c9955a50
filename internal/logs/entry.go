// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package logs provides a small ring buffer for tailing a process's own
// log output.
package logs

// LogEntry is a single buffered log line.
type LogEntry struct {
	// Raw is the original unparsed line.
	Raw string
	// Source identifies which logger produced this entry.
	Source string
	// Sequence is a monotonically increasing counter for ordering.
	Sequence uint64
}
