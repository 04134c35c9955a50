// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package afklog provides the supervisor's logging convention: a thin
// wrapper over the standard library's log package with a per-component
// prefix, matching the "[trellis] message" style used throughout the
// process and service packages this repo is built from.
package afklog

import (
	"io"
	"log"
	"os"
	"strings"

	"github.com/Donghh0221/afk/internal/logs"
)

// tail is a process-wide ring buffer every Logger writes through, so the
// HTTP control plane's GET /api/logs and /api/logs/stream can read back
// the supervisor's own process log without the caller owning a file
// handle. Adapted from the teacher's internal/logs.Buffer, originally
// built to multiplex many services' logs; here it holds a single
// source, "supervisor".
var tail = logs.NewBuffer(5000)

// tailWriter appends every write as one log entry to the shared ring
// buffer, alongside the normal os.Stderr destination.
type tailWriter struct{}

func (tailWriter) Write(p []byte) (int, error) {
	tail.Add(logs.LogEntry{
		Raw:    strings.TrimRight(string(p), "\n"),
		Source: "supervisor",
	})
	return len(p), nil
}

// Tail returns up to n of the most recent log lines across every
// Logger, oldest first. n <= 0 returns everything buffered.
func Tail(n int) []string {
	entries := tail.Get(n)
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Raw
	}
	return lines
}

// Logger writes prefixed lines to the standard logger.
type Logger struct {
	prefix string
	std    *log.Logger
}

// New returns a Logger that prefixes every line with "[component] ".
func New(component string) *Logger {
	return &Logger{
		prefix: "[" + component + "] ",
		std:    log.New(io.MultiWriter(os.Stderr, tailWriter{}), "", log.LstdFlags),
	}
}

func (l *Logger) Printf(format string, args ...interface{}) {
	l.std.Printf(l.prefix+format, args...)
}

func (l *Logger) Println(args ...interface{}) {
	all := append([]interface{}{l.prefix}, args...)
	l.std.Println(all...)
}

// Warnf logs a warning-level line. The core never distinguishes log
// levels structurally (see SPEC_FULL.md §10); this exists only so call
// sites read clearly.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.Printf("WARN: "+format, args...)
}

// Errorf logs an error-level line.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Printf("ERROR: "+format, args...)
}

// Sub returns a new Logger with an additional suffix appended to the
// component prefix, e.g. New("session").Sub("p-260731-120000").
func (l *Logger) Sub(suffix string) *Logger {
	return &Logger{
		prefix: l.prefix[:len(l.prefix)-2] + ":" + suffix + "] ",
		std:    l.std,
	}
}
