// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/confighub/cub-deploy/pkg/apply"
	"github.com/confighub/cub-deploy/pkg/manifest"
	"github.com/confighub/cub-deploy/pkg/tracker"
)

// logDir holds one file per logged run.
const logDir = ".cub-deploy/logs"

// DeployLogger logs deploy operations to a file
type DeployLogger struct {
	file      *os.File
	startTime time.Time
	command   string
}

// NewDeployLogger creates a new logger for a deploy operation
func NewDeployLogger(command string) (*DeployLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02-150405")
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-%s.log", command, timestamp))

	file, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	logger := &DeployLogger{
		file:      file,
		startTime: time.Now(),
		command:   command,
	}
	logger.writeHeader()
	return logger, nil
}

func (l *DeployLogger) writeHeader() {
	l.file.WriteString(strings.Repeat("=", 80) + "\n")
	l.file.WriteString(fmt.Sprintf("cub-deploy: %s\n", l.command))
	l.file.WriteString(fmt.Sprintf("Started: %s\n", l.startTime.Format(time.RFC3339)))
	l.file.WriteString(strings.Repeat("=", 80) + "\n\n")
}

// Log writes a message to the log file
func (l *DeployLogger) Log(format string, args ...interface{}) {
	if l == nil || l.file == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05")
	msg := fmt.Sprintf(format, args...)
	l.file.WriteString(fmt.Sprintf("[%s] %s\n", timestamp, msg))
}

// Section writes a section header
func (l *DeployLogger) Section(title string) {
	if l == nil || l.file == nil {
		return
	}
	l.file.WriteString(fmt.Sprintf("\n--- %s ---\n", title))
}

// LogDocuments writes the parsed manifest
func (l *DeployLogger) LogDocuments(docs manifest.Set) {
	if l == nil || l.file == nil {
		return
	}
	l.Section("MANIFEST")
	l.Log("Found %d documents", len(docs))
	for _, d := range docs {
		if d.Namespace != "" {
			l.Log("  %s (namespace=%s)", d.Key(), d.Namespace)
		} else {
			l.Log("  %s", d.Key())
		}
	}
}

// LogResult writes the apply result
func (l *DeployLogger) LogResult(res apply.Result) {
	if l == nil || l.file == nil {
		return
	}
	l.Section("RESULT")
	l.Log("%s", res.Message)
	for _, r := range res.Resources {
		l.Log("  %s %s", r.Key(), r.Action)
	}
	for _, e := range res.Errors {
		l.Log("ERROR: %s", e)
	}
}

// LogSummary writes the deployment summary
func (l *DeployLogger) LogSummary(s *apply.Summary) {
	if l == nil || l.file == nil || s == nil {
		return
	}
	l.Section("SUMMARY")
	l.Log("Resources: %d", len(s.Resources))
	l.Log("Duration: %s", s.Duration.Round(time.Millisecond))
	l.Log("Zero downtime: %v", s.ZeroDowntime)
	l.Log("Pods updated: %d", s.PodsUpdated)
	l.Log("Pods restarted: %d", s.PodsRestarted)
}

// LogTracking writes the final health of tracked resources
func (l *DeployLogger) LogTracking(snap tracker.Snapshot) {
	if l == nil || l.file == nil {
		return
	}
	l.Section("HEALTH")
	if snap.Outcome != tracker.OutcomeNone {
		l.Log("Outcome: %s", snap.Outcome)
	}
	for _, r := range snap.Resources {
		st, ok := snap.Statuses[r.Key()]
		if !ok {
			l.Log("  %s unknown", r.Key())
			continue
		}
		l.Log("  %s %s %s %s", r.Key(), st.Phase, st.Ready, st.Message)
	}
}

// Close closes the log file and prints path
func (l *DeployLogger) Close() string {
	if l == nil || l.file == nil {
		return ""
	}

	l.file.WriteString(fmt.Sprintf("\n\nCompleted: %s\n", time.Now().Format(time.RFC3339)))
	l.file.WriteString(fmt.Sprintf("Duration: %s\n", time.Since(l.startTime).Round(time.Millisecond)))

	path := l.file.Name()
	l.file.Close()
	return path
}
