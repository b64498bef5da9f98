// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package review holds the AI review of a manifest and the issue selection
// that drives auto-fix.
package review

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Severity is the canonical severity of a review issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ParseSeverity normalizes a severity reported by the review service.
// Unknown values are treated as low.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Rank orders severities, highest first (critical = 0).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	default:
		return 3
	}
}

// Level is the display level a severity maps to.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// DisplayLevel is the single mapping from review severity to display level.
func DisplayLevel(s Severity) Level {
	switch s {
	case SeverityCritical, SeverityHigh:
		return LevelError
	case SeverityMedium:
		return LevelWarning
	default:
		return LevelInfo
	}
}

// Label returns the severity in title case for display.
func (s Severity) Label() string {
	// Casers are stateful; never share one between goroutines.
	return cases.Title(language.English).String(string(s))
}

// Issue is one finding of a review.
type Issue struct {
	Severity   Severity `json:"severity"`
	Type       string   `json:"type"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Result is the outcome of one review call. A new review or an auto-fix
// replaces it; results are never merged.
type Result struct {
	Score             int      `json:"score"`
	Issues            []Issue  `json:"issues"`
	Suggestions       []string `json:"suggestions,omitempty"`
	SecurityScore     int      `json:"securityScore"`
	BestPracticeScore int      `json:"bestPracticeScore"`
}

// CountBySeverity returns issue counts keyed by severity.
func (r *Result) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	if r == nil {
		return counts
	}
	for _, is := range r.Issues {
		counts[is.Severity]++
	}
	return counts
}

// Fix is the outcome of an auto-fix call.
type Fix struct {
	FixedText      string `json:"fixedText"`
	ChangesSummary string `json:"changesSummary"`
}

// Service is the remote AI review backend.
type Service interface {
	// Review scores manifest text and lists issues. namespace may be empty.
	Review(ctx context.Context, text, namespace string) (*Result, error)

	// AutoFix rewrites text to address the given issues.
	AutoFix(ctx context.Context, text string, issues []Issue, namespace string) (*Fix, error)
}
