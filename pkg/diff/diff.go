// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package diff produces side-by-side line comparisons between deployed and
// local manifest text.
//
// The comparison is positional: line i of the old text is paired with line i
// of the new text. A single inserted line therefore shows every following
// line as removed/added rather than as one clean insertion. Callers that need
// a minimal edit script should use Unified instead.
package diff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// LineType classifies one row of a side-by-side diff.
type LineType string

const (
	Unchanged LineType = "unchanged"
	Added     LineType = "added"
	Removed   LineType = "removed"
)

// Line is one row in a diff column. LineNumber is 1-based on the side the
// content came from and zero for padding rows.
type Line struct {
	Type       LineType `json:"type"`
	Content    string   `json:"content"`
	LineNumber int      `json:"lineNumber,omitempty"`
}

// IsPadding reports whether the row is a blank placeholder for a line that
// only exists on the other side.
func (l Line) IsPadding() bool {
	return l.Type == Unchanged && l.LineNumber == 0
}

// Result holds the two aligned columns. Left and Right always have the same
// length.
type Result struct {
	Left  []Line `json:"left"`
	Right []Line `json:"right"`
}

// Compute compares oldText (deployed) against newText (local).
func Compute(oldText, newText string) Result {
	oldLines := strings.Split(oldText, "\n")
	newLines := strings.Split(newText, "\n")

	size := max(len(oldLines), len(newLines))
	res := Result{
		Left:  make([]Line, 0, size),
		Right: make([]Line, 0, size),
	}

	i, j := 0, 0
	for i < len(oldLines) || j < len(newLines) {
		switch {
		case i < len(oldLines) && j < len(newLines):
			if oldLines[i] == newLines[j] {
				res.Left = append(res.Left, Line{Type: Unchanged, Content: oldLines[i], LineNumber: i + 1})
				res.Right = append(res.Right, Line{Type: Unchanged, Content: newLines[j], LineNumber: j + 1})
			} else {
				res.Left = append(res.Left, Line{Type: Removed, Content: oldLines[i], LineNumber: i + 1})
				res.Right = append(res.Right, Line{Type: Added, Content: newLines[j], LineNumber: j + 1})
			}
			i++
			j++
		case i < len(oldLines):
			res.Left = append(res.Left, Line{Type: Removed, Content: oldLines[i], LineNumber: i + 1})
			res.Right = append(res.Right, Line{Type: Unchanged})
			i++
		default:
			res.Left = append(res.Left, Line{Type: Unchanged})
			res.Right = append(res.Right, Line{Type: Added, Content: newLines[j], LineNumber: j + 1})
			j++
		}
	}
	return res
}

// Stats counts changed rows of a diff result.
type Stats struct {
	Added     int
	Removed   int
	Unchanged int
}

// HasChanges reports whether any row differs.
func (s Stats) HasChanges() bool {
	return s.Added > 0 || s.Removed > 0
}

// Summarize counts the rows of r.
func Summarize(r Result) Stats {
	var s Stats
	for _, l := range r.Left {
		switch l.Type {
		case Removed:
			s.Removed++
		case Unchanged:
			if !l.IsPadding() {
				s.Unchanged++
			}
		}
	}
	for _, l := range r.Right {
		if l.Type == Added {
			s.Added++
		}
	}
	return s
}

// Unified renders a conventional unified diff for terminal output.
func Unified(oldText, newText, fromFile, toFile string) string {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldText),
		B:        difflib.SplitLines(newText),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  3,
	}
	out, _ := difflib.GetUnifiedDiffString(ud)
	return out
}
