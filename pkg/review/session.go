// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package review

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/go-logr/logr"

	"github.com/confighub/cub-deploy/internal/clierr"
)

// ErrSuperseded is returned by Session.Review when a newer review finished
// first. The stale result is dropped.
var ErrSuperseded = errors.New("review superseded by a newer request")

// Session holds the current review result and the selected issue indices.
// Selected indices are always valid indices into the current result's
// issues.
type Session struct {
	svc Service
	log logr.Logger

	mu       sync.Mutex
	result   *Result
	selected map[int]bool
	started  uint64 // generation of the most recently started review
	applied  uint64 // generation of the result currently held
}

// NewSession creates an empty session backed by svc.
func NewSession(svc Service, log logr.Logger) *Session {
	return &Session{
		svc:      svc,
		log:      log,
		selected: make(map[int]bool),
	}
}

// Review runs a remote review of text. On success the result replaces any
// previous one and every issue is selected. On failure the previous result
// and selection are left untouched and a *clierr.ReviewError is returned.
func (s *Session) Review(ctx context.Context, text, namespace string) (*Result, error) {
	s.mu.Lock()
	s.started++
	gen := s.started
	s.mu.Unlock()

	res, err := s.svc.Review(ctx, text, namespace)
	if err != nil {
		s.log.Error(err, "AI review failed", "namespace", namespace)
		return nil, &clierr.ReviewError{Err: err}
	}
	if res == nil {
		return nil, &clierr.ReviewError{Err: errors.New("empty response")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen < s.applied {
		s.log.V(1).Info("dropping stale review result", "generation", gen, "current", s.applied)
		return nil, ErrSuperseded
	}

	s.result = normalize(res)
	s.applied = gen
	s.selectAllLocked()
	s.log.Info("AI review complete", "score", s.result.Score, "issues", len(s.result.Issues))
	return s.result, nil
}

// normalize copies res with canonical severities so callers never see raw
// service strings.
func normalize(res *Result) *Result {
	out := *res
	out.Issues = make([]Issue, len(res.Issues))
	for i, is := range res.Issues {
		is.Severity = ParseSeverity(string(is.Severity))
		out.Issues[i] = is
	}
	out.Suggestions = append([]string(nil), res.Suggestions...)
	return &out
}

// Result returns the current review, or nil if there is none.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Toggle flips the selection of issue index i. Out-of-range indices are
// ignored.
func (s *Session) Toggle(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil || i < 0 || i >= len(s.result.Issues) {
		return
	}
	if s.selected[i] {
		delete(s.selected, i)
	} else {
		s.selected[i] = true
	}
}

// SelectAll selects every issue of the current result.
func (s *Session) SelectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectAllLocked()
}

func (s *Session) selectAllLocked() {
	s.selected = make(map[int]bool)
	if s.result == nil {
		return
	}
	for i := range s.result.Issues {
		s.selected[i] = true
	}
}

// DeselectAll clears the selection.
func (s *Session) DeselectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = make(map[int]bool)
}

// SelectedIndices returns the selected indices in ascending order.
func (s *Session) SelectedIndices() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedIndicesLocked()
}

func (s *Session) selectedIndicesLocked() []int {
	idx := make([]int, 0, len(s.selected))
	for i := range s.selected {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// IsSelected reports whether issue i is selected.
func (s *Session) IsSelected(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected[i]
}

// Selected returns the selected issues in index order.
func (s *Session) Selected() []Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedLocked()
}

func (s *Session) selectedLocked() []Issue {
	if s.result == nil {
		return nil
	}
	var issues []Issue
	for _, i := range s.selectedIndicesLocked() {
		issues = append(issues, s.result.Issues[i])
	}
	return issues
}

// AutoFix asks the service to fix the selected issues in text. On success
// the review and selection are discarded since they describe the old text.
func (s *Session) AutoFix(ctx context.Context, text, namespace string) (*Fix, error) {
	s.mu.Lock()
	issues := s.selectedLocked()
	s.mu.Unlock()

	if len(issues) == 0 {
		return nil, &clierr.AutoFixError{Err: clierr.ErrNoIssuesSelected}
	}

	fix, err := s.svc.AutoFix(ctx, text, issues, namespace)
	if err != nil {
		s.log.Error(err, "AI auto-fix failed", "issues", len(issues))
		return nil, &clierr.AutoFixError{Err: err}
	}
	if fix == nil {
		return nil, &clierr.AutoFixError{Err: errors.New("empty response")}
	}

	s.Reset()
	s.log.Info("AI auto-fix applied", "issues", len(issues))
	return fix, nil
}

// Reset discards the current review and selection. Reviews still in flight
// are dropped when they return.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = nil
	s.selected = make(map[int]bool)
	s.applied = s.started + 1
}
