// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package trackertest provides a virtual-time Scheduler for tests.
package trackertest

import (
	"sort"
	"sync"
	"time"

	"github.com/confighub/cub-deploy/pkg/tracker"
)

// Scheduler is a tracker.Scheduler driven by Advance. Callbacks run
// synchronously on the goroutine calling Advance.
type Scheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers map[int]*timer
}

var _ tracker.Scheduler = (*Scheduler)(nil)

type timer struct {
	s        *Scheduler
	id       int
	due      time.Duration
	interval time.Duration // zero for one-shot timers
	fn       func()
}

func (t *timer) Stop() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	delete(t.s.timers, t.id)
}

// New returns a scheduler at virtual time zero.
func New() *Scheduler {
	return &Scheduler{timers: make(map[int]*timer)}
}

// Every implements tracker.Scheduler.
func (s *Scheduler) Every(d time.Duration, fn func()) tracker.Timer {
	return s.add(d, d, fn)
}

// After implements tracker.Scheduler.
func (s *Scheduler) After(d time.Duration, fn func()) tracker.Timer {
	return s.add(d, 0, fn)
}

func (s *Scheduler) add(d, interval time.Duration, fn func()) *timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &timer{s: s, id: s.seq, due: s.now + d, interval: interval, fn: fn}
	s.timers[t.id] = t
	return t
}

// Elapsed returns the virtual time since creation.
func (s *Scheduler) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Active returns the number of live timers.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// ActiveIntervals returns the number of live repeating timers.
func (s *Scheduler) ActiveIntervals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if t.interval > 0 {
			n++
		}
	}
	return n
}

// Advance moves virtual time forward by d, firing every callback that
// becomes due in time order.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		next := s.nextDueLocked(target)
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		s.now = next.due
		if next.interval > 0 {
			next.due += next.interval
		} else {
			delete(s.timers, next.id)
		}
		fn := next.fn
		s.mu.Unlock()

		fn()
	}
}

func (s *Scheduler) nextDueLocked(limit time.Duration) *timer {
	var due []*timer
	for _, t := range s.timers {
		if t.due <= limit {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].id < due[j].id
	})
	return due[0]
}
