// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package tracker

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the callback. It is safe to call more than once.
	Stop()
}

// Scheduler runs callbacks after a delay or on an interval. The tracker
// never touches time directly so tests can drive it with virtual time.
type Scheduler interface {
	// Every runs fn every d until the returned timer is stopped.
	Every(d time.Duration, fn func()) Timer

	// After runs fn once after d unless the returned timer is stopped first.
	After(d time.Duration, fn func()) Timer
}

// ClockScheduler implements Scheduler on a k8s.io/utils clock.
type ClockScheduler struct {
	clock clock.WithTicker
}

// NewClockScheduler returns a scheduler on c. A nil clock uses wall time.
func NewClockScheduler(c clock.WithTicker) *ClockScheduler {
	if c == nil {
		c = clock.RealClock{}
	}
	return &ClockScheduler{clock: c}
}

type stopper struct {
	once sync.Once
	done chan struct{}
}

func newStopper() *stopper {
	return &stopper{done: make(chan struct{})}
}

func (s *stopper) Stop() {
	s.once.Do(func() { close(s.done) })
}

// stopped reports whether Stop was called. select picks randomly among
// ready cases, so a fired channel is rechecked against done.
func (s *stopper) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Every implements Scheduler.
func (s *ClockScheduler) Every(d time.Duration, fn func()) Timer {
	ticker := s.clock.NewTicker(d)
	st := newStopper()
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-st.done:
				return
			case <-ticker.C():
				if st.stopped() {
					return
				}
				fn()
			}
		}
	}()
	return st
}

// After implements Scheduler.
func (s *ClockScheduler) After(d time.Duration, fn func()) Timer {
	timer := s.clock.NewTimer(d)
	st := newStopper()
	go func() {
		select {
		case <-st.done:
			timer.Stop()
		case <-timer.C():
			if !st.stopped() {
				fn()
			}
		}
	}()
	return st
}
