// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package tracker watches freshly applied resources until they are all
// ready or a hard timeout elapses.
//
// A session moves Idle -> Tracking -> {AllReady, TimedOut, Stopped} -> Idle.
// At most one session is active per Tracker; starting a new one cancels the
// previous session's timers first.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/confighub/cub-deploy/internal/clierr"
)

// Default timings of a tracking session.
const (
	DefaultInterval = 3 * time.Second
	DefaultTimeout  = 60 * time.Second
)

// maxConcurrentFetches bounds the status requests of one poll round.
const maxConcurrentFetches = 8

// Phase is the health of one resource.
type Phase string

const (
	PhaseReady    Phase = "Ready"
	PhasePending  Phase = "Pending"
	PhaseFailed   Phase = "Failed"
	PhaseDegraded Phase = "Degraded"
	PhaseUnknown  Phase = "Unknown"
)

// Status is the last known health of a tracked resource.
type Status struct {
	Phase   Phase  `json:"status"`
	Ready   string `json:"ready,omitempty"` // e.g. "2/3"
	Message string `json:"message,omitempty"`
	Age     string `json:"age,omitempty"`
}

// Target identifies a resource to track.
type Target struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

// Key returns "{kind}/{name}".
func (t Target) Key() string {
	return t.Kind + "/" + t.Name
}

// StatusSource looks up live resource health. found=false means the
// resource does not exist (yet); it is not an error.
type StatusSource interface {
	GetResourceStatus(ctx context.Context, kind, name, namespace string) (st Status, found bool, err error)
}

// State is the tracker's lifecycle state.
type State string

const (
	StateIdle     State = "Idle"
	StateTracking State = "Tracking"
)

// Outcome records how the last session ended.
type Outcome string

const (
	OutcomeNone     Outcome = ""
	OutcomeAllReady Outcome = "AllReady"
	OutcomeTimedOut Outcome = "TimedOut"
	OutcomeStopped  Outcome = "Stopped"
)

// Snapshot is a copy of the session state.
type Snapshot struct {
	Resources []Target          `json:"resources"`
	Statuses  map[string]Status `json:"statuses"`
	Active    bool              `json:"active"`
	Outcome   Outcome           `json:"outcome,omitempty"`
	Started   time.Time         `json:"started"`
}

// AllReady reports whether the status map is non-empty and every entry in
// it is Ready. Resources whose status was never fetched have no entry.
func (s Snapshot) AllReady() bool {
	if len(s.Statuses) == 0 {
		return false
	}
	for _, st := range s.Statuses {
		if st.Phase != PhaseReady {
			return false
		}
	}
	return true
}

// Observer receives a snapshot after every poll round and when a session
// ends. It is called without the tracker lock held.
type Observer func(Snapshot)

// Options configure a Tracker.
type Options struct {
	Interval  time.Duration
	Timeout   time.Duration
	Scheduler Scheduler
	Logger    logr.Logger
	Observer  Observer
	Now       func() time.Time
}

// Tracker runs at most one tracking session at a time.
type Tracker struct {
	source   StatusSource
	sched    Scheduler
	log      logr.Logger
	observer Observer
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu        sync.Mutex
	gen       uint64
	state     State
	outcome   Outcome
	resources []Target
	statuses  map[string]Status
	started   time.Time
	poll      Timer
	deadline  Timer
	inFlight  bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates an idle tracker.
func New(source StatusSource, opts Options) *Tracker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Scheduler == nil {
		opts.Scheduler = NewClockScheduler(nil)
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	done := make(chan struct{})
	close(done)
	return &Tracker{
		source:   source,
		sched:    opts.Scheduler,
		log:      opts.Logger,
		observer: opts.Observer,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		now:      opts.Now,
		state:    StateIdle,
		statuses: make(map[string]Status),
		done:     done,
	}
}

// Start begins a new session over targets, discarding any active session.
// The first status check runs before Start returns. An empty target list
// leaves the tracker idle.
func (t *Tracker) Start(ctx context.Context, targets []Target) {
	t.mu.Lock()
	if t.state == StateTracking {
		t.log.V(1).Info("discarding previous tracking session", "resources", len(t.resources))
		t.finishLocked(OutcomeStopped)
	}

	t.gen++
	gen := t.gen
	t.resources = append([]Target(nil), targets...)
	t.statuses = make(map[string]Status)
	t.outcome = OutcomeNone
	t.started = t.now()
	t.inFlight = false

	if len(targets) == 0 {
		t.state = StateIdle
		snap := t.snapshotLocked()
		t.mu.Unlock()
		t.notify(snap)
		return
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.state = StateTracking
	t.poll = t.sched.Every(t.interval, func() { t.round(sessionCtx, gen) })
	t.deadline = t.sched.After(t.timeout, func() { t.expire(gen) })
	t.log.Info("Tracking resource health", "resources", len(targets), "interval", t.interval, "timeout", t.timeout)
	t.mu.Unlock()

	t.round(sessionCtx, gen)
}

// Stop ends the active session without the "all ready" log line.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.state != StateTracking {
		t.mu.Unlock()
		return
	}
	t.finishLocked(OutcomeStopped)
	snap := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snap)
}

// Snapshot returns the current session state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// State returns the lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Wait blocks until the current session ends or ctx is done.
func (t *Tracker) Wait(ctx context.Context) Snapshot {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
	}
	return t.Snapshot()
}

func (t *Tracker) round(ctx context.Context, gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.state != StateTracking || t.inFlight {
		t.mu.Unlock()
		return
	}
	t.inFlight = true
	targets := append([]Target(nil), t.resources...)
	t.mu.Unlock()

	type fetched struct {
		status Status
		ok     bool
	}
	results := make([]fetched, len(targets))

	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)
	for i, target := range targets {
		g.Go(func() error {
			st, found, err := t.source.GetResourceStatus(ctx, target.Kind, target.Name, target.Namespace)
			if err != nil {
				// Keep the last known status; one failing lookup never stops tracking.
				fetchErr := &clierr.StatusFetchError{Kind: target.Kind, Name: target.Name, Err: err}
				t.log.Error(fetchErr, "Status check failed", "namespace", target.Namespace)
				return nil
			}
			if !found {
				st = Status{Phase: PhasePending, Message: "not found"}
			}
			results[i] = fetched{status: st, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	t.mu.Lock()
	t.inFlight = false
	if gen != t.gen || t.state != StateTracking {
		t.mu.Unlock()
		return
	}
	for i, r := range results {
		if r.ok {
			t.statuses[targets[i].Key()] = r.status
		}
	}
	snap := t.snapshotLocked()
	if snap.AllReady() {
		t.finishLocked(OutcomeAllReady)
		snap = t.snapshotLocked()
		t.log.Info("All resources are ready", "resources", len(targets), "elapsed", t.now().Sub(t.started).Round(time.Millisecond))
	}
	t.mu.Unlock()
	t.notify(snap)
}

func (t *Tracker) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.state != StateTracking {
		t.mu.Unlock()
		return
	}
	t.finishLocked(OutcomeTimedOut)
	snap := t.snapshotLocked()
	t.mu.Unlock()

	var pending []string
	for _, r := range snap.Resources {
		if st, ok := snap.Statuses[r.Key()]; !ok || st.Phase != PhaseReady {
			pending = append(pending, r.Key())
		}
	}
	t.log.Info("Tracking timed out", "timeout", t.timeout, "notReady", pending)
	t.notify(snap)
}

// finishLocked cancels the session's timers and returns to Idle.
func (t *Tracker) finishLocked(outcome Outcome) {
	if t.poll != nil {
		t.poll.Stop()
		t.poll = nil
	}
	if t.deadline != nil {
		t.deadline.Stop()
		t.deadline = nil
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.state = StateIdle
	t.outcome = outcome
	close(t.done)
}

func (t *Tracker) snapshotLocked() Snapshot {
	statuses := make(map[string]Status, len(t.statuses))
	for k, v := range t.statuses {
		statuses[k] = v
	}
	return Snapshot{
		Resources: append([]Target(nil), t.resources...),
		Statuses:  statuses,
		Active:    t.state == StateTracking,
		Outcome:   t.outcome,
		Started:   t.started,
	}
}

func (t *Tracker) notify(snap Snapshot) {
	if t.observer != nil {
		t.observer(snap)
	}
}
