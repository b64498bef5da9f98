// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package apply

import (
	"context"
	"encoding/json"
	"time"
)

// Action is what the cluster did with one applied document.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
)

// Resource is one object touched by an apply.
type Resource struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
	Action    Action `json:"action"`
}

// Key returns "{kind}/{name}".
func (r Resource) Key() string {
	return r.Kind + "/" + r.Name
}

// Result is the outcome of an apply or dry run. Resources holds whatever
// the cluster accepted, even when Success is false.
type Result struct {
	Success   bool       `json:"success"`
	Resources []Resource `json:"resources"`
	Errors    []string   `json:"errors,omitempty"`
	Message   string     `json:"message"`
}

// Summary describes a successful, non-dry-run deployment. It is built once
// and never modified.
type Summary struct {
	Success   bool          `json:"success"`
	Resources []Resource    `json:"resources"`
	Duration  time.Duration `json:"-"`
	Timestamp time.Time     `json:"timestamp"`

	// ZeroDowntime is a duration heuristic (under ZeroDowntimeThreshold).
	// It does not inspect readiness probes or rollout strategy.
	ZeroDowntime  bool `json:"zeroDowntime"`
	PodsUpdated   int  `json:"podsUpdated"`
	PodsRestarted int  `json:"podsRestarted"`
}

// MarshalJSON reports the duration in milliseconds.
func (s Summary) MarshalJSON() ([]byte, error) {
	type plain Summary
	return json.Marshal(struct {
		plain
		DurationMs int64 `json:"durationMs"`
	}{plain: plain(s), DurationMs: s.Duration.Milliseconds()})
}

// Cluster applies manifests.
type Cluster interface {
	ApplyManifests(ctx context.Context, text, namespace string, dryRun bool) (Result, error)
}
