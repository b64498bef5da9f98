// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/confighub/cub-deploy/internal/workflow"
	"github.com/confighub/cub-deploy/pkg/apply"
	"github.com/confighub/cub-deploy/pkg/diff"
	"github.com/confighub/cub-deploy/pkg/manifest"
	"github.com/confighub/cub-deploy/pkg/tracker"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "héll…", truncate("héllo wörld", 5))
	assert.Equal(t, "    x", truncate("\t\tx", 10))
	assert.Equal(t, "a", truncate("abc", 1))
}

func TestDiffTitle(t *testing.T) {
	doc := manifest.Document{Kind: "Deployment", Name: "web"}

	assert.Equal(t, "Deployment/web (shop)  not deployed",
		diffTitle(workflow.DocumentDiff{Document: doc}, "shop"))
	assert.Equal(t, "Deployment/web (shop)  unchanged",
		diffTitle(workflow.DocumentDiff{Document: doc, Deployed: true}, "shop"))

	doc.Namespace = "other"
	assert.Equal(t, "Deployment/web (other)  +2 -1",
		diffTitle(workflow.DocumentDiff{Document: doc, Deployed: true, Stats: diff.Stats{Added: 2, Removed: 1}}, "shop"))
}

func TestRenderSideBySide(t *testing.T) {
	res := diff.Compute("replicas: 2\nimage: web:1\n", "replicas: 3\nimage: web:1\n")

	var buf bytes.Buffer
	renderSideBySide(&buf, res, 60)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	assert.Len(t, lines, len(res.Left))
	assert.Contains(t, lines[0], "- replicas: 2")
	assert.Contains(t, lines[0], "+ replicas: 3")
	for _, l := range lines {
		assert.Contains(t, l, "│")
	}
}

func TestPrintResources(t *testing.T) {
	var buf bytes.Buffer
	printResources(&buf, []apply.Resource{
		{Kind: "Deployment", Name: "web", Namespace: "shop", Action: apply.ActionCreated},
		{Kind: "ClusterRole", Name: "reader", Action: apply.ActionUnchanged},
	})
	assert.Equal(t,
		"  ✓ Deployment/web (shop) created\n  = ClusterRole/reader unchanged\n",
		buf.String())
}

func TestProgress_HoldsUntilEnabled(t *testing.T) {
	var buf bytes.Buffer
	p := newProgress(&buf)
	web := tracker.Target{Kind: "Deployment", Name: "web"}

	p.Observe(tracker.Snapshot{
		Resources: []tracker.Target{web},
		Statuses:  map[string]tracker.Status{"Deployment/web": {Phase: tracker.PhasePending, Ready: "0/2"}},
		Active:    true,
	})
	assert.Empty(t, buf.String())

	p.Enable()
	assert.Contains(t, buf.String(), "Pending 0/2")

	// Same phase again prints nothing new.
	before := buf.Len()
	p.Observe(tracker.Snapshot{
		Resources: []tracker.Target{web},
		Statuses:  map[string]tracker.Status{"Deployment/web": {Phase: tracker.PhasePending, Ready: "1/2"}},
		Active:    true,
	})
	assert.Equal(t, before, buf.Len())

	p.Observe(tracker.Snapshot{
		Resources: []tracker.Target{web},
		Statuses:  map[string]tracker.Status{"Deployment/web": {Phase: tracker.PhaseReady, Ready: "2/2"}},
	})
	assert.Contains(t, buf.String(), "Ready 2/2")
}

func TestOutcomeMessage(t *testing.T) {
	resources := []tracker.Target{
		{Kind: "Deployment", Name: "web"},
		{Kind: "Service", Name: "web"},
	}

	assert.Equal(t, "✓ All 2 resources are ready", outcomeMessage(tracker.Snapshot{
		Resources: resources,
		Statuses: map[string]tracker.Status{
			"Deployment/web": {Phase: tracker.PhaseReady},
			"Service/web":    {Phase: tracker.PhaseReady},
		},
		Outcome: tracker.OutcomeAllReady,
	}))
	assert.Equal(t, "✓ All 1 reporting resources are ready (1 never reported status)", outcomeMessage(tracker.Snapshot{
		Resources: resources,
		Statuses:  map[string]tracker.Status{"Deployment/web": {Phase: tracker.PhaseReady}},
		Outcome:   tracker.OutcomeAllReady,
	}))
	assert.Equal(t, "⚠ Stopped waiting; not ready: [Deployment/web]", outcomeMessage(tracker.Snapshot{
		Resources: resources,
		Statuses: map[string]tracker.Status{
			"Deployment/web": {Phase: tracker.PhasePending},
			"Service/web":    {Phase: tracker.PhaseReady},
		},
		Outcome: tracker.OutcomeTimedOut,
	}))
	assert.Equal(t, "Tracking stopped", outcomeMessage(tracker.Snapshot{Outcome: tracker.OutcomeStopped}))
}
