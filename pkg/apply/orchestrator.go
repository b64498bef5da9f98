// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package apply submits manifests to a cluster and turns the response into
// a deployment summary and a health-tracking session.
package apply

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/confighub/cub-deploy/internal/clierr"
	"github.com/confighub/cub-deploy/pkg/tracker"
)

// ZeroDowntimeThreshold is the duration under which a deployment counts as
// zero-downtime.
const ZeroDowntimeThreshold = 5 * time.Second

// Tracker is started after every successful deployment.
type Tracker interface {
	Start(ctx context.Context, targets []tracker.Target)
}

// Options configure an Orchestrator.
type Options struct {
	Clock  clock.PassiveClock
	Logger logr.Logger
}

// Orchestrator runs applies and dry runs against a Cluster.
type Orchestrator struct {
	cluster Cluster
	tracker Tracker
	clock   clock.PassiveClock
	log     logr.Logger
}

// New returns an orchestrator. tracker may be nil when health tracking is
// not wanted.
func New(cluster Cluster, tr Tracker, opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	return &Orchestrator{cluster: cluster, tracker: tr, clock: opts.Clock, log: opts.Logger}
}

// Outcome is the result of one Apply call. Summary is set only for a
// successful non-dry-run apply.
type Outcome struct {
	DryRun  bool
	Result  Result
	Summary *Summary
}

// Err returns an *clierr.ApplyError when the apply did not succeed.
func (o Outcome) Err() error {
	if o.Result.Success {
		return nil
	}
	return &clierr.ApplyError{Message: o.Result.Message, Errors: o.Result.Errors}
}

// Apply submits text to the cluster. A dry run only validates: it never
// builds a summary and never starts tracking.
func (o *Orchestrator) Apply(ctx context.Context, text, namespace string, dryRun bool) Outcome {
	log := o.log.WithValues("namespace", namespace, "dryRun", dryRun)
	start := o.clock.Now()

	res, err := o.cluster.ApplyManifests(ctx, text, namespace, dryRun)
	if err != nil {
		log.Error(err, "Apply request failed")
		// Keep whatever the cluster reported before failing.
		res = Result{
			Success:   false,
			Resources: res.Resources,
			Message:   "Apply failed",
			Errors:    []string{err.Error()},
		}
	}
	elapsed := o.clock.Since(start)

	out := Outcome{DryRun: dryRun, Result: res}
	if !res.Success {
		log.Info("Apply did not succeed", "message", res.Message, "errors", len(res.Errors), "resources", len(res.Resources))
		return out
	}
	if dryRun {
		log.Info("Dry run passed", "resources", len(res.Resources))
		return out
	}

	out.Summary = summarize(res, elapsed, o.clock.Now())
	log.Info("Deployed",
		"resources", len(res.Resources),
		"duration", elapsed.Round(time.Millisecond),
		"podsUpdated", out.Summary.PodsUpdated,
		"podsRestarted", out.Summary.PodsRestarted)

	if o.tracker != nil {
		o.tracker.Start(ctx, Targets(res.Resources, namespace))
	}
	return out
}

func summarize(res Result, elapsed time.Duration, now time.Time) *Summary {
	s := &Summary{
		Success:      true,
		Resources:    append([]Resource(nil), res.Resources...),
		Duration:     elapsed,
		Timestamp:    now,
		ZeroDowntime: elapsed < ZeroDowntimeThreshold,
	}
	for _, r := range res.Resources {
		if r.Action != ActionUpdated {
			continue
		}
		switch r.Kind {
		case "Deployment", "StatefulSet", "DaemonSet":
			s.PodsUpdated++
		case "Pod":
			s.PodsRestarted++
		}
	}
	return s
}

// Targets converts applied resources into tracker targets. Resources
// without a namespace inherit defaultNamespace.
func Targets(resources []Resource, defaultNamespace string) []tracker.Target {
	targets := make([]tracker.Target, 0, len(resources))
	for _, r := range resources {
		ns := r.Namespace
		if ns == "" {
			ns = defaultNamespace
		}
		targets = append(targets, tracker.Target{Kind: r.Kind, Name: r.Name, Namespace: ns})
	}
	return targets
}

// String renders a one-line description of the summary.
func (s *Summary) String() string {
	mode := "with possible downtime"
	if s.ZeroDowntime {
		mode = "zero downtime"
	}
	return fmt.Sprintf("%d resources in %s (%s), %d workloads updated, %d pods restarted",
		len(s.Resources), s.Duration.Round(time.Millisecond), mode, s.PodsUpdated, s.PodsRestarted)
}
