// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package workflow drives the manifest deployment flow a user interface
// presents: edit, diff, review, fix, apply, and watch.
//
// Every operation reports failures through the Notifier as well as its
// return value, and loading flags are cleared on every path.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/confighub/cub-deploy/internal/clierr"
	"github.com/confighub/cub-deploy/internal/state"
	"github.com/confighub/cub-deploy/pkg/apply"
	"github.com/confighub/cub-deploy/pkg/diff"
	"github.com/confighub/cub-deploy/pkg/manifest"
	"github.com/confighub/cub-deploy/pkg/review"
	"github.com/confighub/cub-deploy/pkg/tracker"
)

// maxConcurrentDiffs bounds live YAML fetches during Diff.
const maxConcurrentDiffs = 4

// Cluster is everything the workflow needs from Kubernetes.
type Cluster interface {
	apply.Cluster
	GetResourceYAML(ctx context.Context, kind, name, namespace string) (string, error)
	ListNamespaces(ctx context.Context) ([]string, error)
}

// Deps are the collaborators of a Workflow.
type Deps struct {
	Editor   *state.Editor
	Cluster  Cluster
	Review   review.Service
	Tracker  *tracker.Tracker
	Notifier Notifier
	Clock    clock.PassiveClock
	Logger   logr.Logger
}

// Workflow holds the state of one editing session.
type Workflow struct {
	editor   *state.Editor
	cluster  Cluster
	session  *review.Session
	tracker  *tracker.Tracker
	orch     *apply.Orchestrator
	notifier Notifier
	log      logr.Logger

	mu                sync.Mutex
	docs              manifest.Set
	namespaces        []string
	loadingNamespaces bool
	reviewing         bool
	fixing            bool
	applying          bool
	summary           *apply.Summary
}

// New restores the persisted editor content and parses it.
func New(deps Deps) *Workflow {
	if deps.Logger.GetSink() == nil {
		deps.Logger = logr.Discard()
	}
	if deps.Notifier == nil {
		deps.Notifier = &Notifications{}
	}
	if deps.Editor == nil {
		deps.Editor = state.NewEditor(state.NewMemoryStore())
	}

	w := &Workflow{
		editor:   deps.Editor,
		cluster:  deps.Cluster,
		tracker:  deps.Tracker,
		notifier: deps.Notifier,
		log:      deps.Logger,
	}
	if deps.Review != nil {
		w.session = review.NewSession(deps.Review, deps.Logger.WithName("review"))
	}
	var tr apply.Tracker
	if deps.Tracker != nil {
		tr = deps.Tracker
	}
	w.orch = apply.New(deps.Cluster, tr, apply.Options{Clock: deps.Clock, Logger: deps.Logger.WithName("apply")})
	w.docs = manifest.Parse(w.editor.Content())
	return w
}

func (w *Workflow) notify(level Level, title, message string, details ...string) {
	w.notifier.Notify(Notification{Level: level, Title: title, Message: message, Details: details})
}

// Content returns the current manifest text.
func (w *Workflow) Content() string {
	return w.editor.Content()
}

// Documents returns the parsed content. nil means the content does not
// parse and no preview or diff is possible.
func (w *Workflow) Documents() manifest.Set {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.docs
}

// SetContent stores text and re-parses it.
func (w *Workflow) SetContent(text string) error {
	if err := w.editor.SetContent(text); err != nil {
		w.notify(LevelError, "Could not save editor content", err.Error())
		return err
	}
	docs := manifest.Parse(text)
	w.mu.Lock()
	w.docs = docs
	w.mu.Unlock()
	return nil
}

// Namespace returns the selected namespace.
func (w *Workflow) Namespace() string {
	return w.editor.Namespace()
}

// SetNamespace persists the namespace selection.
func (w *Workflow) SetNamespace(ns string) error {
	if err := w.editor.SetNamespace(ns); err != nil {
		w.notify(LevelError, "Could not save namespace", err.Error())
		return err
	}
	return nil
}

// LoadingNamespaces reports whether a namespace list call is in flight.
func (w *Workflow) LoadingNamespaces() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loadingNamespaces
}

// Namespaces returns the last loaded namespace list.
func (w *Workflow) Namespaces() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.namespaces...)
}

// LoadNamespaces refreshes the namespace list.
func (w *Workflow) LoadNamespaces(ctx context.Context) ([]string, error) {
	w.mu.Lock()
	w.loadingNamespaces = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.loadingNamespaces = false
		w.mu.Unlock()
	}()

	names, err := w.cluster.ListNamespaces(ctx)
	if err != nil {
		var timeout *clierr.TimeoutError
		if errors.As(err, &timeout) {
			w.notify(LevelError, "Loading namespaces timed out", timeout.Error())
		} else {
			w.notify(LevelError, "Could not load namespaces", clierr.Pretty(err))
		}
		return nil, err
	}

	w.mu.Lock()
	w.namespaces = names
	w.mu.Unlock()
	return names, nil
}

// parseError explains why the current content has no documents.
func (w *Workflow) parseError() error {
	if _, err := manifest.ParseStrict(w.Content()); err != nil {
		return err
	}
	return &clierr.ParseError{Document: 1, Err: errors.New("content changed while parsing")}
}

// DocumentDiff is the comparison of one document with its live version.
type DocumentDiff struct {
	Document manifest.Document
	Live     string
	Deployed bool
	Result   diff.Result
	Stats    diff.Stats
}

// Diff compares every parsed document with the live object. Objects that
// do not exist yet diff against empty text.
func (w *Workflow) Diff(ctx context.Context) ([]DocumentDiff, error) {
	docs := w.Documents()
	if docs == nil {
		err := w.parseError()
		w.notify(LevelError, "No diff available", err.Error())
		return nil, err
	}
	ns := w.Namespace()

	out := make([]DocumentDiff, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDiffs)
	for i, doc := range docs {
		g.Go(func() error {
			target := doc.Namespace
			if target == "" {
				target = ns
			}
			live, err := w.cluster.GetResourceYAML(gctx, doc.Kind, doc.Name, target)
			deployed := true
			if errors.Is(err, clierr.ErrNotDeployed) {
				live, deployed, err = "", false, nil
			}
			if err != nil {
				return fmt.Errorf("%s: %w", doc.Key(), err)
			}
			res := diff.Compute(live, doc.Raw)
			out[i] = DocumentDiff{Document: doc, Live: live, Deployed: deployed, Result: res, Stats: diff.Summarize(res)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		w.notify(LevelError, "Could not fetch deployed resources", clierr.Pretty(err))
		return nil, err
	}
	return out, nil
}

// Review asks the AI service to review the current content. A failure
// leaves the previous review in place.
func (w *Workflow) Review(ctx context.Context) (*review.Result, error) {
	if w.session == nil {
		return nil, errors.New("AI review is not configured")
	}
	w.setFlag(&w.reviewing, true)
	defer w.setFlag(&w.reviewing, false)

	res, err := w.session.Review(ctx, w.Content(), w.Namespace())
	if errors.Is(err, review.ErrSuperseded) {
		return nil, err
	}
	if err != nil {
		w.notify(LevelError, "AI review failed", err.Error())
		return nil, err
	}
	w.notify(LevelInfo, "AI review complete", fmt.Sprintf("Score %d with %d issues", res.Score, len(res.Issues)))
	return res, nil
}

// ReviewResult returns the current review, or nil.
func (w *Workflow) ReviewResult() *review.Result {
	if w.session == nil {
		return nil
	}
	return w.session.Result()
}

// SelectedIssues returns the selected issue indices in ascending order.
func (w *Workflow) SelectedIssues() []int {
	if w.session == nil {
		return nil
	}
	return w.session.SelectedIndices()
}

func (w *Workflow) ToggleIssue(i int) {
	if w.session != nil {
		w.session.Toggle(i)
	}
}

func (w *Workflow) SelectAll() {
	if w.session != nil {
		w.session.SelectAll()
	}
}

func (w *Workflow) DeselectAll() {
	if w.session != nil {
		w.session.DeselectAll()
	}
}

// AutoFix applies AI fixes for the selected issues. On success the content
// is replaced and the review is discarded.
func (w *Workflow) AutoFix(ctx context.Context) (*review.Fix, error) {
	if w.session == nil {
		return nil, errors.New("AI review is not configured")
	}
	w.setFlag(&w.fixing, true)
	defer w.setFlag(&w.fixing, false)

	fix, err := w.session.AutoFix(ctx, w.Content(), w.Namespace())
	if err != nil {
		w.notify(LevelError, "Auto-fix failed", err.Error())
		return nil, err
	}
	if err := w.SetContent(fix.FixedText); err != nil {
		return nil, err
	}
	w.notify(LevelSuccess, "Fixes applied", fix.ChangesSummary)
	return fix, nil
}

// Apply deploys the current content, or validates it when dryRun is set.
func (w *Workflow) Apply(ctx context.Context, dryRun bool) (apply.Outcome, error) {
	if w.Documents() == nil {
		err := w.parseError()
		w.notify(LevelError, "Nothing to apply", err.Error())
		return apply.Outcome{DryRun: dryRun}, err
	}
	w.setFlag(&w.applying, true)
	defer w.setFlag(&w.applying, false)

	// A real apply ends the previous tracking session even if it fails.
	if !dryRun {
		w.StopTracking()
	}
	out := w.orch.Apply(ctx, w.Content(), w.Namespace(), dryRun)
	if err := out.Err(); err != nil {
		details := append(resourceLines(out.Result.Resources), out.Result.Errors...)
		w.notify(LevelError, "Apply failed", out.Result.Message, details...)
		return out, err
	}

	if dryRun {
		w.notify(LevelInfo, "Dry run passed", out.Result.Message, resourceLines(out.Result.Resources)...)
		return out, nil
	}
	w.mu.Lock()
	w.summary = out.Summary
	w.mu.Unlock()
	w.notify(LevelSuccess, "Deployed", out.Summary.String(), resourceLines(out.Result.Resources)...)
	return out, nil
}

func resourceLines(resources []apply.Resource) []string {
	lines := make([]string, 0, len(resources))
	for _, r := range resources {
		lines = append(lines, r.Key()+" "+string(r.Action))
	}
	return lines
}

// Summary returns the summary of the last successful deployment.
func (w *Workflow) Summary() *apply.Summary {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.summary
}

// Busy reports which operations are in flight.
func (w *Workflow) Busy() (reviewing, fixing, applying bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reviewing, w.fixing, w.applying
}

// Tracking returns the health tracking state.
func (w *Workflow) Tracking() tracker.Snapshot {
	if w.tracker == nil {
		return tracker.Snapshot{}
	}
	return w.tracker.Snapshot()
}

// StopTracking ends health tracking.
func (w *Workflow) StopTracking() {
	if w.tracker != nil {
		w.tracker.Stop()
	}
}

// Close releases the tracker's timers. The workflow must not be used
// afterwards.
func (w *Workflow) Close() {
	w.StopTracking()
}

func (w *Workflow) setFlag(flag *bool, v bool) {
	w.mu.Lock()
	*flag = v
	w.mu.Unlock()
}
