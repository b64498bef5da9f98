// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/confighub/cub-deploy/internal/clierr"
	"github.com/confighub/cub-deploy/internal/tui"
	"github.com/confighub/cub-deploy/pkg/apply"
	"github.com/confighub/cub-deploy/pkg/tracker"
)

var applyCmd = &cobra.Command{
	Use:   "apply [FILE]",
	Short: "Apply a manifest and track resource health",
	Long: `Apply every resource in a manifest with server-side apply, print what
changed, then follow resource health until everything is ready or the
tracking timeout (60s by default) elapses.

Each resource is reported as created, updated, or unchanged. A deployment
summary follows: duration, whether it was fast enough to count as zero
downtime, and how many workloads were rolled.

Namespaces that look like production (prod, production, prd, live) need
--yes unless this is a dry run.

Examples:
  # Apply and follow health in a live view
  cub-deploy apply app.yaml -n staging --watch

  # Validate against the API server without changing anything
  cub-deploy apply app.yaml --dry-run

  # Apply from a pipeline without waiting
  kustomize build . | cub-deploy apply - --no-wait
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApply,
}

var (
	applyDryRun bool
	applyNoLog  bool
	applyWatch  bool
	applyNoWait bool
	applyYes    bool
)

func init() {
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Validate on the server without making changes")
	applyCmd.Flags().BoolVar(&applyNoLog, "no-log", false, "Disable logging to file")
	applyCmd.Flags().BoolVarP(&applyWatch, "watch", "w", false, "Follow resource health in an interactive view")
	applyCmd.Flags().BoolVar(&applyNoWait, "no-wait", false, "Exit after applying without tracking health")
	applyCmd.Flags().BoolVarP(&applyYes, "yes", "y", false, "Apply to a production namespace without asking")
	applyCmd.MarkFlagsMutuallyExclusive("watch", "no-wait")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	var logger *DeployLogger
	if !applyNoLog {
		var err error
		logger, err = NewDeployLogger("apply")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create log file: %v\n", err)
		}
	}
	defer func() {
		if logPath := logger.Close(); logPath != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "\nLog: %s\n", logPath)
		}
	}()

	out := cmd.OutOrStdout()
	relay := &tui.Relay{}
	prog := newProgress(out)
	var observer tracker.Observer
	switch {
	case applyWatch:
		observer = relay.Observe
	case !applyNoWait:
		observer = prog.Observe
	}

	wf, tr, err := sess.workflow(workflowOptions{cluster: true, observer: observer})
	if err != nil {
		return err
	}
	defer wf.Close()

	source, err := readManifest(args, cmd.InOrStdin(), wf)
	if err != nil {
		return err
	}
	ns := wf.Namespace()
	if !applyDryRun && !applyYes && sess.cfg.IsProdNamespace(ns) {
		return clierr.WrapWithHint(
			fmt.Errorf("namespace %q looks like production", ns),
			"re-run with --yes to apply anyway, or --dry-run to validate first.")
	}

	logger.Log("Starting apply")
	logger.Log("Source: %s", source)
	logger.Log("Namespace: %s", ns)
	if applyDryRun {
		logger.Log("Mode: dry-run")
	}
	logger.LogDocuments(wf.Documents())

	outcome, err := wf.Apply(cmd.Context(), applyDryRun)
	logger.LogResult(outcome.Result)
	printResources(out, outcome.Result.Resources)
	if err != nil {
		return err
	}

	if applyDryRun {
		fmt.Fprintf(out, "\n✓ %s (dry run, nothing changed)\n", outcome.Result.Message)
		return nil
	}
	fmt.Fprintf(out, "\n✓ Deployed %s\n", outcome.Summary)
	logger.LogSummary(outcome.Summary)

	if tr.State() != tracker.StateTracking {
		snap := tr.Snapshot()
		logger.LogTracking(snap)
		if len(snap.Resources) > 0 {
			fmt.Fprintln(out, outcomeMessage(snap))
		}
		return nil
	}
	if applyNoWait {
		fmt.Fprintln(out, "Not waiting for resources to become ready")
		return nil
	}

	var snap tracker.Snapshot
	if applyWatch {
		title := fmt.Sprintf("Tracking %d resources in %s", len(outcome.Result.Resources), ns)
		snap, err = watchHealth(cmd.Context(), out, tr, relay, title)
		if err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "\nWaiting for %d resources to become ready...\n", len(outcome.Result.Resources))
		prog.Enable()
		snap = tr.Wait(cmd.Context())
		prog.Observe(snap)
		fmt.Fprintln(out, outcomeMessage(snap))
	}
	logger.LogTracking(snap)
	return nil
}

func printResources(w io.Writer, resources []apply.Resource) {
	for _, r := range resources {
		marker := "✓"
		if r.Action == apply.ActionUnchanged {
			marker = "="
		}
		ns := ""
		if r.Namespace != "" {
			ns = " (" + r.Namespace + ")"
		}
		fmt.Fprintf(w, "  %s %s%s %s\n", marker, r.Key(), ns, r.Action)
	}
}

// watchHealth runs the live view until tracking ends or the user leaves.
func watchHealth(ctx context.Context, w io.Writer, tr *tracker.Tracker, relay *tui.Relay, title string) (tracker.Snapshot, error) {
	p := tea.NewProgram(tui.New(title, tr.Snapshot(), tr.Stop), tea.WithContext(ctx), tea.WithOutput(w))
	relay.Attach(p)
	defer relay.Detach()

	final, err := p.Run()
	if err != nil {
		return tr.Snapshot(), fmt.Errorf("health view: %w", err)
	}
	return final.(tui.Model).Snapshot(), nil
}

// progress prints a line whenever a tracked resource changes phase. It
// holds back snapshots until Enable so the lines follow the summary.
type progress struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	pending *tracker.Snapshot
	last    map[string]tracker.Phase
}

func newProgress(w io.Writer) *progress {
	return &progress{w: w, last: make(map[string]tracker.Phase)}
}

// Observe is a tracker.Observer.
func (p *progress) Observe(snap tracker.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		p.pending = &snap
		return
	}
	p.printLocked(snap)
}

// Enable prints the latest held-back snapshot and every later one.
func (p *progress) Enable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = true
	if p.pending != nil {
		p.printLocked(*p.pending)
		p.pending = nil
	}
}

func (p *progress) printLocked(snap tracker.Snapshot) {
	for _, r := range snap.Resources {
		st, ok := snap.Statuses[r.Key()]
		if !ok || p.last[r.Key()] == st.Phase {
			continue
		}
		p.last[r.Key()] = st.Phase
		line := fmt.Sprintf("  %-40s %s", r.Key(), st.Phase)
		if st.Ready != "" {
			line += " " + st.Ready
		}
		if st.Message != "" {
			line += "  " + st.Message
		}
		fmt.Fprintln(p.w, line)
	}
}

func outcomeMessage(snap tracker.Snapshot) string {
	switch snap.Outcome {
	case tracker.OutcomeAllReady:
		if missing := len(snap.Resources) - len(snap.Statuses); missing > 0 {
			return fmt.Sprintf("✓ All %d reporting resources are ready (%d never reported status)", len(snap.Statuses), missing)
		}
		return fmt.Sprintf("✓ All %d resources are ready", len(snap.Resources))
	case tracker.OutcomeTimedOut:
		var pending []string
		for _, r := range snap.Resources {
			if st, ok := snap.Statuses[r.Key()]; !ok || st.Phase != tracker.PhaseReady {
				pending = append(pending, r.Key())
			}
		}
		return fmt.Sprintf("⚠ Stopped waiting; not ready: %v", pending)
	case tracker.OutcomeStopped:
		return "Tracking stopped"
	default:
		return "Tracking interrupted"
	}
}
