// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/confighub/cub-deploy/internal/workflow"
	"github.com/confighub/cub-deploy/pkg/diff"
)

var diffCmd = &cobra.Command{
	Use:   "diff [FILE]",
	Short: "Compare a manifest with what is deployed",
	Long: `Compare every resource in a manifest with its live version.

The default view pairs lines by position, deployed on the left and local on
the right. Resources that are not deployed yet compare against nothing.
Use --unified for a conventional unified diff.

Examples:
  cub-deploy diff app.yaml -n staging
  cub-deploy diff --unified app.yaml
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDiff,
}

var (
	diffUnified bool
	diffWidth   int
	diffAll     bool
)

func init() {
	diffCmd.Flags().BoolVar(&diffUnified, "unified", false, "Print a unified diff instead of side-by-side columns")
	diffCmd.Flags().IntVar(&diffWidth, "width", 160, "Total width of the side-by-side view")
	diffCmd.Flags().BoolVar(&diffAll, "all", false, "Also print resources without changes")
	rootCmd.AddCommand(diffCmd)
}

var (
	diffHeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	diffAddedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	diffRemovedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	diffDimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
)

func runDiff(cmd *cobra.Command, args []string) error {
	wf, _, err := sess.workflow(workflowOptions{cluster: true})
	if err != nil {
		return err
	}
	defer wf.Close()
	if _, err := readManifest(args, cmd.InOrStdin(), wf); err != nil {
		return err
	}

	diffs, err := wf.Diff(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	changed := 0
	for _, d := range diffs {
		if d.Stats.HasChanges() {
			changed++
		} else if !diffAll {
			continue
		}
		fmt.Fprintln(out, diffHeaderStyle.Render(diffTitle(d, wf.Namespace())))
		if diffUnified {
			fmt.Fprint(out, diff.Unified(d.Live, d.Document.Raw, "live/"+d.Document.Key(), "local/"+d.Document.Key()))
		} else {
			renderSideBySide(out, d.Result, diffWidth)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "%d of %d resources differ from %s\n", changed, len(diffs), wf.Namespace())
	return nil
}

func diffTitle(d workflow.DocumentDiff, namespace string) string {
	ns := d.Document.Namespace
	if ns == "" {
		ns = namespace
	}
	title := fmt.Sprintf("%s (%s)", d.Document.Key(), ns)
	switch {
	case !d.Deployed:
		return title + "  not deployed"
	case !d.Stats.HasChanges():
		return title + "  unchanged"
	default:
		return fmt.Sprintf("%s  +%d -%d", title, d.Stats.Added, d.Stats.Removed)
	}
}

// renderSideBySide prints deployed lines on the left and local lines on the
// right, each truncated to half of width.
func renderSideBySide(w io.Writer, res diff.Result, width int) {
	// line number, marker and separators take 16 columns
	col := max((width-16)/2, 10)
	for i := range res.Left {
		left, right := res.Left[i], res.Right[i]
		fmt.Fprintf(w, "%s │ %s\n", diffCell(left, col), diffCell(right, col))
	}
}

func diffCell(l diff.Line, width int) string {
	num := "    "
	if l.LineNumber > 0 {
		num = fmt.Sprintf("%4d", l.LineNumber)
	}
	marker := " "
	style := lipgloss.NewStyle()
	switch l.Type {
	case diff.Added:
		marker, style = "+", diffAddedStyle
	case diff.Removed:
		marker, style = "-", diffRemovedStyle
	}
	text := fmt.Sprintf("%-*s", width, truncate(l.Content, width))
	return diffDimStyle.Render(num) + " " + style.Render(marker+" "+text)
}

// truncate shortens s to at most n runes, marking the cut with "…".
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\t", "  ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
