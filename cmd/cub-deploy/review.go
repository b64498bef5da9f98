// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/confighub/cub-deploy/pkg/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review [FILE]",
	Short: "Ask the AI service to review a manifest",
	Long: `Score a manifest and list issues by severity.

Issues are numbered; pass the numbers to "cub-deploy fix --issues" to fix a
subset.

Examples:
  cub-deploy review app.yaml
  cub-deploy review --json app.yaml
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReview,
}

var fixCmd = &cobra.Command{
	Use:   "fix [FILE]",
	Short: "Review a manifest and apply AI fixes",
	Long: `Review a manifest, then ask the AI service to fix the selected issues.

Every issue is selected unless --issues lists the ones to fix. The fixed
manifest replaces the saved content and is printed, or written back to FILE
with --write.

Examples:
  cub-deploy fix app.yaml
  cub-deploy fix app.yaml --issues 0,2 --write
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFix,
}

var (
	reviewJSON bool
	fixIssues  []int
	fixWrite   bool
)

func init() {
	reviewCmd.Flags().BoolVar(&reviewJSON, "json", false, "Output as JSON")
	fixCmd.Flags().IntSliceVar(&fixIssues, "issues", nil, "Issue numbers to fix (default: all)")
	fixCmd.Flags().BoolVar(&fixWrite, "write", false, "Write the fixed manifest back to FILE")
	rootCmd.AddCommand(reviewCmd, fixCmd)
}

var (
	severityStyles = map[review.Level]lipgloss.Style{
		review.LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		review.LevelWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		review.LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
	}
	scoreStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
)

func runReview(cmd *cobra.Command, args []string) error {
	wf, _, err := sess.workflow(workflowOptions{})
	if err != nil {
		return err
	}
	if _, err := readManifest(args, cmd.InOrStdin(), wf); err != nil {
		return err
	}

	res, err := wf.Review(cmd.Context())
	if err != nil {
		return err
	}
	if reviewJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printReview(cmd.OutOrStdout(), res, nil)
	return nil
}

func runFix(cmd *cobra.Command, args []string) error {
	if fixWrite && (len(args) == 0 || args[0] == "-") {
		return fmt.Errorf("--write needs a FILE to write to")
	}
	wf, _, err := sess.workflow(workflowOptions{})
	if err != nil {
		return err
	}
	if _, err := readManifest(args, cmd.InOrStdin(), wf); err != nil {
		return err
	}

	res, err := wf.Review(cmd.Context())
	if err != nil {
		return err
	}
	if len(res.Issues) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No issues found (score %d), nothing to fix\n", res.Score)
		return nil
	}
	if cmd.Flags().Changed("issues") {
		wf.DeselectAll()
		for _, i := range fixIssues {
			if i < 0 || i >= len(res.Issues) {
				return fmt.Errorf("issue %d out of range (0-%d)", i, len(res.Issues)-1)
			}
			if !slices.Contains(wf.SelectedIssues(), i) {
				wf.ToggleIssue(i)
			}
		}
	}
	printReview(cmd.ErrOrStderr(), res, wf.SelectedIssues())
	sess.log.V(1).Info("Requesting auto-fix", "issues", issueList(wf.SelectedIssues()))

	fix, err := wf.AutoFix(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "\n✓ %s\n", fix.ChangesSummary)

	if fixWrite {
		if err := os.WriteFile(args[0], []byte(fix.FixedText), 0644); err != nil {
			return fmt.Errorf("write %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", args[0])
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), fix.FixedText)
	return nil
}

// printReview lists the issues. When selected is non-nil, selected issues
// are checked.
func printReview(w io.Writer, res *review.Result, selected []int) {
	fmt.Fprintf(w, "%s  security %d  best practices %d\n",
		scoreStyle.Render(fmt.Sprintf("Score %d/100", res.Score)), res.SecurityScore, res.BestPracticeScore)

	counts := res.CountBySeverity()
	var parts []string
	for _, sev := range []review.Severity{review.SeverityCritical, review.SeverityHigh, review.SeverityMedium, review.SeverityLow} {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, string(sev)))
		}
	}
	if len(parts) > 0 {
		fmt.Fprintf(w, "%d issues: %s\n", len(res.Issues), strings.Join(parts, ", "))
	}
	fmt.Fprintln(w)

	for i, is := range res.Issues {
		box := ""
		if selected != nil {
			box = "[ ] "
			if slices.Contains(selected, i) {
				box = "[x] "
			}
		}
		label := severityStyles[review.DisplayLevel(is.Severity)].Render(fmt.Sprintf("%-8s", is.Severity.Label()))
		fmt.Fprintf(w, "%s%2d  %s %s: %s\n", box, i, label, is.Type, is.Message)
		if is.Suggestion != "" {
			fmt.Fprintf(w, "        → %s\n", is.Suggestion)
		}
	}
	for _, s := range res.Suggestions {
		fmt.Fprintf(w, "  • %s\n", s)
	}
}

// issueList formats indices for log lines.
func issueList(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}
