// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var namespacesCmd = &cobra.Command{
	Use:     "namespaces",
	Aliases: []string{"ns"},
	Short:   "List namespaces in the cluster",
	Long: `List namespaces in the current cluster and mark the selected one.

The request gives up after list.timeout (35s by default) and asks you to
retry.
`,
	Args: cobra.NoArgs,
	RunE: runNamespaces,
}

func init() {
	rootCmd.AddCommand(namespacesCmd)
}

func runNamespaces(cmd *cobra.Command, _ []string) error {
	wf, _, err := sess.workflow(workflowOptions{cluster: true})
	if err != nil {
		return err
	}
	defer wf.Close()

	names, err := wf.LoadNamespaces(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	selected := wf.Namespace()
	for _, ns := range names {
		marker := "  "
		if ns == selected {
			marker = "* "
		}
		suffix := ""
		if sess.cfg.IsProdNamespace(ns) {
			suffix = "  (production)"
		}
		fmt.Fprintf(out, "%s%s%s\n", marker, ns, suffix)
	}
	return nil
}
