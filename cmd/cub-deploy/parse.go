// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/confighub/cub-deploy/internal/clierr"
	"github.com/confighub/cub-deploy/pkg/manifest"
)

var parseCmd = &cobra.Command{
	Use:   "parse [FILE]",
	Short: "List the resources in a manifest",
	Long: `List the resources in a multi-document YAML manifest.

Documents without a kind are listed with an empty kind; blank documents
between '---' separators are skipped.

Examples:
  cub-deploy parse app.yaml
  kustomize build overlays/prod | cub-deploy parse -
  cub-deploy parse --json app.yaml
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runParse,
}

var parseJSON bool

func init() {
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	wf, _, err := sess.workflow(workflowOptions{})
	if err != nil {
		return err
	}
	source, err := readManifest(args, cmd.InOrStdin(), wf)
	if err != nil {
		return err
	}

	docs, err := manifest.ParseStrict(wf.Content())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if parseJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if docs == nil {
			docs = manifest.Set{}
		}
		return enc.Encode(docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(out, clierr.NothingFound(source))
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tNAMESPACE\tAPIVERSION")
	for _, d := range docs {
		ns := d.Namespace
		if ns == "" {
			ns = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Kind, d.Name, ns, d.APIVersion)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d resources (%d kinds)\n", len(docs), len(docs.Kinds()))
	return nil
}
