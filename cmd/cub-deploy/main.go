// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Command cub-deploy previews, reviews, applies and watches Kubernetes
// manifests.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/confighub/cub-deploy/internal/clierr"
)

var (
	// BuildTag is set during build
	BuildTag = "dev"
	// BuildDate is set during build
	BuildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "cub-deploy",
	Short: "Preview, review and deploy Kubernetes manifests",
	Long: `cub-deploy - preview, review and deploy Kubernetes manifests

cub-deploy takes a multi-document YAML manifest and walks it through the
deployment workflow:

  - Parsing the manifest into resources
  - Diffing each resource against what is deployed
  - AI review with selectable issues and auto-fix
  - Server-side apply with a deployment summary
  - Health tracking until every resource is ready

Commands that take a FILE also accept "-" for stdin. Without a FILE the
manifest saved by the last run is used.

Environment Variables:
  CUB_DEPLOY_CONFIG       Path to a config file (default: ~/.config/cub-deploy/config.yaml)
  CUB_DEPLOY_NAMESPACE    Target namespace (same as --namespace)
  CUB_DEPLOY_AI_URL       AI review service URL
  CUB_DEPLOY_AI_TOKEN     AI review service token
  KUBECONFIG              Path to kubeconfig file (default: ~/.kube/config)
`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, clierr.Pretty(err))
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default: ~/.config/cub-deploy/config.yaml)")
	pf.String("log-level", "info", "Log level: debug, info, warn, or error")
	pf.StringP("namespace", "n", "", "Target namespace (default: the last one used)")
	pf.String("kubeconfig", "", "Path to kubeconfig file")
	pf.String("context", "", "Kubeconfig context to use")
	pf.String("ai-url", "", "AI review service URL")
	pf.String("ai-token", "", "AI review service token")
	pf.String("state-path", "", "Where the editor content and namespace are saved")
	_ = rootCmd.RegisterFlagCompletionFunc("namespace", completeNamespaces)

	// Add version command
	rootCmd.AddCommand(&cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipSetup: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cub-deploy version %s (built %s)\n", BuildTag, BuildDate)
		},
	})

	// Add completion command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for cub-deploy.

Bash:
  $ source <(cub-deploy completion bash)
  # Or add to ~/.bashrc:
  $ cub-deploy completion bash >> ~/.bashrc

Zsh:
  $ source <(cub-deploy completion zsh)
  # Or install to fpath:
  $ cub-deploy completion zsh > "${fpath[1]}/_cub-deploy"

Fish:
  $ cub-deploy completion fish | source
  # Or install:
  $ cub-deploy completion fish > ~/.config/fish/completions/cub-deploy.fish

PowerShell:
  PS> cub-deploy completion powershell | Out-String | Invoke-Expression
`,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.ExactArgs(1),
		DisableFlagsInUseLine: true,
		Annotations:           map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	})
}
