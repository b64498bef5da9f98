// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/confighub/cub-deploy/pkg/hub"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the AI review service token",
	Long: `Store or remove the bearer token sent to the AI review service.

A token passed with --ai-token or CUB_DEPLOY_AI_TOKEN takes precedence over
the stored one.
`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a token for the AI review service",
	Long: `Store a token for the AI review service.

Examples:
  cub-deploy auth login --token "$TOKEN"
  echo "$TOKEN" | cub-deploy auth login
`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipSetup: "true"},
	RunE:        runLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:         "logout",
	Short:       "Remove the stored token",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipSetup: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := hub.ClearAuth(); err != nil {
			return fmt.Errorf("remove token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a token is available",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		auth, err := hub.LoadAuth(sess.cfg.AI.Token)
		if err != nil {
			return fmt.Errorf("load token: %w", err)
		}
		url := sess.cfg.AI.URL
		if url == "" {
			url = hub.DefaultBaseURL
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Service: %s\n", url)
		if auth.IsAuthenticated() {
			fmt.Fprintln(out, "Token:   set")
		} else {
			fmt.Fprintln(out, "Token:   not set (run: cub-deploy auth login)")
		}
		return nil
	},
}

var loginToken string

func init() {
	authLoginCmd.Flags().StringVar(&loginToken, "token", "", "Token to store (default: read from stdin)")
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	token := strings.TrimSpace(loginToken)
	if token == "" {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return errors.New("no token given; pass --token or pipe it on stdin")
		}
		token = strings.TrimSpace(line)
	}
	if token == "" {
		return errors.New("no token given; pass --token or pipe it on stdin")
	}
	if err := hub.SaveAuth(&hub.Auth{Token: token}); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Token saved")
	return nil
}
