// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/confighub/cub-deploy/internal/kube"
)

// Namespace completion cache (avoid repeated API calls during tab-complete)
var (
	cachedNamespaces     []string
	namespaceCacheKey    string
	namespaceCacheExpiry time.Time
	namespaceCacheMu     sync.Mutex
)

// listNamespaces is replaced in tests.
var listNamespaces = func(ctx context.Context, opts kube.Options) ([]string, error) {
	c, err := kube.New(opts)
	if err != nil {
		return nil, err
	}
	return c.ListNamespaces(ctx)
}

// completeNamespaces returns available namespaces from the kubeconfig
// context selected by --kubeconfig and --context.
func completeNamespaces(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	kubeconfig, _ := cmd.Flags().GetString("kubeconfig")
	kubeContext, _ := cmd.Flags().GetString("context")
	key := kubeconfig + "\x00" + kubeContext

	namespaceCacheMu.Lock()
	defer namespaceCacheMu.Unlock()

	// Return cache if fresh (3 second TTL)
	if key == namespaceCacheKey && time.Now().Before(namespaceCacheExpiry) && len(cachedNamespaces) > 0 {
		return filterPrefix(cachedNamespaces, toComplete), cobra.ShellCompDirectiveNoFileComp
	}

	// Quick timeout for completion - don't block shell
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	namespaces, err := listNamespaces(ctx, kube.Options{
		Kubeconfig:  kubeconfig,
		Context:     kubeContext,
		ListTimeout: 2 * time.Second,
	})
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	cachedNamespaces = namespaces
	namespaceCacheKey = key
	namespaceCacheExpiry = time.Now().Add(3 * time.Second)

	return filterPrefix(namespaces, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeManifests offers YAML files for FILE arguments
func completeManifests(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return []string{"yaml", "yml"}, cobra.ShellCompDirectiveFilterFileExt
}

// filterPrefix filters strings by prefix (case-insensitive)
func filterPrefix(items []string, prefix string) []string {
	if prefix == "" {
		return items
	}
	var filtered []string
	lowerPrefix := strings.ToLower(prefix)
	for _, item := range items {
		if strings.HasPrefix(strings.ToLower(item), lowerPrefix) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func init() {
	for _, c := range []*cobra.Command{parseCmd, diffCmd, reviewCmd, fixCmd, applyCmd} {
		c.ValidArgsFunction = completeManifests
	}
}
