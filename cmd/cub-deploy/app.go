// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/confighub/cub-deploy/internal/config"
	"github.com/confighub/cub-deploy/internal/kube"
	"github.com/confighub/cub-deploy/internal/logging"
	"github.com/confighub/cub-deploy/internal/state"
	"github.com/confighub/cub-deploy/internal/workflow"
	"github.com/confighub/cub-deploy/pkg/hub"
	"github.com/confighub/cub-deploy/pkg/tracker"
)

// skipSetup marks commands that run without configuration.
const skipSetup = "cub-deploy/skip-setup"

// session is the per-invocation state shared by commands.
type session struct {
	cfg  config.Config
	log  logr.Logger
	kube *kube.Client
}

var sess = &session{log: logr.Discard()}

// setup resolves configuration and the logger before any command runs.
func setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipSetup] == "true" {
		return nil
	}
	loader := config.NewLoader(configPath)
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return err
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	if path := loader.ConfigFileUsed(); path != "" {
		log.V(1).Info("Loaded config", "path", path)
	}
	sess.cfg = cfg
	sess.log = log
	sess.kube = nil
	return nil
}

// kubeClient connects to the cluster on first use.
func (s *session) kubeClient() (*kube.Client, error) {
	if s.kube != nil {
		return s.kube, nil
	}
	c, err := kube.New(kube.Options{
		Kubeconfig:  s.cfg.Kubeconfig,
		Context:     s.cfg.Context,
		ListTimeout: s.cfg.ListTimeout,
		Logger:      s.log.WithName("kube"),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to cluster: %w", err)
	}
	s.log.V(1).Info("Connected", "cluster", c.ClusterName(), "context", c.ContextName)
	s.kube = c
	return c, nil
}

func (s *session) editor() (*state.Editor, error) {
	store, err := state.OpenFileStore(s.cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("open saved state: %w", err)
	}
	return state.NewEditor(store), nil
}

// workflowOptions choose which collaborators a command needs.
type workflowOptions struct {
	cluster  bool
	observer tracker.Observer
}

// workflow assembles a Workflow over the saved editor state. The returned
// tracker is nil unless a cluster was requested.
func (s *session) workflow(opts workflowOptions) (*workflow.Workflow, *tracker.Tracker, error) {
	ed, err := s.editor()
	if err != nil {
		return nil, nil, err
	}
	if s.cfg.Namespace != "" && s.cfg.Namespace != ed.Namespace() {
		if err := ed.SetNamespace(s.cfg.Namespace); err != nil {
			return nil, nil, fmt.Errorf("save namespace: %w", err)
		}
	}

	ai, err := hub.NewClient(hub.Config{
		BaseURL: s.cfg.AI.URL,
		Token:   s.cfg.AI.Token,
		Timeout: s.cfg.AI.Timeout,
	})
	if err != nil {
		return nil, nil, err
	}

	deps := workflow.Deps{
		Editor:   ed,
		Review:   ai,
		Notifier: workflow.NotifierFunc(s.notify),
		Logger:   s.log,
	}
	var tr *tracker.Tracker
	if opts.cluster {
		c, err := s.kubeClient()
		if err != nil {
			return nil, nil, err
		}
		tr = tracker.New(c, tracker.Options{
			Interval: s.cfg.Tracker.Interval,
			Timeout:  s.cfg.Tracker.Timeout,
			Logger:   s.log.WithName("tracker"),
			Observer: opts.observer,
		})
		deps.Cluster = c
		deps.Tracker = tr
	}
	return workflow.New(deps), tr, nil
}

// notify sends workflow notifications to the debug log; commands print
// their own results.
func (s *session) notify(n workflow.Notification) {
	kv := []any{"level", n.Level, "message", n.Message}
	if len(n.Details) > 0 {
		kv = append(kv, "details", n.Details)
	}
	s.log.V(1).Info(n.Title, kv...)
}
