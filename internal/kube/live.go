// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package kube

import (
	"context"
	"errors"
	"fmt"
	"sort"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"

	"github.com/confighub/cub-deploy/internal/clierr"
	"github.com/confighub/cub-deploy/internal/status"
	"github.com/confighub/cub-deploy/pkg/tracker"
)

var _ tracker.StatusSource = (*Client)(nil)

// lastApplied is written by client-side kubectl apply and would show up as
// noise in every diff.
const lastApplied = "kubectl.kubernetes.io/last-applied-configuration"

func (c *Client) get(ctx context.Context, kind, name, namespace string) (*unstructured.Unstructured, error) {
	m, err := c.mapping(kind, "")
	if err != nil {
		if meta.IsNoMatchError(err) {
			// The kind is not served (yet), e.g. a CRD applied in the same batch.
			return nil, clierr.ErrNotDeployed
		}
		return nil, err
	}
	obj, err := c.resource(m, namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, clierr.ErrNotDeployed
	}
	return obj, err
}

// GetResourceYAML returns the live object as YAML without server-managed
// fields. A missing object returns clierr.ErrNotDeployed.
func (c *Client) GetResourceYAML(ctx context.Context, kind, name, namespace string) (string, error) {
	obj, err := c.get(ctx, kind, name, namespace)
	if err != nil {
		return "", err
	}

	unstructured.RemoveNestedField(obj.Object, "status")
	for _, f := range volatileMetadata {
		unstructured.RemoveNestedField(obj.Object, "metadata", f)
	}
	if ann := obj.GetAnnotations(); ann != nil {
		delete(ann, lastApplied)
		if len(ann) == 0 {
			ann = nil
		}
		obj.SetAnnotations(ann)
	}

	out, err := yaml.Marshal(obj.Object)
	if err != nil {
		return "", fmt.Errorf("render %s/%s: %w", kind, name, err)
	}
	return string(out), nil
}

// GetResourceStatus implements tracker.StatusSource.
func (c *Client) GetResourceStatus(ctx context.Context, kind, name, namespace string) (tracker.Status, bool, error) {
	obj, err := c.get(ctx, kind, name, namespace)
	if errors.Is(err, clierr.ErrNotDeployed) {
		return tracker.Status{}, false, nil
	}
	if err != nil {
		return tracker.Status{}, false, err
	}
	return status.Detect(obj, c.now()), true, nil
}

// ListNamespaces returns namespace names sorted. The call is abandoned
// with a *clierr.TimeoutError once ListTimeout elapses, even if the
// transport ignores cancellation.
func (c *Client) ListNamespaces(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.ListTimeout)
	defer cancel()

	type listed struct {
		names []string
		err   error
	}
	ch := make(chan listed, 1)
	go func() {
		list, err := c.Clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
		if err != nil {
			ch <- listed{err: err}
			return
		}
		names := make([]string, 0, len(list.Items))
		for _, ns := range list.Items {
			names = append(names, ns.Name)
		}
		sort.Strings(names)
		ch <- listed{names: names}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, c.listTimeout()
		}
		return r.names, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, c.listTimeout()
		}
		return nil, ctx.Err()
	}
}

func (c *Client) listTimeout() error {
	c.log.Info("Namespace list timed out", "after", c.ListTimeout)
	return &clierr.TimeoutError{Operation: "loading namespaces", After: c.ListTimeout.String()}
}
