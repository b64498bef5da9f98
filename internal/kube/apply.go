// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package kube

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/yaml"

	"github.com/confighub/cub-deploy/pkg/apply"
	"github.com/confighub/cub-deploy/pkg/manifest"
)

var _ apply.Cluster = (*Client)(nil)

// ApplyManifests server-side applies every document in text. Documents
// without a namespace land in namespace. A failing document is recorded in
// Errors and the remaining documents are still applied.
func (c *Client) ApplyManifests(ctx context.Context, text, namespace string, dryRun bool) (apply.Result, error) {
	docs, err := manifest.ParseStrict(text)
	if err != nil {
		return apply.Result{}, err
	}
	if namespace == "" {
		namespace = c.Namespace
	}

	res := apply.Result{Resources: []apply.Resource{}}
	for _, doc := range docs {
		r, err := c.applyDocument(ctx, doc, namespace, dryRun)
		if err != nil {
			c.log.V(1).Info("apply failed", "resource", doc.Key(), "error", err.Error())
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", doc.Key(), err))
			continue
		}
		c.log.V(1).Info("applied", "resource", doc.Key(), "action", r.Action, "dryRun", dryRun)
		res.Resources = append(res.Resources, r)
	}

	res.Success = len(res.Errors) == 0
	switch {
	case !res.Success:
		res.Message = fmt.Sprintf("%d of %d documents failed", len(res.Errors), len(docs))
	case dryRun:
		res.Message = fmt.Sprintf("Dry run passed for %d resources", len(res.Resources))
	default:
		res.Message = fmt.Sprintf("Applied %d resources", len(res.Resources))
	}
	return res, nil
}

func (c *Client) applyDocument(ctx context.Context, doc manifest.Document, namespace string, dryRun bool) (apply.Resource, error) {
	if doc.Kind == "" {
		return apply.Resource{}, fmt.Errorf("missing kind")
	}
	if doc.Name == "" {
		return apply.Resource{}, fmt.Errorf("missing metadata.name")
	}

	data, err := yaml.YAMLToJSON([]byte(doc.Raw))
	if err != nil {
		return apply.Resource{}, fmt.Errorf("convert manifest to json: %w", err)
	}
	var obj unstructured.Unstructured
	if err := obj.UnmarshalJSON(data); err != nil {
		return apply.Resource{}, fmt.Errorf("parse manifest: %w", err)
	}

	gvk := obj.GroupVersionKind()
	m, err := c.Mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		return apply.Resource{}, fmt.Errorf("rest mapping for %s: %w", gvk, err)
	}
	if m.Scope.Name() == meta.RESTScopeNameNamespace {
		if obj.GetNamespace() == "" {
			obj.SetNamespace(namespace)
		}
	} else {
		obj.SetNamespace("")
	}
	obj.SetManagedFields(nil)
	obj.SetResourceVersion("")

	body, err := obj.MarshalJSON()
	if err != nil {
		return apply.Resource{}, err
	}

	ri := c.resource(m, obj.GetNamespace())
	before, err := ri.Get(ctx, obj.GetName(), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		before = nil
	} else if err != nil {
		return apply.Resource{}, err
	}

	force := true
	opts := metav1.PatchOptions{FieldManager: FieldManager, Force: &force}
	if dryRun {
		opts.DryRun = []string{metav1.DryRunAll}
	}
	after, err := ri.Patch(ctx, obj.GetName(), types.ApplyPatchType, body, opts)
	if err != nil {
		return apply.Resource{}, err
	}
	c.rememberVersion(doc.Kind, obj.GetAPIVersion())

	return apply.Resource{
		Kind:      doc.Kind,
		Name:      obj.GetName(),
		Namespace: obj.GetNamespace(),
		Action:    classifyAction(before, after),
	}, nil
}

// volatileMetadata changes on every write without reflecting user intent.
var volatileMetadata = []string{
	"managedFields",
	"resourceVersion",
	"generation",
	"uid",
	"creationTimestamp",
	"selfLink",
}

// classifyAction compares the object before and after the apply. A nil
// before means the object did not exist.
func classifyAction(before, after *unstructured.Unstructured) apply.Action {
	if before == nil {
		return apply.ActionCreated
	}
	if after == nil || equality.Semantic.DeepEqual(intent(before), intent(after)) {
		return apply.ActionUnchanged
	}
	return apply.ActionUpdated
}

func intent(obj *unstructured.Unstructured) map[string]interface{} {
	cp := obj.DeepCopy()
	unstructured.RemoveNestedField(cp.Object, "status")
	for _, f := range volatileMetadata {
		unstructured.RemoveNestedField(cp.Object, "metadata", f)
	}
	return cp.Object
}
