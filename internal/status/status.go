// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package status classifies live Kubernetes objects into the health phases
// reported while tracking a deployment.
package status

import (
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/duration"

	"github.com/confighub/cub-deploy/pkg/tracker"
)

// configKinds are ready as soon as they exist.
var configKinds = map[string]bool{
	"ConfigMap":           true,
	"Secret":              true,
	"ServiceAccount":      true,
	"Role":                true,
	"RoleBinding":         true,
	"ClusterRole":         true,
	"ClusterRoleBinding":  true,
	"Namespace":           true,
	"NetworkPolicy":       true,
	"Ingress":             true,
	"PodDisruptionBudget": true,
	"LimitRange":          true,
	"ResourceQuota":       true,
}

// Detect determines the health of a live object. now is used for the age.
func Detect(obj *unstructured.Unstructured, now time.Time) tracker.Status {
	st := classify(obj)
	if ts := obj.GetCreationTimestamp(); !ts.IsZero() {
		st.Age = duration.HumanDuration(now.Sub(ts.Time))
	}
	return st
}

func classify(obj *unstructured.Unstructured) tracker.Status {
	kind := obj.GetKind()

	switch kind {
	case "Deployment":
		return detectDeployment(obj)
	case "StatefulSet":
		return detectStatefulSet(obj)
	case "DaemonSet":
		return detectDaemonSet(obj)
	case "Job":
		return detectJob(obj)
	case "Service":
		return detectService(obj)
	}
	if configKinds[kind] {
		return tracker.Status{Phase: tracker.PhaseReady}
	}

	status, _, _ := unstructured.NestedMap(obj.Object, "status")
	if status == nil {
		return tracker.Status{Phase: tracker.PhaseUnknown}
	}

	// Ready condition, as set by Flux and most controllers
	if cond := condition(obj, "Ready"); cond != nil {
		msg, _ := cond["message"].(string)
		switch cond["status"] {
		case "True":
			return tracker.Status{Phase: tracker.PhaseReady}
		case "False":
			return tracker.Status{Phase: tracker.PhaseFailed, Message: msg}
		default:
			return tracker.Status{Phase: tracker.PhasePending, Message: msg}
		}
	}

	// Pods, PVCs and namespaces report a phase
	if phase, ok := status["phase"].(string); ok {
		switch phase {
		case "Running", "Succeeded", "Bound", "Active":
			return tracker.Status{Phase: tracker.PhaseReady}
		case "Pending", "ContainerCreating":
			return tracker.Status{Phase: tracker.PhasePending, Message: phase}
		case "Failed", "Error", "CrashLoopBackOff", "Lost":
			return tracker.Status{Phase: tracker.PhaseFailed, Message: phase}
		}
	}

	return tracker.Status{Phase: tracker.PhaseUnknown}
}

// desired returns spec.replicas, defaulting to 1 when unset.
func desired(obj *unstructured.Unstructured) int64 {
	n, found, _ := unstructured.NestedInt64(obj.Object, "spec", "replicas")
	if !found {
		return 1
	}
	return n
}

func replicaStatus(ready, want int64) tracker.Status {
	counts := fmt.Sprintf("%d/%d", ready, want)
	switch {
	case ready >= want:
		return tracker.Status{Phase: tracker.PhaseReady, Ready: counts}
	case ready > 0:
		return tracker.Status{Phase: tracker.PhaseDegraded, Ready: counts, Message: "partially available"}
	default:
		return tracker.Status{Phase: tracker.PhasePending, Ready: counts}
	}
}

func detectDeployment(obj *unstructured.Unstructured) tracker.Status {
	want := desired(obj)
	ready, _, _ := unstructured.NestedInt64(obj.Object, "status", "readyReplicas")
	available, _, _ := unstructured.NestedInt64(obj.Object, "status", "availableReplicas")
	updated, _, _ := unstructured.NestedInt64(obj.Object, "status", "updatedReplicas")

	if cond := condition(obj, "Progressing"); cond != nil && cond["reason"] == "ProgressDeadlineExceeded" {
		msg, _ := cond["message"].(string)
		return tracker.Status{Phase: tracker.PhaseFailed, Ready: fmt.Sprintf("%d/%d", ready, want), Message: msg}
	}

	st := replicaStatus(min(ready, available), want)
	if st.Phase == tracker.PhaseReady && updated < want {
		st.Phase = tracker.PhasePending
		st.Message = "rollout in progress"
	}
	return st
}

func condition(obj *unstructured.Unstructured, condType string) map[string]interface{} {
	conditions, _, _ := unstructured.NestedSlice(obj.Object, "status", "conditions")
	for _, c := range conditions {
		cond, ok := c.(map[string]interface{})
		if ok && cond["type"] == condType {
			return cond
		}
	}
	return nil
}

func detectStatefulSet(obj *unstructured.Unstructured) tracker.Status {
	ready, _, _ := unstructured.NestedInt64(obj.Object, "status", "readyReplicas")
	return replicaStatus(ready, desired(obj))
}

func detectDaemonSet(obj *unstructured.Unstructured) tracker.Status {
	want, _, _ := unstructured.NestedInt64(obj.Object, "status", "desiredNumberScheduled")
	ready, _, _ := unstructured.NestedInt64(obj.Object, "status", "numberReady")
	if want == 0 {
		// Nothing scheduled yet, or no eligible nodes.
		return tracker.Status{Phase: tracker.PhasePending, Ready: "0/0"}
	}
	return replicaStatus(ready, want)
}

func detectJob(obj *unstructured.Unstructured) tracker.Status {
	completions, found, _ := unstructured.NestedInt64(obj.Object, "spec", "completions")
	if !found {
		completions = 1
	}
	succeeded, _, _ := unstructured.NestedInt64(obj.Object, "status", "succeeded")
	failed, _, _ := unstructured.NestedInt64(obj.Object, "status", "failed")
	counts := fmt.Sprintf("%d/%d", succeeded, completions)

	if cond := condition(obj, "Failed"); cond != nil && cond["status"] == "True" {
		msg, _ := cond["message"].(string)
		return tracker.Status{Phase: tracker.PhaseFailed, Ready: counts, Message: msg}
	}
	if succeeded >= completions {
		return tracker.Status{Phase: tracker.PhaseReady, Ready: counts}
	}
	if failed > 0 {
		return tracker.Status{Phase: tracker.PhaseDegraded, Ready: counts, Message: fmt.Sprintf("%d failed attempts", failed)}
	}
	return tracker.Status{Phase: tracker.PhasePending, Ready: counts}
}

func detectService(obj *unstructured.Unstructured) tracker.Status {
	typ, _, _ := unstructured.NestedString(obj.Object, "spec", "type")
	if typ != "LoadBalancer" {
		return tracker.Status{Phase: tracker.PhaseReady}
	}
	ingress, _, _ := unstructured.NestedSlice(obj.Object, "status", "loadBalancer", "ingress")
	if len(ingress) == 0 {
		return tracker.Status{Phase: tracker.PhasePending, Message: "waiting for load balancer"}
	}
	return tracker.Status{Phase: tracker.PhaseReady}
}
