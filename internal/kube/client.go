// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package kube implements the cluster operations of a deployment against
// the Kubernetes API: server-side apply, live YAML, resource health, and
// namespace listing.
package kube

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
)

// FieldManager owns the fields written by server-side apply.
const FieldManager = "cub-deploy"

// DefaultListTimeout bounds list calls that would otherwise leave the
// caller loading forever on a stalled API server.
const DefaultListTimeout = 35 * time.Second

// Options configure New.
type Options struct {
	Kubeconfig  string
	Context     string
	ListTimeout time.Duration
	Logger      logr.Logger
}

// Client bundles the Kubernetes clients used by cub-deploy.
type Client struct {
	Clientset   kubernetes.Interface
	Dynamic     dynamic.Interface
	Mapper      meta.RESTMapper
	Namespace   string // kubeconfig default, used when no namespace is given
	ContextName string
	ListTimeout time.Duration

	log logr.Logger
	now func() time.Time

	mu       sync.Mutex
	versions map[string]string // kind -> apiVersion seen in applied manifests
}

// New builds a client from the in-cluster config, falling back to the
// kubeconfig.
func New(opts Options) (*Client, error) {
	cfg, namespace, contextName, err := buildConfig(opts.Kubeconfig, opts.Context)
	if err != nil {
		return nil, err
	}
	rest.SetDefaultWarningHandler(rest.NoWarnings{})
	cfg.QPS = 50
	cfg.Burst = 100

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create typed client: %w", err)
	}
	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create dynamic client: %w", err)
	}
	dc, err := discovery.NewDiscoveryClientForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create discovery client: %w", err)
	}
	mapper := restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(dc))

	c := NewForClients(clientset, dyn, mapper, namespace, opts.Logger)
	c.ContextName = contextName
	if opts.ListTimeout > 0 {
		c.ListTimeout = opts.ListTimeout
	}
	return c, nil
}

// NewForClients wraps existing clients.
func NewForClients(cs kubernetes.Interface, dyn dynamic.Interface, mapper meta.RESTMapper, namespace string, log logr.Logger) *Client {
	if namespace == "" {
		namespace = "default"
	}
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Client{
		Clientset:   cs,
		Dynamic:     dyn,
		Mapper:      mapper,
		Namespace:   namespace,
		ListTimeout: DefaultListTimeout,
		log:         log,
		now:         time.Now,
		versions:    make(map[string]string),
	}
}

// buildConfig tries in-cluster config first, then the kubeconfig.
func buildConfig(kubeconfig, contextName string) (*rest.Config, string, string, error) {
	if kubeconfig == "" && contextName == "" {
		if cfg, err := rest.InClusterConfig(); err == nil {
			ns := "default"
			if b, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace"); err == nil {
				ns = strings.TrimSpace(string(b))
			}
			return cfg, ns, "in-cluster", nil
		}
	}

	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = filepath.Clean(kubeconfig)
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: contextName}
	cc := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides)

	cfg, err := cc.ClientConfig()
	if err != nil {
		return nil, "", "", fmt.Errorf("load kubeconfig: %w", err)
	}
	ns, _, err := cc.Namespace()
	if err != nil {
		return nil, "", "", fmt.Errorf("resolve default namespace: %w", err)
	}

	current := contextName
	if current == "" {
		if raw, err := cc.RawConfig(); err == nil {
			current = raw.CurrentContext
		}
	}
	return cfg, ns, current, nil
}

// ClusterName returns a short cluster name derived from the context.
func (c *Client) ClusterName() string {
	return clusterName(c.ContextName)
}

// clusterName shortens EKS ARNs, GKE contexts and kind contexts.
func clusterName(contextName string) string {
	switch {
	case contextName == "":
		return "unknown"
	case strings.HasPrefix(contextName, "arn:aws:eks:"):
		if idx := strings.LastIndex(contextName, "/"); idx != -1 {
			return contextName[idx+1:]
		}
	case strings.HasPrefix(contextName, "gke_"):
		if parts := strings.Split(contextName, "_"); len(parts) >= 4 {
			return parts[len(parts)-1]
		}
	case strings.HasPrefix(contextName, "kind-"):
		return strings.TrimPrefix(contextName, "kind-")
	}
	return contextName
}

func (c *Client) rememberVersion(kind, apiVersion string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[kind] = apiVersion
}

func (c *Client) knownVersion(kind string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[kind]
}

// mapping resolves kind to a REST mapping. Without an apiVersion the
// version last applied for kind is used, then discovery by resource name.
func (c *Client) mapping(kind, apiVersion string) (*meta.RESTMapping, error) {
	if apiVersion == "" {
		apiVersion = c.knownVersion(kind)
	}
	if apiVersion != "" {
		gv, err := schema.ParseGroupVersion(apiVersion)
		if err != nil {
			return nil, fmt.Errorf("parse apiVersion %q: %w", apiVersion, err)
		}
		return c.Mapper.RESTMapping(gv.WithKind(kind).GroupKind(), gv.Version)
	}

	gvk, err := c.Mapper.KindFor(schema.GroupVersionResource{Resource: strings.ToLower(kind)})
	if err != nil {
		return nil, fmt.Errorf("resolve kind %q: %w", kind, err)
	}
	return c.Mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
}

// resource returns the dynamic client for m, scoped to namespace when the
// resource is namespaced.
func (c *Client) resource(m *meta.RESTMapping, namespace string) dynamic.ResourceInterface {
	res := c.Dynamic.Resource(m.Resource)
	if m.Scope.Name() != meta.RESTScopeNameNamespace {
		return res
	}
	if namespace == "" {
		namespace = c.Namespace
	}
	return res.Namespace(namespace)
}
