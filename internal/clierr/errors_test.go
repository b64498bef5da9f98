// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package clierr

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

func TestIsForbidden(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "K8s forbidden error",
			err:      apierrors.NewForbidden(schema.GroupResource{Resource: "pods"}, "test", nil),
			expected: true,
		},
		{
			name:     "error with forbidden in message",
			err:      errors.New("forbidden: user cannot list pods"),
			expected: true,
		},
		{
			name:     "error with access denied",
			err:      errors.New("access denied to resource"),
			expected: true,
		},
		{
			name:     "regular error",
			err:      errors.New("something went wrong"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsForbidden(tt.err)
			if got != tt.expected {
				t.Errorf("IsForbidden() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "K8s not found error",
			err:      apierrors.NewNotFound(schema.GroupResource{Resource: "pods"}, "test"),
			expected: true,
		},
		{
			name:     "CRD not installed error",
			err:      errors.New("no matches for kind \"HelmRelease\" in version \"helm.toolkit.fluxcd.io/v2\""),
			expected: true,
		},
		{
			name:     "server could not find error",
			err:      errors.New("the server could not find the requested resource"),
			expected: true,
		},
		{
			name:     "regular not found message",
			err:      errors.New("resource not found"),
			expected: true,
		},
		{
			name:     "regular error",
			err:      errors.New("something went wrong"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsNotFound(tt.err)
			if got != tt.expected {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsNetworkError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "connection refused",
			err:      errors.New("dial tcp 127.0.0.1:6443: connection refused"),
			expected: true,
		},
		{
			name:     "no such host",
			err:      errors.New("dial tcp: lookup kubernetes.local: no such host"),
			expected: true,
		},
		{
			name:     "context deadline exceeded",
			err:      errors.New("context deadline exceeded"),
			expected: true,
		},
		{
			name:     "i/o timeout",
			err:      errors.New("read tcp 192.168.1.1:443: i/o timeout"),
			expected: true,
		},
		{
			name:     "regular error",
			err:      errors.New("something went wrong"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsNetworkError(tt.err)
			if got != tt.expected {
				t.Errorf("IsNetworkError() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "forbidden error",
			err:      apierrors.NewForbidden(schema.GroupResource{}, "", nil),
			expected: TypeForbidden,
		},
		{
			name:     "not found error",
			err:      apierrors.NewNotFound(schema.GroupResource{}, ""),
			expected: TypeNotFound,
		},
		{
			name:     "network error",
			err:      errors.New("connection refused"),
			expected: TypeNetwork,
		},
		{
			name:     "internal error",
			err:      errors.New("unexpected error"),
			expected: TypeInternal,
		},
		{
			name:     "safety timeout",
			err:      &TimeoutError{Operation: "list namespaces", After: "35s"},
			expected: TypeTimeout,
		},
		{
			name:     "wrapped parse error",
			err:      fmt.Errorf("load editor: %w", &ParseError{Document: 2, Err: errors.New("bad indent")}),
			expected: TypeParse,
		},
		{
			name:     "apply error wins over not found text",
			err:      &ApplyError{Message: "namespace not found"},
			expected: TypeApply,
		},
		{
			name:     "review error",
			err:      &ReviewError{Err: errors.New("connection refused")},
			expected: TypeReview,
		},
		{
			name:     "auto-fix error",
			err:      &AutoFixError{Err: ErrNoIssuesSelected},
			expected: TypeReview,
		},
		{
			name:     "not deployed",
			err:      fmt.Errorf("get Deployment/web: %w", ErrNotDeployed),
			expected: TypeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			if got != tt.expected {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPretty(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantContain []string
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name:        "forbidden error includes RBAC hint",
			err:         errors.New("forbidden: access denied"),
			wantContain: []string{"RBAC"},
		},
		{
			name:        "CRD not found includes install hint",
			err:         errors.New("no matches for kind \"HelmRelease\""),
			wantContain: []string{"CRD not installed"},
		},
		{
			name:        "network error includes connectivity hint",
			err:         errors.New("connection refused"),
			wantContain: []string{"cluster connectivity"},
		},
		{
			name: "apply error lists every resource error",
			err: &ApplyError{
				Message: "2 of 3 resources failed",
				Errors:  []string{"Deployment/web: invalid", "Service/web: immutable"},
			},
			wantContain: []string{"2 of 3 resources failed", "  - Deployment/web: invalid", "  - Service/web: immutable"},
		},
		{
			name:        "timeout prompts retry",
			err:         &TimeoutError{Operation: "list namespaces", After: "35s"},
			wantContain: []string{"please retry"},
		},
		{
			name:        "review keeps previous state",
			err:         &ReviewError{Err: errors.New("status 502")},
			wantContain: []string{"previous review", "status 502"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pretty(tt.err)
			if tt.err == nil && got != "" {
				t.Errorf("Pretty(nil) = %q, want empty", got)
			}
			for _, want := range tt.wantContain {
				if !strings.Contains(got, want) {
					t.Errorf("Pretty() = %q, want to contain %q", got, want)
				}
			}
		})
	}
}

func TestTaxonomyUnwrap(t *testing.T) {
	cause := errors.New("boom")
	wrapped := []error{
		&ParseError{Err: cause},
		&ApplyError{Message: "m", Err: cause},
		&ReviewError{Err: cause},
		&AutoFixError{Err: cause},
		&StatusFetchError{Kind: "Pod", Name: "a", Err: cause},
	}
	for _, err := range wrapped {
		if !errors.Is(err, cause) {
			t.Errorf("%T does not unwrap to its cause", err)
		}
	}

	fetchErr := &StatusFetchError{Kind: "Deployment", Name: "web", Err: cause}
	if got := fetchErr.Error(); got != "fetch status Deployment/web: boom" {
		t.Errorf("StatusFetchError.Error() = %q", got)
	}
}

func TestNothingFound(t *testing.T) {
	result := NothingFound("app.yaml")
	if !strings.Contains(result, "app.yaml") {
		t.Errorf("NothingFound() should contain the source name")
	}
	if !strings.HasPrefix(result, "No ") {
		t.Errorf("NothingFound() should start with 'No '")
	}
}

func TestWrapWithHint(t *testing.T) {
	if WrapWithHint(nil, "hint") != nil {
		t.Error("WrapWithHint(nil) should be nil")
	}
	base := errors.New("base")
	err := WrapWithHint(base, "try again")
	if !errors.Is(err, base) || !strings.Contains(err.Error(), "Hint: try again") {
		t.Errorf("WrapWithHint() = %v", err)
	}
}
