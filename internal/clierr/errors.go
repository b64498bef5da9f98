// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package clierr holds the deployment workflow's error taxonomy and turns
// errors into user-facing messages with actionable hints.
package clierr

import (
	"errors"
	"fmt"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Error classes used when rendering errors for the user.
const (
	TypeNotFound   = "not_found"  // Resource or CRD not found
	TypeForbidden  = "forbidden"  // RBAC access denied
	TypeNetwork    = "network"    // Connection/network errors
	TypeTimeout    = "timeout"    // Client-side safety timeout fired
	TypeParse      = "parse"      // Manifest text could not be parsed
	TypeApply      = "apply"      // Backend rejected an apply
	TypeReview     = "review"     // AI review/auto-fix failed
	TypeInternal   = "internal"   // Internal/unexpected errors
	TypeValidation = "validation" // Input validation errors
)

// ErrNotDeployed is returned when a live resource does not exist yet.
// It is a valid outcome, not a failure.
var ErrNotDeployed = errors.New("resource not deployed")

// ParseError reports manifest text that could not be decoded.
type ParseError struct {
	Document int // 1-based index of the failing document
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse manifest document %d: %v", e.Document, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ApplyError reports an apply or dry run the backend rejected. Errors holds
// the per-resource messages returned alongside the overall message.
type ApplyError struct {
	Message string
	Errors  []string
	Err     error
}

func (e *ApplyError) Error() string {
	if len(e.Errors) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (%d resource errors)", e.Message, len(e.Errors))
}

func (e *ApplyError) Unwrap() error { return e.Err }

// ReviewError reports an unreachable AI review service or a malformed reply.
type ReviewError struct {
	Err error
}

func (e *ReviewError) Error() string {
	return fmt.Sprintf("AI review failed: %v", e.Err)
}

func (e *ReviewError) Unwrap() error { return e.Err }

// ErrNoIssuesSelected is wrapped by AutoFixError when auto-fix is requested
// with an empty selection.
var ErrNoIssuesSelected = errors.New("no issues selected")

// AutoFixError reports a failed auto-fix request.
type AutoFixError struct {
	Err error
}

func (e *AutoFixError) Error() string {
	return fmt.Sprintf("AI auto-fix failed: %v", e.Err)
}

func (e *AutoFixError) Unwrap() error { return e.Err }

// StatusFetchError reports a failed status lookup for one tracked resource.
// It never stops tracking.
type StatusFetchError struct {
	Kind string
	Name string
	Err  error
}

func (e *StatusFetchError) Error() string {
	return fmt.Sprintf("fetch status %s/%s: %v", e.Kind, e.Name, e.Err)
}

func (e *StatusFetchError) Unwrap() error { return e.Err }

// TimeoutError reports that a client-side safety timeout fired before the
// backend answered.
type TimeoutError struct {
	Operation string
	After     string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s, please retry", e.Operation, e.After)
}

// IsForbidden checks if the error is an access denied (RBAC) error.
func IsForbidden(err error) bool {
	if err == nil {
		return false
	}
	if apierrors.IsForbidden(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "access denied") ||
		strings.Contains(msg, "unauthorized")
}

// IsNotFound checks if the error indicates a missing resource or CRD.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotDeployed) || apierrors.IsNotFound(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "no matches for kind") ||
		strings.Contains(msg, "the server could not find")
}

// IsNetworkError checks if the error is a connection/network error.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "network is unreachable") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "context deadline exceeded")
}

// ClassifyError determines the type of error for appropriate handling.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	var (
		timeoutErr *TimeoutError
		parseErr   *ParseError
		applyErr   *ApplyError
		reviewErr  *ReviewError
		fixErr     *AutoFixError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return TypeTimeout
	case errors.As(err, &parseErr):
		return TypeParse
	case errors.As(err, &reviewErr), errors.As(err, &fixErr):
		return TypeReview
	case errors.As(err, &applyErr):
		return TypeApply
	}

	if IsForbidden(err) {
		return TypeForbidden
	}
	if IsNotFound(err) {
		return TypeNotFound
	}
	if IsNetworkError(err) {
		return TypeNetwork
	}
	return TypeInternal
}

// Pretty formats an error with a user-friendly message and actionable hints.
func Pretty(err error) string {
	if err == nil {
		return ""
	}

	baseMsg := err.Error()

	switch ClassifyError(err) {
	case TypeForbidden:
		return fmt.Sprintf("Access denied: %s\n\nHint: Check your RBAC permissions. You may need:\n"+
			"  - a Role with get/patch permissions for the resources in the manifest\n"+
			"  - kubectl auth can-i patch <resource> to verify permissions", baseMsg)

	case TypeNotFound:
		lower := strings.ToLower(baseMsg)
		if strings.Contains(lower, "no matches for kind") ||
			strings.Contains(lower, "the server could not find") {
			return fmt.Sprintf("CRD not installed: %s\n\nHint: The Custom Resource Definition for a kind in the manifest\n"+
				"  may not be installed. Apply the CRD first, then retry.", baseMsg)
		}
		return fmt.Sprintf("Not found: %s", baseMsg)

	case TypeNetwork:
		return fmt.Sprintf("Connection error: %s\n\nHint: Check your cluster connectivity:\n"+
			"  - kubectl cluster-info to verify connection\n"+
			"  - Ensure your kubeconfig is correct", baseMsg)

	case TypeTimeout:
		return fmt.Sprintf("Timeout: %s", baseMsg)

	case TypeParse:
		return fmt.Sprintf("Invalid manifest: %s\n\nHint: No preview or diff is possible until the YAML parses.", baseMsg)

	case TypeApply:
		var applyErr *ApplyError
		errors.As(err, &applyErr)
		var b strings.Builder
		fmt.Fprintf(&b, "Apply failed: %s", applyErr.Message)
		for _, e := range applyErr.Errors {
			fmt.Fprintf(&b, "\n  - %s", e)
		}
		return b.String()

	case TypeReview:
		return fmt.Sprintf("%s\n\nHint: The previous review, if any, is unchanged. Retry when the AI service is reachable.", baseMsg)

	default:
		return fmt.Sprintf("Error: %s", baseMsg)
	}
}

// WrapWithHint wraps an error with an additional hint message.
func WrapWithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w\n\nHint: %s", err, hint)
}

// NothingFound returns a user-friendly message when a manifest holds no
// documents. This is different from an error: the text parsed fine.
func NothingFound(source string) string {
	return fmt.Sprintf("No resources found in %s.\n\n"+
		"This might mean:\n"+
		"  - The manifest is empty or only contains comments\n"+
		"  - Every document is separated by '---' but has no content", source)
}

// Unwrap returns the underlying error, stripping any wrapper.
func Unwrap(err error) error {
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err
		}
		err = unwrapped
	}
}
