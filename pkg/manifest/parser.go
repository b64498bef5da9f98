// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package manifest splits multi-document Kubernetes manifest text into
// resource descriptors.
package manifest

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/confighub/cub-deploy/internal/clierr"
)

// Document is one parsed YAML document of a manifest.
type Document struct {
	APIVersion string `json:"apiVersion,omitempty"`
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	Namespace  string `json:"namespace,omitempty"`
	Raw        string `json:"raw"`
}

// Key returns the "{kind}/{name}" identifier used across the workflow.
func (d Document) Key() string {
	return d.Kind + "/" + d.Name
}

// Set is an ordered list of parsed documents. A nil Set means the text
// could not be parsed and no preview or diff is possible.
type Set []Document

// Kinds returns the distinct kinds in the set, in first-seen order.
func (s Set) Kinds() []string {
	seen := make(map[string]bool)
	var kinds []string
	for _, d := range s {
		if d.Kind == "" || seen[d.Kind] {
			continue
		}
		seen[d.Kind] = true
		kinds = append(kinds, d.Kind)
	}
	return kinds
}

// header is the subset of a resource every document is decoded into.
type header struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	Metadata   struct {
		Name      string `yaml:"name"`
		Namespace string `yaml:"namespace"`
	} `yaml:"metadata"`
}

// Parse splits text into documents. Any decode failure yields nil rather
// than an error; callers treat nil as "content is invalid".
func Parse(text string) Set {
	set, err := ParseStrict(text)
	if err != nil {
		return nil
	}
	return set
}

// ParseStrict is Parse but reports why the text was rejected.
func ParseStrict(text string) (Set, error) {
	dec := yaml.NewDecoder(strings.NewReader(text))
	set := Set{}
	for i := 1; ; i++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &clierr.ParseError{Document: i, Err: err}
		}
		if isEmpty(&node) {
			continue
		}

		var h header
		if err := node.Decode(&h); err != nil {
			return nil, &clierr.ParseError{Document: i, Err: err}
		}

		raw, err := encode(&node)
		if err != nil {
			return nil, &clierr.ParseError{Document: i, Err: err}
		}

		set = append(set, Document{
			APIVersion: h.APIVersion,
			Kind:       h.Kind,
			Name:       h.Metadata.Name,
			Namespace:  h.Metadata.Namespace,
			Raw:        raw,
		})
	}
	return set, nil
}

// isEmpty reports whether a decoded document holds no content,
// e.g. a bare "---" or a comment-only block.
func isEmpty(node *yaml.Node) bool {
	if node.Kind == 0 {
		return true
	}
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return true
		}
		inner := node.Content[0]
		return inner.Kind == yaml.ScalarNode && inner.Tag == "!!null"
	}
	return false
}

func encode(node *yaml.Node) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
