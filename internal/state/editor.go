// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package state

// Keys of the persisted editor state.
const (
	KeyContent   = "editor.content"
	KeyNamespace = "editor.namespace"
)

// DefaultNamespace is selected when none was saved.
const DefaultNamespace = "default"

// Editor is the persisted manifest text and namespace selection.
type Editor struct {
	store Store
}

func NewEditor(store Store) *Editor {
	return &Editor{store: store}
}

// Content returns the saved manifest text, or "" when none was saved.
func (e *Editor) Content() string {
	v, _ := e.store.Get(KeyContent)
	return v
}

func (e *Editor) SetContent(text string) error {
	return e.store.Set(KeyContent, text)
}

// Namespace returns the saved namespace, or DefaultNamespace.
func (e *Editor) Namespace() string {
	if v, ok := e.store.Get(KeyNamespace); ok && v != "" {
		return v
	}
	return DefaultNamespace
}

func (e *Editor) SetNamespace(ns string) error {
	return e.store.Set(KeyNamespace, ns)
}
