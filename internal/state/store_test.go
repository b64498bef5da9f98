// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.yaml")

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	_, ok := s.Get(KeyContent)
	assert.False(t, ok)

	manifest := "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: a\n"
	require.NoError(t, s.Set(KeyContent, manifest))
	require.NoError(t, s.Set(KeyNamespace, "prod"))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	got, ok := reopened.Get(KeyContent)
	assert.True(t, ok)
	assert.Equal(t, manifest, got)
	got, _ = reopened.Get(KeyNamespace)
	assert.Equal(t, "prod", got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- not\n- a map\n"), 0o600))

	_, err := OpenFileStore(path)
	assert.Error(t, err)
}

func TestFileStore_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("k", "v"))
}

func TestEditor(t *testing.T) {
	e := NewEditor(NewMemoryStore())

	assert.Equal(t, "", e.Content())
	assert.Equal(t, DefaultNamespace, e.Namespace())

	require.NoError(t, e.SetContent("kind: Pod"))
	require.NoError(t, e.SetNamespace("staging"))
	assert.Equal(t, "kind: Pod", e.Content())
	assert.Equal(t, "staging", e.Namespace())

	require.NoError(t, e.SetNamespace(""))
	assert.Equal(t, DefaultNamespace, e.Namespace())
}
