// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_Scenario(t *testing.T) {
	res := Compute("a\nb\nc", "a\nx\nc")

	assert.Equal(t, []Line{
		{Type: Unchanged, Content: "a", LineNumber: 1},
		{Type: Removed, Content: "b", LineNumber: 2},
		{Type: Unchanged, Content: "c", LineNumber: 3},
	}, res.Left)
	assert.Equal(t, []Line{
		{Type: Unchanged, Content: "a", LineNumber: 1},
		{Type: Added, Content: "x", LineNumber: 2},
		{Type: Unchanged, Content: "c", LineNumber: 3},
	}, res.Right)
}

func TestCompute_Identical(t *testing.T) {
	texts := []string{
		"",
		"single",
		"a\nb\nc",
		"trailing\nnewline\n",
		"apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: x\n",
	}

	for _, text := range texts {
		res := Compute(text, text)
		want := len(strings.Split(text, "\n"))
		require.Len(t, res.Left, want)
		require.Len(t, res.Right, want)
		for i := range res.Left {
			assert.Equal(t, Unchanged, res.Left[i].Type)
			assert.Equal(t, Unchanged, res.Right[i].Type)
		}
		assert.False(t, Summarize(res).HasChanges())
	}
}

func TestCompute_ColumnsAlwaysAligned(t *testing.T) {
	tests := []struct {
		name     string
		old, new string
	}{
		{"old longer", "a\nb\nc\nd", "a"},
		{"new longer", "a", "a\nb\nc\nd"},
		{"both empty", "", ""},
		{"old empty", "", "a\nb"},
		{"completely different", "x\ny", "p\nq\nr"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Compute(tc.old, tc.new)
			assert.Equal(t, len(res.Left), len(res.Right))
		})
	}
}

func TestCompute_OldSideRemaining(t *testing.T) {
	res := Compute("a\nb\nc", "a")

	require.Len(t, res.Left, 3)
	assert.Equal(t, Removed, res.Left[2].Type)
	assert.Equal(t, "c", res.Left[2].Content)
	assert.True(t, res.Right[2].IsPadding())
	assert.Empty(t, res.Right[2].Content)
}

func TestCompute_NewSideRemaining(t *testing.T) {
	res := Compute("a", "a\nb")

	require.Len(t, res.Right, 2)
	assert.True(t, res.Left[1].IsPadding())
	assert.Equal(t, Line{Type: Added, Content: "b", LineNumber: 2}, res.Right[1])
}

// An insertion misaligns every following row; this is the documented
// positional behaviour.
func TestCompute_InsertionMisaligns(t *testing.T) {
	res := Compute("a\nb\nc", "a\nNEW\nb\nc")

	stats := Summarize(res)
	assert.Equal(t, 3, stats.Added)
	assert.Equal(t, 2, stats.Removed)
	assert.Equal(t, 1, stats.Unchanged)
}

func TestUnified(t *testing.T) {
	out := Unified("a\nb\nc\n", "a\nx\nc\n", "live/web", "local/web")

	assert.Contains(t, out, "--- live/web")
	assert.Contains(t, out, "+++ local/web")
	assert.Contains(t, out, "-b")
	assert.Contains(t, out, "+x")
	assert.Empty(t, Unified("same\n", "same\n", "a", "b"))
}
