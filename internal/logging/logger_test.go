// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"DEBUG", zapcore.DebugLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_Verbosity(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "info")
	require.NoError(t, err)

	log.Info("Tracking resource health", "resources", 3)
	log.V(1).Info("applied", "resource", "Deployment/web")

	out := buf.String()
	assert.Contains(t, out, "Tracking resource health")
	assert.Contains(t, out, `"resources": 3`)
	assert.NotContains(t, out, "Deployment/web")

	buf.Reset()
	log, err = New(&buf, "debug")
	require.NoError(t, err)
	log.V(1).Info("applied", "resource", "Deployment/web")
	assert.Contains(t, buf.String(), "Deployment/web")
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "loud")
	assert.Error(t, err)
}
