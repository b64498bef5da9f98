// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
  namespace: shop
spec:
  replicas: 2
---
apiVersion: v1
kind: Service
metadata:
  name: web
`

// resetFlags puts every flag back to its default between executions of
// the shared command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the CLI with an isolated home and state file.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	var stdout, stderr bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("CUB_DEPLOY_CONFIG", "")
	t.Setenv("CUB_DEPLOY_NAMESPACE", "")
	t.Setenv("CUB_DEPLOY_AI_TOKEN", "")
	t.Setenv("CUB_DEPLOY_CONFIG_DIR", "")
	t.Chdir(home)
	return home
}

func writeManifest(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestVersion(t *testing.T) {
	isolate(t)
	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "cub-deploy version dev")
}

func TestParse(t *testing.T) {
	home := isolate(t)
	path := writeManifest(t, home, testManifest)

	out, _, err := execute(t, "", "parse", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Deployment")
	assert.Contains(t, out, "shop")
	assert.Contains(t, out, "2 resources (2 kinds)")
}

func TestParse_UsesSavedManifest(t *testing.T) {
	isolate(t)
	_, _, err := execute(t, testManifest, "parse", "-")
	require.NoError(t, err)

	out, _, err := execute(t, "", "parse", "--json")
	require.NoError(t, err)

	var docs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 2)
	assert.Equal(t, "Service", docs[1]["kind"])
}

func TestParse_NothingSaved(t *testing.T) {
	isolate(t)
	_, _, err := execute(t, "", "parse")
	assert.ErrorContains(t, err, "no manifest given")
}

func TestParse_InvalidYAML(t *testing.T) {
	isolate(t)
	_, _, err := execute(t, "kind: [unclosed", "parse", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document 1")
}

func TestParse_Empty(t *testing.T) {
	isolate(t)
	out, _, err := execute(t, "---\n# nothing\n---\n", "parse", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "No resources found in stdin")
}

func TestParse_BadLogLevel(t *testing.T) {
	home := isolate(t)
	path := writeManifest(t, home, testManifest)
	_, _, err := execute(t, "", "parse", path, "--log-level", "loud")
	assert.ErrorContains(t, err, "unknown log level")
}

// fakeAI serves the review and auto-fix endpoints.
type fakeAI struct {
	fixedIssues []string
}

func (f *fakeAI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/ai/review":
			_, _ = w.Write([]byte(`{
				"score": 72,
				"security_score": 60,
				"best_practice_score": 80,
				"issues": [
					{"severity": "critical", "type": "security", "message": "runs as root", "suggestion": "set runAsNonRoot"},
					{"severity": "medium", "type": "reliability", "message": "no readiness probe"},
					{"severity": "whatever", "type": "style", "message": "missing labels"}
				]
			}`))
		case "/api/v1/ai/autofix":
			var req struct {
				Issues []struct {
					Message string `json:"message"`
				} `json:"issues"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			for _, is := range req.Issues {
				f.fixedIssues = append(f.fixedIssues, is.Message)
			}
			_, _ = w.Write([]byte(`{"success": true, "fixed_yaml": "kind: Fixed\n", "changes_summary": "Added securityContext"}`))
		default:
			http.NotFound(w, r)
		}
	}
}

func TestReview(t *testing.T) {
	home := isolate(t)
	path := writeManifest(t, home, testManifest)
	srv := httptest.NewServer((&fakeAI{}).handler(t))
	defer srv.Close()

	out, _, err := execute(t, "", "review", path, "--ai-url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Score 72/100")
	assert.Contains(t, out, "3 issues: 1 critical, 1 medium, 1 low")
	assert.Contains(t, out, "set runAsNonRoot")
}

func TestReview_JSON(t *testing.T) {
	home := isolate(t)
	path := writeManifest(t, home, testManifest)
	srv := httptest.NewServer((&fakeAI{}).handler(t))
	defer srv.Close()

	out, _, err := execute(t, "", "review", path, "--json", "--ai-url", srv.URL)
	require.NoError(t, err)

	var res struct {
		Score  int `json:"score"`
		Issues []struct {
			Severity string `json:"severity"`
		} `json:"issues"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 72, res.Score)
	require.Len(t, res.Issues, 3)
	assert.Equal(t, "low", res.Issues[2].Severity)
}

func TestReview_ServiceDown(t *testing.T) {
	home := isolate(t)
	path := writeManifest(t, home, testManifest)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, _, err := execute(t, "", "review", path, "--ai-url", srv.URL)
	assert.ErrorContains(t, err, "503")
}

func TestFix_SelectedIssuesWritten(t *testing.T) {
	home := isolate(t)
	path := writeManifest(t, home, testManifest)
	ai := &fakeAI{}
	srv := httptest.NewServer(ai.handler(t))
	defer srv.Close()

	_, stderr, err := execute(t, "", "fix", path, "--issues", "0,2", "--write", "--ai-url", srv.URL)
	require.NoError(t, err)

	assert.Equal(t, []string{"runs as root", "missing labels"}, ai.fixedIssues)
	assert.Contains(t, stderr, "[x]  0")
	assert.Contains(t, stderr, "[ ]  1")
	assert.Contains(t, stderr, "Added securityContext")

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "kind: Fixed\n", string(written))

	// The fix also becomes the saved manifest.
	out, _, err := execute(t, "", "parse")
	require.NoError(t, err)
	assert.Contains(t, out, "Fixed")
}

func TestFix_AllByDefaultToStdout(t *testing.T) {
	isolate(t)
	ai := &fakeAI{}
	srv := httptest.NewServer(ai.handler(t))
	defer srv.Close()

	out, _, err := execute(t, testManifest, "fix", "-", "--ai-url", srv.URL)
	require.NoError(t, err)
	assert.Len(t, ai.fixedIssues, 3)
	assert.Equal(t, "kind: Fixed\n", out)
}

func TestFix_Validation(t *testing.T) {
	isolate(t)
	srv := httptest.NewServer((&fakeAI{}).handler(t))
	defer srv.Close()

	_, _, err := execute(t, testManifest, "fix", "-", "--write", "--ai-url", srv.URL)
	assert.ErrorContains(t, err, "--write needs a FILE")

	_, _, err = execute(t, testManifest, "fix", "-", "--issues", "7", "--ai-url", srv.URL)
	assert.ErrorContains(t, err, "out of range")
}

func TestApply_ProdNamespaceNeedsYes(t *testing.T) {
	home := isolate(t)
	path := writeManifest(t, home, testManifest)
	kubeconfig := filepath.Join(home, "kubeconfig")
	require.NoError(t, os.WriteFile(kubeconfig, []byte(`apiVersion: v1
kind: Config
clusters:
- name: test
  cluster:
    server: https://127.0.0.1:1
contexts:
- name: test
  context:
    cluster: test
    user: test
current-context: test
users:
- name: test
  user:
    token: abc
`), 0600))

	_, _, err := execute(t, "", "apply", path, "-n", "shop-prod", "--kubeconfig", kubeconfig, "--no-log")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "looks like production")
	assert.Contains(t, err.Error(), "--yes")
}

func TestAuth_StoredTokenIsSent(t *testing.T) {
	home := isolate(t)
	path := writeManifest(t, home, testManifest)

	var gotAuth string
	ai := &fakeAI{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		ai.handler(t)(w, r)
	}))
	defer srv.Close()

	out, _, err := execute(t, "s3cret\n", "auth", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Token saved")

	out, _, err = execute(t, "", "auth", "status", "--ai-url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Service: "+srv.URL)
	assert.Contains(t, out, "Token:   set")

	_, _, err = execute(t, "", "review", path, "--ai-url", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Bearer s3cret", gotAuth)

	// A flag overrides the stored token.
	_, _, err = execute(t, "", "review", path, "--ai-url", srv.URL, "--ai-token", "other")
	require.NoError(t, err)
	assert.Equal(t, "Bearer other", gotAuth)

	_, _, err = execute(t, "", "auth", "logout")
	require.NoError(t, err)
	out, _, err = execute(t, "", "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "not set")
}

func TestAuth_LoginNeedsToken(t *testing.T) {
	isolate(t)
	_, _, err := execute(t, "", "auth", "login")
	assert.ErrorContains(t, err, "no token given")
}
