package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confighub/cub-deploy/pkg/review"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	t.Setenv("CUB_DEPLOY_CONFIG_DIR", t.TempDir())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/", Token: "secret"})
	require.NoError(t, err)
	return c
}

func TestClient_Review(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ReviewPath, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req reviewRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "kind: Pod", req.YAML)
		assert.Equal(t, "prod", req.Namespace)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"score": 64,
			"issues": [
				{"severity": "high", "type": "security", "message": "privileged", "suggestion": "drop it"},
				{"severity": "weird", "type": "style", "message": "labels"}
			],
			"suggestions": ["pin image tags"],
			"security_score": 30,
			"best_practice_score": 70
		}`))
	})

	res, err := c.Review(context.Background(), "kind: Pod", "prod")
	require.NoError(t, err)
	assert.Equal(t, 64, res.Score)
	assert.Equal(t, 30, res.SecurityScore)
	assert.Equal(t, 70, res.BestPracticeScore)
	require.Len(t, res.Issues, 2)
	assert.Equal(t, review.SeverityHigh, res.Issues[0].Severity)
	assert.Equal(t, "drop it", res.Issues[0].Suggestion)
	assert.Equal(t, review.SeverityLow, res.Issues[1].Severity)
	assert.Equal(t, []string{"pin image tags"}, res.Suggestions)
}

func TestClient_ReviewMalformed(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, `upstream down`},
		{"not json", http.StatusOK, `<html>`},
		{"missing score", http.StatusOK, `{"issues": []}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.Review(context.Background(), "x", "")
			assert.Error(t, err)
		})
	}
}

func TestClient_AutoFix(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, AutoFixPath, r.URL.Path)

		var req autoFixRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.Len(t, req.Issues, 1) {
			assert.Equal(t, "medium", req.Issues[0].Severity)
			assert.Equal(t, "no probe", req.Issues[0].Message)
		}

		_, _ = w.Write([]byte(`{"success": true, "fixed_yaml": "kind: Pod\n", "changes_summary": "added probe"}`))
	})

	fix, err := c.AutoFix(context.Background(), "kind: Pod", []review.Issue{
		{Severity: review.SeverityMedium, Type: "reliability", Message: "no probe"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "kind: Pod\n", fix.FixedText)
	assert.Equal(t, "added probe", fix.ChangesSummary)
}

func TestClient_AutoFixRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "message": "cannot fix"}`))
	})

	_, err := c.AutoFix(context.Background(), "x", []review.Issue{{Message: "m"}}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot fix")
}

func TestClient_Unreachable(t *testing.T) {
	t.Setenv("CUB_DEPLOY_CONFIG_DIR", t.TempDir())
	c, err := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = c.Review(context.Background(), "x", "")
	assert.Error(t, err)
}

func TestAuth_SaveLoadClear(t *testing.T) {
	t.Setenv("CUB_DEPLOY_CONFIG_DIR", t.TempDir())

	auth, err := LoadAuth("")
	require.NoError(t, err)
	assert.False(t, auth.IsAuthenticated())

	require.NoError(t, SaveAuth(&Auth{Token: "tok"}))
	auth, err = LoadAuth("")
	require.NoError(t, err)
	assert.Equal(t, "tok", auth.Token)

	auth, err = LoadAuth("explicit")
	require.NoError(t, err)
	assert.Equal(t, "explicit", auth.Token)

	require.NoError(t, ClearAuth())
	require.NoError(t, ClearAuth())
	auth, err = LoadAuth("")
	require.NoError(t, err)
	assert.False(t, auth.IsAuthenticated())
}
