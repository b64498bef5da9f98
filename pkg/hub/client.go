// Package hub is the connection library for the AI review service.
// All review and auto-fix requests go through Client.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/confighub/cub-deploy/pkg/review"
)

// Client talks JSON over HTTP to the AI review service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	auth       *Auth
}

var _ review.Service = (*Client)(nil)

// NewClient creates a client for cfg. The token falls back to the one stored
// by SaveAuth.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	auth, err := LoadAuth(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("load AI service token: %w", err)
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		auth:    auth,
	}, nil
}

// BaseURL returns the service root the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type reviewRequest struct {
	YAML      string `json:"yaml"`
	Namespace string `json:"namespace,omitempty"`
}

type issuePayload struct {
	Severity   string `json:"severity"`
	Type       string `json:"type"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

type reviewResponse struct {
	Score             *int           `json:"score"`
	Issues            []issuePayload `json:"issues"`
	Suggestions       []string       `json:"suggestions"`
	SecurityScore     int            `json:"security_score"`
	BestPracticeScore int            `json:"best_practice_score"`
}

type autoFixRequest struct {
	YAML      string         `json:"yaml"`
	Issues    []issuePayload `json:"issues"`
	Namespace string         `json:"namespace,omitempty"`
}

type autoFixResponse struct {
	Success        bool   `json:"success"`
	FixedYAML      string `json:"fixed_yaml"`
	ChangesSummary string `json:"changes_summary"`
	Message        string `json:"message,omitempty"`
}

// Review implements review.Service.
func (c *Client) Review(ctx context.Context, text, namespace string) (*review.Result, error) {
	var resp reviewResponse
	if err := c.post(ctx, ReviewPath, reviewRequest{YAML: text, Namespace: namespace}, &resp); err != nil {
		return nil, err
	}
	if resp.Score == nil {
		return nil, fmt.Errorf("malformed review response: missing score")
	}

	res := &review.Result{
		Score:             *resp.Score,
		Suggestions:       resp.Suggestions,
		SecurityScore:     resp.SecurityScore,
		BestPracticeScore: resp.BestPracticeScore,
		Issues:            make([]review.Issue, 0, len(resp.Issues)),
	}
	for _, is := range resp.Issues {
		res.Issues = append(res.Issues, review.Issue{
			Severity:   review.ParseSeverity(is.Severity),
			Type:       is.Type,
			Message:    is.Message,
			Suggestion: is.Suggestion,
		})
	}
	return res, nil
}

// AutoFix implements review.Service.
func (c *Client) AutoFix(ctx context.Context, text string, issues []review.Issue, namespace string) (*review.Fix, error) {
	req := autoFixRequest{YAML: text, Namespace: namespace}
	for _, is := range issues {
		req.Issues = append(req.Issues, issuePayload{
			Severity:   string(is.Severity),
			Type:       is.Type,
			Message:    is.Message,
			Suggestion: is.Suggestion,
		})
	}

	var resp autoFixResponse
	if err := c.post(ctx, AutoFixPath, req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "service reported failure"
		}
		return nil, fmt.Errorf("auto-fix rejected: %s", msg)
	}
	if strings.TrimSpace(resp.FixedYAML) == "" {
		return nil, fmt.Errorf("malformed auto-fix response: empty fixed_yaml")
	}
	return &review.Fix{FixedText: resp.FixedYAML, ChangesSummary: resp.ChangesSummary}, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.auth.IsAuthenticated() {
		req.Header.Set("Authorization", "Bearer "+c.auth.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: server returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("malformed response from %s: %w", path, err)
	}
	return nil
}
