package hub

import "time"

// Configuration for the AI review service endpoints.
// This file is the SINGLE SOURCE OF TRUTH for all review service URLs.

const (
	// DefaultBaseURL is used when no ai.url is configured.
	DefaultBaseURL = "http://localhost:8000"

	// ReviewPath scores a manifest and lists issues.
	ReviewPath = "/api/v1/ai/review"

	// AutoFixPath rewrites a manifest to address selected issues.
	AutoFixPath = "/api/v1/ai/autofix"

	// DefaultTimeout bounds every request to the service.
	DefaultTimeout = 60 * time.Second
)

// Config selects the service endpoint and credentials.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}
