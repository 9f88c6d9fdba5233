// Package github reads course chapters from the content repository.
package github

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"

	"github.com/bull/robotics-tutor/internal/config"
)

// Client wraps the GitHub API client with rate limiting support
type Client struct {
	*github.Client
}

// NewClient creates a rate-limited GitHub client, authenticated when
// cfg.Token is set. Waiting on primary and secondary limits is handled by
// the transport.
func NewClient(cfg config.GitHubConfig) (*Client, error) {
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}

	ghClient := github.NewClient(rateLimiter)
	if cfg.Token != "" {
		ghClient = ghClient.WithAuthToken(cfg.Token)
	}
	return &Client{Client: ghClient}, nil
}

// WithBaseURL points the client at another API root, such as GitHub
// Enterprise or a test server.
func (c *Client) WithBaseURL(raw string) (*Client, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	c.BaseURL = u
	return c, nil
}
