// Package httpclient provides the HTTP client used to fetch plugin
// registry manifests and plugin archives from GitHub-hosted registries.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	registryBaseURL  = "https://api.github.com/repos"
	registryAccept   = "application/vnd.github.raw+json"
	apiVersionHeader = "2022-11-28"
)

// Client fetches files out of GitHub-hosted plugin registries, with
// retries and backoff for transient failures.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
}

// New builds a Client with the given per-request timeout.
func New(logger *slog.Logger, timeout time.Duration) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.Logger = slogAdapter{logger: logger}
	retryClient.HTTPClient.Timeout = timeout

	return &Client{http: retryClient, baseURL: registryBaseURL}
}

// SetBaseURLForTest overrides the registry base URL. Exported only for
// tests to point the client at an httptest server.
func (c *Client) SetBaseURLForTest(baseURL string) {
	c.baseURL = baseURL
}

// GetFileFromRegistry fetches path (e.g. "plugins.json", or a plugin
// archive path) from the "<owner>/<repo>" registry via the GitHub
// contents API.
func (c *Client) GetFileFromRegistry(ctx context.Context, registry, path string) ([]byte, error) {
	target, err := c.buildURL(registry, path)
	if err != nil {
		return nil, fmt.Errorf("construct registry URL: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", registryAccept)
	req.Header.Set("X-GitHub-Api-Version", apiVersionHeader)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request registry file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected registry response status: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read registry response body: %w", err)
	}

	return body, nil
}

func (c *Client) buildURL(registry, path string) (string, error) {
	if registry == "" {
		return "", fmt.Errorf("empty registry")
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	base = base.JoinPath(registry, "contents", path)
	return base.String(), nil
}

// slogAdapter bridges retryablehttp's minimal leveled-logger interface
// to slog, matching the daemon's structured logging everywhere else.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, keysAndValues...)
}

func (a slogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, keysAndValues...)
}

func (a slogAdapter) Debug(msg string, keysAndValues ...interface{}) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a slogAdapter) Warn(msg string, keysAndValues ...interface{}) {
	a.logger.Warn(msg, keysAndValues...)
}
