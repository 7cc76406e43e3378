package update

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
)

const (
	// DefaultOwner and DefaultRepo identify the published releases.
	DefaultOwner = "Gerrxt07"
	DefaultRepo  = "Niva-Console"

	// DefaultBaseURL is the GitHub REST API root.
	DefaultBaseURL = "https://api.github.com"

	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "Niva-Console-Updater"

	// DefaultRetryDelay is the fixed pause between release check attempts.
	DefaultRetryDelay = 2 * time.Second

	// checkAttempts is the total number of release check attempts.
	checkAttempts = 3

	// checkTimeout bounds a single release check request.
	checkTimeout = 10 * time.Second

	// maxJSONResponseBytes is the upper bound on JSON API response size (10 MB).
	maxJSONResponseBytes = 10 << 20

	// maxTextResponseBytes is the upper bound on a checksum asset body (1 MB).
	maxTextResponseBytes = 1 << 20
)

type (
	// githubRelease is the JSON wire format for a GitHub Release API response.
	githubRelease struct {
		TagName    string        `json:"tag_name"`
		ZipballURL string        `json:"zipball_url"`
		Assets     []githubAsset `json:"assets"`
	}

	// githubAsset is the JSON wire format for a GitHub Release asset.
	githubAsset struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	}

	// GitHubClient queries the GitHub Releases API for the latest release.
	GitHubClient struct {
		httpClient *http.Client
		owner      string
		repo       string
		baseURL    string // overridable for tests
		token      string // optional, raises the API rate limit
		userAgent  string
		retryDelay time.Duration
		logger     *log.Logger
	}

	// ClientOption configures a GitHubClient during construction.
	ClientOption func(*GitHubClient)
)

// WithHTTPClient sets a custom HTTP client, useful for tests or proxy configurations.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(g *GitHubClient) {
		g.httpClient = c
	}
}

// WithBaseURL overrides the GitHub API base URL, primarily for test servers.
func WithBaseURL(base string) ClientOption {
	return func(g *GitHubClient) {
		g.baseURL = strings.TrimRight(base, "/")
	}
}

// WithToken sets a GitHub personal access token for authenticated requests.
func WithToken(token string) ClientOption {
	return func(g *GitHubClient) {
		g.token = token
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(g *GitHubClient) {
		g.userAgent = ua
	}
}

// WithRepo overrides the default repository owner and name.
func WithRepo(owner, repo string) ClientOption {
	return func(g *GitHubClient) {
		g.owner = owner
		g.repo = repo
	}
}

// WithRetryDelay overrides the pause between release check attempts.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(g *GitHubClient) {
		g.retryDelay = d
	}
}

// WithClientLogger sets the logger used to report retries.
func WithClientLogger(l *log.Logger) ClientOption {
	return func(g *GitHubClient) {
		g.logger = l
	}
}

// NewGitHubClient creates a GitHubClient pointed at the Niva-Console releases.
func NewGitHubClient(opts ...ClientOption) *GitHubClient {
	c := &GitHubClient{
		httpClient: newHTTPClient(checkTimeout),
		owner:      DefaultOwner,
		repo:       DefaultRepo,
		baseURL:    DefaultBaseURL,
		userAgent:  DefaultUserAgent,
		retryDelay: DefaultRetryDelay,
		logger:     log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newHTTPClient returns a client with certificate verification on and TLS 1.2 as the floor.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// GetLatest fetches the latest release. Failed attempts are retried with a
// fixed delay, three attempts in total.
func (c *GitHubClient) GetLatest(ctx context.Context) (*Release, error) {
	latestURL := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.baseURL, c.owner, c.repo)

	var release *Release
	operation := func() error {
		r, err := c.getLatestOnce(ctx, latestURL)
		if err != nil {
			return err
		}
		release = r
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), checkAttempts-1),
		ctx,
	)
	notify := func(err error, d time.Duration) {
		c.logger.Warn("Release check failed, retrying", "in", d, "err", err)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, newError(KindNetwork, "checking latest release", err)
	}
	return release, nil
}

func (c *GitHubClient) getLatestOnce(ctx context.Context, latestURL string) (*Release, error) {
	resp, err := c.doRequest(ctx, latestURL, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var gr githubRelease
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&gr); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if gr.TagName == "" {
		return nil, backoff.Permanent(errors.New("release has no tag_name"))
	}

	return toRelease(gr), nil
}

// FetchText downloads a small text asset such as a published checksum.
func (c *GitHubClient) FetchText(ctx context.Context, assetURL string) (string, error) {
	resp, err := c.doRequest(ctx, assetURL, "application/octet-stream")
	if err != nil {
		return "", newError(KindNetwork, "downloading "+redactURL(assetURL), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", newError(KindNetwork, "downloading "+redactURL(assetURL),
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTextResponseBytes))
	if err != nil {
		return "", newError(KindNetwork, "reading "+redactURL(assetURL), err)
	}
	return string(body), nil
}

// doRequest creates and executes a GET request with the common headers.
func (c *GitHubClient) doRequest(ctx context.Context, reqURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)

	// Only attach the token when the request targets the API host.
	if c.token != "" && isGitHubHost(req.URL, c.baseURL) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

func toRelease(gr githubRelease) *Release {
	assets := make([]Asset, 0, len(gr.Assets))
	for _, ga := range gr.Assets {
		assets = append(assets, Asset{Name: ga.Name, URL: ga.BrowserDownloadURL})
	}
	return &Release{
		Tag:        gr.TagName,
		ArchiveURL: gr.ZipballURL,
		Assets:     assets,
	}
}

// isGitHubHost reports whether reqURL targets the configured API host, or
// github.com when the API is api.github.com.
func isGitHubHost(reqURL *url.URL, baseURL string) bool {
	base, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	if strings.EqualFold(reqURL.Host, base.Host) {
		return true
	}
	return strings.EqualFold(base.Host, "api.github.com") && strings.EqualFold(reqURL.Host, "github.com")
}

// redactURL strips query parameters and fragments from a URL for safe inclusion
// in error messages.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
