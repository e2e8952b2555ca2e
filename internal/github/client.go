// Package github provides a rate-limit-aware client for the GitHub API,
// exposing the listing operations the sync pipeline needs.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/mooring-labs/searchlink/internal/logger"
)

const (
	// defaultTimeout bounds a single API request.
	defaultTimeout = 30 * time.Second

	// defaultPageSize is the page size used for list requests.
	defaultPageSize = 100
)

// Client wraps the GitHub API client with rate limiting and error
// translation.
type Client struct {
	gh          *gh.Client
	rateLimiter *RateLimiter
}

type clientOptions struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures the client.
type Option func(*clientOptions)

// WithHTTPClient sets the HTTP client used for API requests. When set, the
// caller is responsible for attaching authentication.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = httpClient
	}
}

// WithBaseURL points the client at a GitHub Enterprise or test endpoint
// instead of the public API.
func WithBaseURL(rawURL string) Option {
	return func(o *clientOptions) {
		o.baseURL = rawURL
	}
}

// NewClient creates a GitHub client authenticated with the given token.
func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	options := &clientOptions{}
	for _, opt := range opts {
		opt(options)
	}

	httpClient := options.httpClient
	if httpClient == nil {
		tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, tokenSource)
		httpClient.Timeout = defaultTimeout
	}

	client := gh.NewClient(httpClient)
	if options.baseURL != "" {
		baseURL, err := url.Parse(options.baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL %q: %w", options.baseURL, err)
		}
		if !strings.HasSuffix(baseURL.Path, "/") {
			baseURL.Path += "/"
		}
		client.BaseURL = baseURL
	}

	return &Client{
		gh:          client,
		rateLimiter: NewRateLimiter(),
	}, nil
}

// ListRepositories lists all repositories belonging to the owner. The owner
// is treated as an organization first and as a user when the organization
// lookup reports not found.
func (c *Client) ListRepositories(ctx context.Context, owner string) ([]*gh.Repository, error) {
	repos, err := c.listOrgRepositories(ctx, owner)
	if err == nil {
		return repos, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	logger.Debugf("Owner %s is not an organization, listing user repositories", owner)
	return c.listUserRepositories(ctx, owner)
}

func (c *Client) listOrgRepositories(ctx context.Context, org string) ([]*gh.Repository, error) {
	opts := &gh.RepositoryListByOrgOptions{
		ListOptions: gh.ListOptions{PerPage: defaultPageSize},
	}

	var all []*gh.Repository
	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		repos, resp, err := c.gh.Repositories.ListByOrg(ctx, org, opts)
		if resp != nil {
			c.rateLimiter.UpdateFromResponse(resp.Response)
		}
		if err != nil {
			return nil, wrapError(err, fmt.Sprintf("list repositories for organization %s", org))
		}

		all = append(all, repos...)
		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) listUserRepositories(ctx context.Context, user string) ([]*gh.Repository, error) {
	opts := &gh.RepositoryListByUserOptions{
		ListOptions: gh.ListOptions{PerPage: defaultPageSize},
	}

	var all []*gh.Repository
	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		repos, resp, err := c.gh.Repositories.ListByUser(ctx, user, opts)
		if resp != nil {
			c.rateLimiter.UpdateFromResponse(resp.Response)
		}
		if err != nil {
			return nil, wrapError(err, fmt.Sprintf("list repositories for user %s", user))
		}

		all = append(all, repos...)
		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

// ListIssues lists all issues of a repository, in any state. Pull requests,
// which the API reports alongside issues, are filtered out.
func (c *Client) ListIssues(ctx context.Context, owner, repo string) ([]*gh.Issue, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       "all",
		ListOptions: gh.ListOptions{PerPage: defaultPageSize},
	}

	var all []*gh.Issue
	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		issues, resp, err := c.gh.Issues.ListByRepo(ctx, owner, repo, opts)
		if resp != nil {
			c.rateLimiter.UpdateFromResponse(resp.Response)
		}
		if err != nil {
			return nil, wrapError(err, fmt.Sprintf("list issues for %s/%s", owner, repo))
		}

		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			all = append(all, issue)
		}
		if resp.NextPage == 0 {
			return all, nil
		}
		opts.ListOptions.Page = resp.NextPage
	}
}

// ListIssueEvents lists the timeline events of a single issue.
func (c *Client) ListIssueEvents(ctx context.Context, owner, repo string, number int) ([]*gh.IssueEvent, error) {
	opts := &gh.ListOptions{PerPage: defaultPageSize}

	var all []*gh.IssueEvent
	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		events, resp, err := c.gh.Issues.ListIssueEvents(ctx, owner, repo, number, opts)
		if resp != nil {
			c.rateLimiter.UpdateFromResponse(resp.Response)
		}
		if err != nil {
			return nil, wrapError(err, fmt.Sprintf("list events for issue %s/%s#%d", owner, repo, number))
		}

		all = append(all, events...)
		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

// GetReadme fetches the decoded README of a repository.
func (c *Client) GetReadme(ctx context.Context, owner, repo string) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	readme, resp, err := c.gh.Repositories.GetReadme(ctx, owner, repo, nil)
	if resp != nil {
		c.rateLimiter.UpdateFromResponse(resp.Response)
	}
	if err != nil {
		return "", wrapError(err, fmt.Sprintf("get README for %s/%s", owner, repo))
	}

	content, err := readme.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode README for %s/%s: %w", owner, repo, err)
	}
	return content, nil
}

// wrapError translates go-github errors into this package's error types.
func wrapError(err error, operation string) error {
	var rateLimitErr *gh.RateLimitError
	if errors.As(err, &rateLimitErr) {
		retryAfter := time.Until(rateLimitErr.Rate.Reset.Time)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &RateLimitError{
			RetryAfter: retryAfter,
			ResetAt:    rateLimitErr.Rate.Reset.Time,
			Remaining:  rateLimitErr.Rate.Remaining,
			Limit:      rateLimitErr.Rate.Limit,
		}
	}

	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &RateLimitError{
			RetryAfter: abuseErr.GetRetryAfter(),
		}
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) {
		statusCode := 0
		requestURL := ""
		if ghErr.Response != nil {
			statusCode = ghErr.Response.StatusCode
			if ghErr.Response.Request != nil && ghErr.Response.Request.URL != nil {
				requestURL = ghErr.Response.Request.URL.String()
			}
		}
		return &APIError{
			StatusCode: statusCode,
			Message:    ghErr.Message,
			URL:        requestURL,
		}
	}

	return fmt.Errorf("%s: %w", operation, err)
}
