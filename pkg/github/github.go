// Package github wraps the GitHub API operations the mining stages depend
// on: repository discovery, issue collection and pull-request lookups.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v72/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/solfixes/solfixes/internal/metrics"
	apperrors "github.com/solfixes/solfixes/pkg/app/errors"
	"github.com/solfixes/solfixes/pkg/config"
)

// The search API serves at most the first thousand results.
const searchPageCap = 10

// Client represents a GitHub API client
type Client struct {
	config *config.GitHubConfig
	gh     *gh.Client
	logger *zap.Logger
}

// NewClient creates a new GitHub client. Without a token the client runs
// unauthenticated at the much lower anonymous rate limit.
func NewClient(cfg *config.GitHubConfig, logger *zap.Logger) *Client {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	if cfg.Token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(context.Background(), src)
		httpClient.Timeout = cfg.RequestTimeout
	}

	return &Client{
		config: cfg,
		gh:     gh.NewClient(httpClient),
		logger: logger.Named("github"),
	}
}

// Repo is one repository search hit.
type Repo struct {
	FullName     string
	Stars        int
	LastActivity time.Time
}

// Issue is one issue reference without its comment bodies.
type Issue struct {
	Number   int
	Title    string
	Body     string
	Comments int
}

// SearchRepositories runs a repository search and follows pagination to the
// API cap.
func (c *Client) SearchRepositories(ctx context.Context, query string) ([]Repo, error) {
	opts := &gh.SearchOptions{ListOptions: gh.ListOptions{PerPage: 100}}

	var repos []Repo
	for page := 1; page <= searchPageCap; page++ {
		opts.Page = page

		var result *gh.RepositoriesSearchResult
		var resp *gh.Response
		err := c.withRetry(ctx, "search_repositories", func() (*gh.Response, error) {
			var err error
			result, resp, err = c.gh.Search.Repositories(ctx, query, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to search repositories: %w", err)
		}

		for _, r := range result.Repositories {
			repos = append(repos, Repo{
				FullName:     r.GetFullName(),
				Stars:        r.GetStargazersCount(),
				LastActivity: r.GetUpdatedAt().Time,
			})
		}

		if resp.NextPage == 0 {
			break
		}
	}

	c.logger.Info("Repository search complete",
		zap.String("query", query),
		zap.Int("count", len(repos)))
	return repos, nil
}

// HasSolidityFile reports whether the repository contains at least one .sol
// file, via a scoped code search.
func (c *Client) HasSolidityFile(ctx context.Context, fullName string) (bool, error) {
	query := fmt.Sprintf("extension:sol repo:%s", fullName)
	opts := &gh.SearchOptions{ListOptions: gh.ListOptions{PerPage: 1}}

	var result *gh.CodeSearchResult
	err := c.withRetry(ctx, "search_code", func() (*gh.Response, error) {
		var err error
		var resp *gh.Response
		result, resp, err = c.gh.Search.Code(ctx, query, opts)
		return resp, err
	})
	if err != nil {
		return false, fmt.Errorf("failed to search code in %s: %w", fullName, err)
	}

	return result.GetTotal() > 0, nil
}

// Subscribers returns the repository's subscriber count, which is what the
// web UI labels "watchers".
func (c *Client) Subscribers(ctx context.Context, fullName string) (int, error) {
	owner, name := splitFullName(fullName)

	var repo *gh.Repository
	err := c.withRetry(ctx, "get_repository", func() (*gh.Response, error) {
		var err error
		var resp *gh.Response
		repo, resp, err = c.gh.Repositories.Get(ctx, owner, name)
		return resp, err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get repository %s: %w", fullName, err)
	}

	return repo.GetSubscribersCount(), nil
}

// Issues lists every issue of a repository, open and closed, excluding pull
// requests.
func (c *Client) Issues(ctx context.Context, fullName string) ([]Issue, error) {
	owner, name := splitFullName(fullName)
	opts := &gh.IssueListByRepoOptions{
		State:       "all",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var issues []Issue
	for {
		var page []*gh.Issue
		var resp *gh.Response
		err := c.withRetry(ctx, "list_issues", func() (*gh.Response, error) {
			var err error
			page, resp, err = c.gh.Issues.ListByRepo(ctx, owner, name, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list issues of %s: %w", fullName, err)
		}

		for _, issue := range page {
			if issue.IsPullRequest() {
				continue
			}
			issues = append(issues, Issue{
				Number:   issue.GetNumber(),
				Title:    issue.GetTitle(),
				Body:     issue.GetBody(),
				Comments: issue.GetComments(),
			})
		}

		if resp.NextPage == 0 {
			return issues, nil
		}
		opts.ListOptions.Page = resp.NextPage
	}
}

// IssueComments returns the comment bodies of one issue in posting order.
func (c *Client) IssueComments(ctx context.Context, fullName string, number int) ([]string, error) {
	owner, name := splitFullName(fullName)
	opts := &gh.IssueListCommentsOptions{ListOptions: gh.ListOptions{PerPage: 100}}

	var bodies []string
	for {
		var page []*gh.IssueComment
		var resp *gh.Response
		err := c.withRetry(ctx, "list_comments", func() (*gh.Response, error) {
			var err error
			page, resp, err = c.gh.Issues.ListComments(ctx, owner, name, number, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list comments of %s#%d: %w", fullName, number, err)
		}

		for _, comment := range page {
			bodies = append(bodies, comment.GetBody())
		}

		if resp.NextPage == 0 {
			return bodies, nil
		}
		opts.Page = resp.NextPage
	}
}

// PullRequestForCommit resolves the merged pull request a commit landed
// through. Returns false when the commit has no merged PR association, which
// covers direct pushes to the default branch.
func (c *Client) PullRequestForCommit(ctx context.Context, fullName, sha string) (int, bool, error) {
	owner, name := splitFullName(fullName)
	opts := &gh.ListOptions{PerPage: 100}

	var prs []*gh.PullRequest
	err := c.withRetry(ctx, "pull_requests_for_commit", func() (*gh.Response, error) {
		var err error
		var resp *gh.Response
		prs, resp, err = c.gh.PullRequests.ListPullRequestsWithCommit(ctx, owner, name, sha, opts)
		return resp, err
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to list pull requests for %s@%s: %w", fullName, sha, err)
	}

	for _, pr := range prs {
		if pr.MergedAt != nil {
			return pr.GetNumber(), true, nil
		}
	}
	return 0, false, nil
}

// withRetry runs one API call, waiting out primary and secondary rate
// limits instead of failing.
func (c *Client) withRetry(ctx context.Context, operation string, call func() (*gh.Response, error)) error {
	for {
		_, err := call()
		if err == nil {
			metrics.GitHubRequests.WithLabelValues(operation, "ok").Inc()
			return nil
		}

		var rateErr *gh.RateLimitError
		if errors.As(err, &rateErr) {
			metrics.GitHubRequests.WithLabelValues(operation, "rate_limited").Inc()
			wait := time.Until(rateErr.Rate.Reset.Time) + time.Second
			if wait < time.Second {
				wait = time.Second
			}
			c.logger.Warn("GitHub rate limit reached, waiting",
				zap.String("operation", operation),
				zap.Duration("wait", wait))
			if err := sleepContext(ctx, wait); err != nil {
				return err
			}
			continue
		}

		var abuseErr *gh.AbuseRateLimitError
		if errors.As(err, &abuseErr) {
			metrics.GitHubRequests.WithLabelValues(operation, "rate_limited").Inc()
			wait := abuseErr.GetRetryAfter()
			if wait < time.Second {
				wait = time.Second
			}
			c.logger.Warn("GitHub secondary rate limit reached, waiting",
				zap.String("operation", operation),
				zap.Duration("wait", wait))
			if err := sleepContext(ctx, wait); err != nil {
				return err
			}
			continue
		}

		metrics.GitHubRequests.WithLabelValues(operation, "error").Inc()
		return apperrors.DependencyError(err, "github "+operation+" failed")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func splitFullName(fullName string) (owner, name string) {
	owner, name, _ = strings.Cut(fullName, "/")
	return owner, name
}
