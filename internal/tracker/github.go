package tracker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/membankd/internal/config"
)

// issuePageSize is the REST page size for issue listings.
const issuePageSize = 100

// GitHubClient implements Client against the GitHub REST and GraphQL
// APIs.
type GitHubClient struct {
	gh      *github.Client
	owner   string
	repo    string
	project string
	retry   config.RetryConfig
	limiter *rate.Limiter
	logger  *zap.Logger

	// board caches Projects V2 node IDs after first resolution.
	// boardMu serializes resolution across concurrent tool calls.
	boardMu sync.Mutex
	board   *boardIDs
}

// NewGitHubClient builds a client from tracker configuration. The
// logger may be nil.
func NewGitHubClient(cfg config.TrackerConfig, logger *zap.Logger) (*GitHubClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	owner, repo, err := splitRepo(cfg.Repo)
	if err != nil {
		return nil, err
	}
	if !cfg.Token.IsSet() {
		return nil, fmt.Errorf("tracker: token is required")
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token.Value()})
	httpClient := oauth2.NewClient(context.Background(), src)

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	return &GitHubClient{
		gh:      github.NewClient(httpClient),
		owner:   owner,
		repo:    repo,
		project: cfg.ProjectURL,
		retry:   cfg.Retry,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger.Named("tracker"),
	}, nil
}

func splitRepo(full string) (owner, repo string, err error) {
	parts := strings.SplitN(full, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("tracker: repo must be owner/name, got %q", full)
	}
	return parts[0], parts[1], nil
}

// call wraps an API operation with rate limiting and retry.
func (c *GitHubClient) call(ctx context.Context, name string, op func() (*github.Response, error)) error {
	return withRetry(ctx, c.retry, c.logger, name, func() (*github.Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return op()
	})
}

// CreateIssue creates an issue in the configured repository.
func (c *GitHubClient) CreateIssue(ctx context.Context, issue NewIssue) (*Issue, error) {
	req := &github.IssueRequest{
		Title: github.String(issue.Title),
	}
	if issue.Body != "" {
		req.Body = github.String(issue.Body)
	}
	if len(issue.Labels) > 0 {
		req.Labels = &issue.Labels
	}
	if len(issue.Assignees) > 0 {
		req.Assignees = &issue.Assignees
	}
	if issue.Milestone > 0 {
		req.Milestone = github.Int(issue.Milestone)
	}

	var created *github.Issue
	err := c.call(ctx, "issues.create", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		created, resp, err = c.gh.Issues.Create(ctx, c.owner, c.repo, req)
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("create issue %q: %w", issue.Title, err)
	}
	return fromGitHubIssue(created), nil
}

// GetIssue fetches a single issue by number.
func (c *GitHubClient) GetIssue(ctx context.Context, number int) (*Issue, error) {
	var got *github.Issue
	err := c.call(ctx, "issues.get", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		got, resp, err = c.gh.Issues.Get(ctx, c.owner, c.repo, number)
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("get issue #%d: %w", number, err)
	}
	return fromGitHubIssue(got), nil
}

// UpdateIssue applies a partial mutation. Labels and assignees replace
// the remote sets. MilestoneNumber -1 clears the milestone via a
// separate call.
func (c *GitHubClient) UpdateIssue(ctx context.Context, number int, update IssueUpdate) (*Issue, error) {
	req := &github.IssueRequest{
		Title:     update.Title,
		Body:      update.Body,
		State:     update.State,
		Labels:    update.Labels,
		Assignees: update.Assignees,
	}
	clearMilestone := false
	if update.MilestoneNumber != nil {
		if *update.MilestoneNumber < 0 {
			clearMilestone = true
		} else {
			req.Milestone = update.MilestoneNumber
		}
	}

	var edited *github.Issue
	err := c.call(ctx, "issues.edit", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		edited, resp, err = c.gh.Issues.Edit(ctx, c.owner, c.repo, number, req)
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("update issue #%d: %w", number, err)
	}

	if clearMilestone {
		err := c.call(ctx, "issues.remove_milestone", func() (*github.Response, error) {
			var resp *github.Response
			var err error
			edited, resp, err = c.gh.Issues.RemoveMilestone(ctx, c.owner, c.repo, number)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("clear milestone on issue #%d: %w", number, err)
		}
	}
	return fromGitHubIssue(edited), nil
}

// ListIssues returns a lazy sequence over issues matching the filter.
// Pull requests are excluded.
func (c *GitHubClient) ListIssues(ctx context.Context, filter IssueFilter) *IssueSeq {
	opts := &github.IssueListByRepoOptions{
		State:       filter.State,
		Labels:      filter.Labels,
		Assignee:    filter.Assignee,
		Milestone:   filter.Milestone,
		ListOptions: github.ListOptions{PerPage: issuePageSize},
	}
	if opts.State == "" {
		opts.State = "open"
	}
	if !filter.Since.IsZero() {
		opts.Since = filter.Since
	}

	return NewIssueSeq(func(ctx context.Context) ([]*Issue, bool, error) {
		var page []*github.Issue
		var resp *github.Response
		err := c.call(ctx, "issues.list", func() (*github.Response, error) {
			var err error
			page, resp, err = c.gh.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
			return resp, err
		})
		if err != nil {
			return nil, false, fmt.Errorf("list issues: %w", err)
		}
		out := make([]*Issue, 0, len(page))
		for _, gi := range page {
			if gi.IsPullRequest() {
				continue
			}
			out = append(out, fromGitHubIssue(gi))
		}
		more := resp.NextPage != 0
		opts.Page = resp.NextPage
		return out, more, nil
	})
}

func fromGitHubIssue(gi *github.Issue) *Issue {
	if gi == nil {
		return nil
	}
	issue := &Issue{
		Number: gi.GetNumber(),
		NodeID: gi.GetNodeID(),
		Title:  gi.GetTitle(),
		Body:   gi.GetBody(),
		State:  gi.GetState(),
		URL:    gi.GetHTMLURL(),
	}
	if m := gi.Milestone; m != nil {
		issue.Milestone = m.GetTitle()
	}
	for _, l := range gi.Labels {
		issue.Labels = append(issue.Labels, l.GetName())
	}
	for _, a := range gi.Assignees {
		issue.Assignees = append(issue.Assignees, a.GetLogin())
	}
	if ts := gi.UpdatedAt; ts != nil {
		issue.UpdatedAt = ts.Time
	}
	return issue
}
