// Package github implements the forge capability against the GitHub API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/mjankowski/autodev/internal/faults"
	"github.com/mjankowski/autodev/internal/types"
)

// Client implements forge.Forge using the GitHub REST API
type Client struct {
	gh          *github.Client
	owner       string
	repo        string
	mergeMethod string
	limiter     *rate.Limiter
}

// Config holds GitHub provider settings
type Config struct {
	Owner string
	Repo  string
	Token string
	// MergeMethod is one of "merge", "squash", "rebase"
	MergeMethod string
}

// New creates a GitHub forge client with token authentication and a
// client-side rate limiter in front of the API's own limits.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, faults.Fatal("forge.init", fmt.Errorf("forge owner and repo are required"))
	}
	if cfg.Token == "" {
		return nil, faults.Fatal("forge.init", fmt.Errorf("forge token not set"))
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	tc := oauth2.NewClient(ctx, ts)

	mergeMethod := cfg.MergeMethod
	if mergeMethod == "" {
		mergeMethod = "squash"
	}

	return &Client{
		gh:          github.NewClient(tc),
		owner:       cfg.Owner,
		repo:        cfg.Repo,
		mergeMethod: mergeMethod,
		limiter:     rate.NewLimiter(rate.Limit(5), 10),
	}, nil
}

// classify maps a GitHub API failure to the taxonomy
func classify(op string, resp *github.Response, err error) error {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return faults.Transient(op, err)
	}
	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			return faults.Fatal(op, err)
		case resp.StatusCode == http.StatusNotFound:
			return faults.TicketScoped(op, err)
		case resp.StatusCode >= 500:
			return faults.Transient(op, err)
		}
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		// 4xx that is neither auth nor missing: the request itself is bad
		return faults.TicketScoped(op, err)
	}
	// No HTTP response at all: network-level failure
	return faults.Transient(op, err)
}

func (c *Client) wait(ctx context.Context, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return faults.Fatal(op, fmt.Errorf("context canceled: %w", err))
	}
	return nil
}

func parseNumber(op, id string) (int, error) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return 0, faults.TicketScoped(op, fmt.Errorf("invalid merge request id %q: %w", id, err))
	}
	return n, nil
}

// CreateMergeRequest opens a pull request and returns its number as the ID
func (c *Client) CreateMergeRequest(ctx context.Context, mr types.NewMergeRequest) (string, error) {
	const op = "forge.create_merge_request"
	if err := c.wait(ctx, op); err != nil {
		return "", err
	}

	pr, resp, err := c.gh.PullRequests.Create(ctx, c.owner, c.repo, &github.NewPullRequest{
		Title: github.String(mr.Title),
		Body:  github.String(mr.Body),
		Head:  github.String(mr.SourceBranch),
		Base:  github.String(mr.TargetBranch),
	})
	if err != nil {
		return "", classify(op, resp, err)
	}
	return strconv.Itoa(pr.GetNumber()), nil
}

func toMergeRequest(pr *github.PullRequest) *types.MergeRequest {
	state := types.MergeRequestOpen
	switch {
	case pr.GetMerged(), pr.MergedAt != nil:
		state = types.MergeRequestMerged
	case pr.GetState() == "closed":
		state = types.MergeRequestClosed
	}
	return &types.MergeRequest{
		ID:           strconv.Itoa(pr.GetNumber()),
		State:        state,
		SourceBranch: pr.GetHead().GetRef(),
		TargetBranch: pr.GetBase().GetRef(),
		URL:          pr.GetHTMLURL(),
	}
}

// GetMergeRequest returns the current state of a pull request
func (c *Client) GetMergeRequest(ctx context.Context, id string) (*types.MergeRequest, error) {
	const op = "forge.get_merge_request"
	number, err := parseNumber(op, id)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}

	pr, resp, err := c.gh.PullRequests.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, classify(op, resp, err)
	}
	return toMergeRequest(pr), nil
}

// FindMergeRequestByBranch locates the newest pull request for a head branch
func (c *Client) FindMergeRequestByBranch(ctx context.Context, branch string) (*types.MergeRequest, error) {
	const op = "forge.find_merge_request"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}

	prs, resp, err := c.gh.PullRequests.List(ctx, c.owner, c.repo, &github.PullRequestListOptions{
		Head:        c.owner + ":" + branch,
		State:       "all",
		ListOptions: github.ListOptions{PerPage: 10},
	})
	if err != nil {
		return nil, classify(op, resp, err)
	}
	if len(prs) == 0 {
		return nil, nil
	}

	sort.Slice(prs, func(i, j int) bool {
		return prs[i].GetNumber() > prs[j].GetNumber()
	})
	return toMergeRequest(prs[0]), nil
}

// ListComments returns issue comments and review comments, oldest first
func (c *Client) ListComments(ctx context.Context, id string) ([]types.ReviewComment, error) {
	const op = "forge.list_comments"
	number, err := parseNumber(op, id)
	if err != nil {
		return nil, err
	}

	var out []types.ReviewComment

	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	issueComments, resp, err := c.gh.Issues.ListComments(ctx, c.owner, c.repo, number, &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, classify(op, resp, err)
	}
	for _, ic := range issueComments {
		out = append(out, types.ReviewComment{
			Author:    ic.GetUser().GetLogin(),
			Body:      ic.GetBody(),
			CreatedAt: ic.GetCreatedAt().Time,
		})
	}

	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	reviewComments, resp, err := c.gh.PullRequests.ListComments(ctx, c.owner, c.repo, number, &github.PullRequestListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, classify(op, resp, err)
	}
	for _, rc := range reviewComments {
		out = append(out, types.ReviewComment{
			Author:    rc.GetUser().GetLogin(),
			Body:      rc.GetBody(),
			Path:      rc.GetPath(),
			Line:      rc.GetLine(),
			CreatedAt: rc.GetCreatedAt().Time,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Merge merges the pull request using the configured merge method
func (c *Client) Merge(ctx context.Context, id string) error {
	const op = "forge.merge"
	number, err := parseNumber(op, id)
	if err != nil {
		return err
	}
	if err := c.wait(ctx, op); err != nil {
		return err
	}

	result, resp, err := c.gh.PullRequests.Merge(ctx, c.owner, c.repo, number, "",
		&github.PullRequestOptions{MergeMethod: c.mergeMethod})
	if err != nil {
		return classify(op, resp, err)
	}
	if !result.GetMerged() {
		return faults.TicketScoped(op, fmt.Errorf("forge refused merge: %s", result.GetMessage()))
	}
	return nil
}

// CloseMergeRequest closes the pull request without merging
func (c *Client) CloseMergeRequest(ctx context.Context, id string) error {
	const op = "forge.close_merge_request"
	number, err := parseNumber(op, id)
	if err != nil {
		return err
	}
	if err := c.wait(ctx, op); err != nil {
		return err
	}

	_, resp, err := c.gh.PullRequests.Edit(ctx, c.owner, c.repo, number, &github.PullRequest{
		State: github.String("closed"),
	})
	if err != nil {
		return classify(op, resp, err)
	}
	return nil
}
