// Package github provides functionality for interacting with the GitHub API.
package github

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v41/github"
	"golang.org/x/oauth2"

	"github.com/aerostitch/trac-hub/internal/logging"
	"github.com/aerostitch/trac-hub/pkg/models"
)

// mediaTypeIssueImport is the preview media type of the bulk issue import
// endpoint, which go-github has no typed surface for.
const mediaTypeIssueImport = "application/vnd.github.golden-comet-preview+json"

// Import job states as reported by the import endpoint.
const (
	ImportStatusPending  = "pending"
	ImportStatusImported = "imported"
	ImportStatusFailed   = "failed"
)

// ImportJob describes one asynchronous issue import on the remote side.
type ImportJob struct {
	ID       int           `json:"id"`
	Status   string        `json:"status"`
	URL      string        `json:"url"`
	IssueURL string        `json:"issue_url"`
	Errors   []ImportError `json:"errors,omitempty"`
}

// ImportError is one validation failure attached to a failed import job.
type ImportError struct {
	Location string `json:"location"`
	Resource string `json:"resource"`
	Field    string `json:"field"`
	Value    string `json:"value"`
	Code     string `json:"code"`
}

// IssueNumber parses the created issue's number out of the job's issue URL.
func (j *ImportJob) IssueNumber() (int64, error) {
	idx := strings.LastIndex(j.IssueURL, "/")
	if idx < 0 || idx == len(j.IssueURL)-1 {
		return 0, fmt.Errorf("import job %d has no parseable issue url: %q", j.ID, j.IssueURL)
	}
	number, err := strconv.ParseInt(j.IssueURL[idx+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("import job %d has no parseable issue url: %q", j.ID, j.IssueURL)
	}
	return number, nil
}

// Wire format of the import endpoint.
type importIssue struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	CreatedAt string   `json:"created_at,omitempty"`
	UpdatedAt string   `json:"updated_at,omitempty"`
	ClosedAt  string   `json:"closed_at,omitempty"`
	Closed    bool     `json:"closed"`
	Labels    []string `json:"labels,omitempty"`
}

type importComment struct {
	CreatedAt string `json:"created_at,omitempty"`
	Body      string `json:"body"`
}

type importRequest struct {
	Issue    importIssue     `json:"issue"`
	Comments []importComment `json:"comments,omitempty"`
}

// Client encapsulates the GitHub API client for one target repository.
type Client struct {
	client *github.Client
	owner  string
	repo   string
}

// NewClient creates a new GitHub API client for the given "owner/repo"
// repository, authenticates with the supplied token and tests the connection.
func NewClient(repository, token string) (*Client, error) {
	parts := strings.Split(repository, "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid repository format: %s, expected format: owner/repo", repository)
	}

	if token == "" {
		return nil, fmt.Errorf("github token not found in configuration")
	}

	logging.Info("github configuration",
		"repository", repository,
		"token", logging.MaskSensitive(token))

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	client := github.NewClient(tc)

	// Test the token
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	user, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("error testing github token: %w", err)
	}

	logging.Info("github authentication successful", "username", user.GetLogin())

	return &Client{client: client, owner: parts[0], repo: parts[1]}, nil
}

// FindIssue fetches the issue with the given number. It returns found=false
// without an error when the issue does not exist.
func (c *Client) FindIssue(ctx context.Context, number int64) (*models.ComposedIssue, bool, error) {
	issue, resp, err := c.client.Issues.Get(ctx, c.owner, c.repo, int(number))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get issue #%d: %w", number, err)
	}

	return &models.ComposedIssue{
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
		Closed: issue.GetState() == "closed",
	}, true, nil
}

// LastIssueNumber returns the number of the most recently created issue, or
// zero when the repository has none. Pull requests count, since they share
// the issue number sequence.
func (c *Client) LastIssueNumber(ctx context.Context) (int64, error) {
	opts := &github.IssueListByRepoOptions{
		State:     "all",
		Sort:      "created",
		Direction: "desc",
		ListOptions: github.ListOptions{
			PerPage: 1,
		},
	}

	issues, _, err := c.client.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
	if err != nil {
		return 0, fmt.Errorf("failed to list issues: %w", err)
	}
	if len(issues) == 0 {
		return 0, nil
	}
	return int64(issues[0].GetNumber()), nil
}

// SubmitImport posts one composed issue to the asynchronous import endpoint
// and returns the created job descriptor.
func (c *Client) SubmitImport(ctx context.Context, issue *models.ComposedIssue) (*ImportJob, error) {
	body := importRequest{
		Issue: importIssue{
			Title:     issue.Title,
			Body:      issue.Body,
			CreatedAt: issue.CreatedAt,
			UpdatedAt: issue.UpdatedAt,
			ClosedAt:  issue.ClosedAt,
			Closed:    issue.Closed,
			Labels:    issue.Labels,
		},
	}
	for _, comment := range issue.Comments {
		body.Comments = append(body.Comments, importComment{
			CreatedAt: comment.CreatedAt,
			Body:      comment.Body,
		})
	}

	url := fmt.Sprintf("repos/%s/%s/import/issues", c.owner, c.repo)
	req, err := c.client.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build import request: %w", err)
	}
	req.Header.Set("Accept", mediaTypeIssueImport)

	job := new(ImportJob)
	if _, err := c.client.Do(ctx, req, job); err != nil {
		return nil, fmt.Errorf("failed to submit import: %w", err)
	}
	return job, nil
}

// PollImport fetches the current state of an import job by its URL.
func (c *Client) PollImport(ctx context.Context, url string) (*ImportJob, error) {
	req, err := c.client.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build poll request: %w", err)
	}
	req.Header.Set("Accept", mediaTypeIssueImport)

	job := new(ImportJob)
	if _, err := c.client.Do(ctx, req, job); err != nil {
		return nil, fmt.Errorf("failed to poll import job: %w", err)
	}
	return job, nil
}
