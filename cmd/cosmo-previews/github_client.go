// Copyright (C) 2025 WunderGraph, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package main provides PullRequestClient, the query boundary to the source
code host.

The reconciliation core needs three read queries and one write:

  - the PR's full cumulative changed-file list (paginated)
  - the PR's commit list (paginated; only the last entry is used)
  - one commit's per-file change detail
  - posting the run report as a PR comment

Changed-file data is collected fresh on every invocation and never cached
across runs; the PR diff is the system's source of truth for what this PR
could have created.
*/
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/wundergraph/cosmo-previews/pkg/logging"
)

// -----------------------------------------------------------------------------
// Domain Types
// -----------------------------------------------------------------------------

// PullRequestRef identifies one pull request on the host.
type PullRequestRef struct {
	// Owner is the repository owner or organization.
	Owner string

	// Repo is the repository name.
	Repo string

	// Number is the pull request number.
	Number int
}

// String returns "owner/repo#number".
func (r PullRequestRef) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// ChangedFile is one file change record as reported by the host.
type ChangedFile struct {
	// Filename is the repo-relative path, always forward-slashed on the
	// wire regardless of host OS.
	Filename string `json:"filename"`

	// Status is the host's change kind: added, copied, removed, modified,
	// renamed, changed, unmerged, or unchanged.
	Status string `json:"status"`

	// PreviousFilename is set for renames: the pre-rename path.
	PreviousFilename string `json:"previous_filename,omitempty"`
}

// Commit is one commit reference in a pull request.
type Commit struct {
	// SHA is the commit hash.
	SHA string `json:"sha"`
}

// CommitDetail is a single commit with its per-file changes.
type CommitDetail struct {
	SHA   string        `json:"sha"`
	Files []ChangedFile `json:"files"`
}

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// HTTPClient abstracts the HTTP transport for testability.
//
// Accepts standard *http.Request objects created via
// http.NewRequestWithContext and returns standard *http.Response.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// PullRequestClient is the query/report boundary to the source code host.
type PullRequestClient interface {
	// ListChangedFiles returns every file touched across the PR's full
	// history, following pagination to the end.
	ListChangedFiles(ctx context.Context, ref PullRequestRef) ([]ChangedFile, error)

	// ListCommits returns the PR's commits in order, following
	// pagination. An empty slice means a zero-commit PR.
	ListCommits(ctx context.Context, ref PullRequestRef) ([]Commit, error)

	// GetCommit returns one commit's per-file change detail.
	GetCommit(ctx context.Context, ref PullRequestRef, sha string) (*CommitDetail, error)

	// CreateComment posts a markdown comment on the pull request.
	CreateComment(ctx context.Context, ref PullRequestRef, body string) error
}

// -----------------------------------------------------------------------------
// GitHub REST Implementation
// -----------------------------------------------------------------------------

const (
	githubAPIBase    = "https://api.github.com"
	githubAPIVersion = "2022-11-28"

	// perPage is the maximum page size the files and commits endpoints allow.
	perPage = 100
)

// GitHubClient implements PullRequestClient against the GitHub REST v3 API.
type GitHubClient struct {
	http    HTTPClient
	baseURL string
	token   string
	log     *logging.Logger
}

// NewGitHubClient creates a PullRequestClient for the GitHub API.
//
// # Inputs
//
//   - token: Host access credential, sent as a bearer token
//   - log: Structured logger
func NewGitHubClient(token string, log *logging.Logger) *GitHubClient {
	return &GitHubClient{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: githubAPIBase,
		token:   token,
		log:     log,
	}
}

// ListChangedFiles returns every file touched across the PR's full history.
func (c *GitHubClient) ListChangedFiles(ctx context.Context, ref PullRequestRef) ([]ChangedFile, error) {
	var all []ChangedFile
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files?per_page=%d&page=%d",
			c.baseURL, ref.Owner, ref.Repo, ref.Number, perPage, page)

		var files []ChangedFile
		if err := c.getJSON(ctx, url, &files); err != nil {
			return nil, fmt.Errorf("listing changed files for %s: %w", ref, err)
		}
		all = append(all, files...)
		if len(files) < perPage {
			break
		}
	}
	c.log.Debug("collected changed files", "pr", ref.String(), "count", len(all))
	return all, nil
}

// ListCommits returns the PR's commits in order.
func (c *GitHubClient) ListCommits(ctx context.Context, ref PullRequestRef) ([]Commit, error) {
	var all []Commit
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/commits?per_page=%d&page=%d",
			c.baseURL, ref.Owner, ref.Repo, ref.Number, perPage, page)

		var commits []Commit
		if err := c.getJSON(ctx, url, &commits); err != nil {
			return nil, fmt.Errorf("listing commits for %s: %w", ref, err)
		}
		all = append(all, commits...)
		if len(commits) < perPage {
			break
		}
	}
	return all, nil
}

// GetCommit returns one commit's per-file change detail.
func (c *GitHubClient) GetCommit(ctx context.Context, ref PullRequestRef, sha string) (*CommitDetail, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/commits/%s", c.baseURL, ref.Owner, ref.Repo, sha)
	var detail CommitDetail
	if err := c.getJSON(ctx, url, &detail); err != nil {
		return nil, fmt.Errorf("fetching commit %s for %s: %w", sha, ref, err)
	}
	return &detail, nil
}

// CreateComment posts a markdown comment on the pull request.
func (c *GitHubClient) CreateComment(ctx context.Context, ref PullRequestRef, body string) error {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", c.baseURL, ref.Owner, ref.Repo, ref.Number)

	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return fmt.Errorf("encoding comment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting comment on %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("posting comment on %s: %s", ref, responseError(resp))
	}
	return nil
}

// getJSON issues a GET and decodes the 200 response body into out.
func (c *GitHubClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s", responseError(resp))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *GitHubClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", githubAPIVersion)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// responseError renders a non-2xx response into a short diagnostic.
// The body is truncated; GitHub error payloads front-load the message.
func responseError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockPullRequestClient is a test double for PullRequestClient.
//
// Configure the mock by setting function fields before use. Unset read
// fields return empty results; CreateComment records the body.
type MockPullRequestClient struct {
	ListChangedFilesFunc func(ctx context.Context, ref PullRequestRef) ([]ChangedFile, error)
	ListCommitsFunc      func(ctx context.Context, ref PullRequestRef) ([]Commit, error)
	GetCommitFunc        func(ctx context.Context, ref PullRequestRef, sha string) (*CommitDetail, error)
	CreateCommentFunc    func(ctx context.Context, ref PullRequestRef, body string) error

	// Comments records every body passed to CreateComment.
	Comments []string

	mu sync.Mutex
}

// ListChangedFiles delegates to ListChangedFilesFunc (default: empty).
func (m *MockPullRequestClient) ListChangedFiles(ctx context.Context, ref PullRequestRef) ([]ChangedFile, error) {
	if m.ListChangedFilesFunc == nil {
		return nil, nil
	}
	return m.ListChangedFilesFunc(ctx, ref)
}

// ListCommits delegates to ListCommitsFunc (default: empty).
func (m *MockPullRequestClient) ListCommits(ctx context.Context, ref PullRequestRef) ([]Commit, error) {
	if m.ListCommitsFunc == nil {
		return nil, nil
	}
	return m.ListCommitsFunc(ctx, ref)
}

// GetCommit delegates to GetCommitFunc (default: empty detail).
func (m *MockPullRequestClient) GetCommit(ctx context.Context, ref PullRequestRef, sha string) (*CommitDetail, error) {
	if m.GetCommitFunc == nil {
		return &CommitDetail{SHA: sha}, nil
	}
	return m.GetCommitFunc(ctx, ref, sha)
}

// CreateComment records the body and delegates to CreateCommentFunc.
func (m *MockPullRequestClient) CreateComment(ctx context.Context, ref PullRequestRef, body string) error {
	m.mu.Lock()
	m.Comments = append(m.Comments, body)
	m.mu.Unlock()
	if m.CreateCommentFunc == nil {
		return nil
	}
	return m.CreateCommentFunc(ctx, ref, body)
}

// Compile-time interface compliance check.
var (
	_ PullRequestClient = (*GitHubClient)(nil)
	_ PullRequestClient = (*MockPullRequestClient)(nil)
)
