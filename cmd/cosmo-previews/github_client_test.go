// Copyright (C) 2025 WunderGraph, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// httpClientFunc adapts a function to the HTTPClient interface.
type httpClientFunc func(req *http.Request) (*http.Response, error)

func (f httpClientFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func testGitHubClient(do httpClientFunc) *GitHubClient {
	c := NewGitHubClient("gh_token_123", testLogger())
	c.http = do
	return c
}

var testRef = PullRequestRef{Owner: "acme", Repo: "graph", Number: 42}

// TestListChangedFiles_Pagination verifies the client walks every page
// until a short page and concatenates results in order.
func TestListChangedFiles_Pagination(t *testing.T) {
	fullPage := make([]ChangedFile, perPage)
	for i := range fullPage {
		fullPage[i] = ChangedFile{Filename: fmt.Sprintf("schemas/s%d.graphql", i), Status: "modified"}
	}
	page1, err := json.Marshal(fullPage)
	require.NoError(t, err)

	var urls []string
	client := testGitHubClient(func(req *http.Request) (*http.Response, error) {
		urls = append(urls, req.URL.String())
		assert.Equal(t, "application/vnd.github+json", req.Header.Get("Accept"))
		assert.Equal(t, "2022-11-28", req.Header.Get("X-GitHub-Api-Version"))
		assert.Equal(t, "Bearer gh_token_123", req.Header.Get("Authorization"))

		if req.URL.Query().Get("page") == "1" {
			return jsonResponse(http.StatusOK, string(page1)), nil
		}
		return jsonResponse(http.StatusOK, `[{"filename":"schemas/last.graphql","status":"added"}]`), nil
	})

	files, err := client.ListChangedFiles(context.Background(), testRef)
	require.NoError(t, err)
	assert.Len(t, files, perPage+1)
	assert.Equal(t, "schemas/last.graphql", files[perPage].Filename)

	require.Len(t, urls, 2)
	assert.Equal(t, "https://api.github.com/repos/acme/graph/pulls/42/files?per_page=100&page=1", urls[0])
	assert.Equal(t, "https://api.github.com/repos/acme/graph/pulls/42/files?per_page=100&page=2", urls[1])
}

// TestListChangedFiles_Error verifies a non-200 status surfaces with the
// body detail.
func TestListChangedFiles_Error(t *testing.T) {
	client := testGitHubClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNotFound, `{"message":"Not Found"}`), nil
	})

	_, err := client.ListChangedFiles(context.Background(), testRef)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.Contains(t, err.Error(), "Not Found")
	assert.Contains(t, err.Error(), "acme/graph#42")
}

// TestListCommits verifies URL shape and the zero-commit case.
func TestListCommits(t *testing.T) {
	t.Run("single short page", func(t *testing.T) {
		client := testGitHubClient(func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "/repos/acme/graph/pulls/42/commits", req.URL.Path)
			return jsonResponse(http.StatusOK, `[{"sha":"c1"},{"sha":"c2"}]`), nil
		})

		commits, err := client.ListCommits(context.Background(), testRef)
		require.NoError(t, err)
		assert.Equal(t, []Commit{{SHA: "c1"}, {SHA: "c2"}}, commits)
	})

	t.Run("zero commits", func(t *testing.T) {
		client := testGitHubClient(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `[]`), nil
		})

		commits, err := client.ListCommits(context.Background(), testRef)
		require.NoError(t, err)
		assert.Empty(t, commits)
	})
}

// TestGetCommit verifies the per-commit file detail fetch.
func TestGetCommit(t *testing.T) {
	client := testGitHubClient(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/repos/acme/graph/commits/abc123", req.URL.Path)
		return jsonResponse(http.StatusOK, `{"sha":"abc123","files":[{"filename":"schemas/products.graphql","status":"modified"}]}`), nil
	})

	detail, err := client.GetCommit(context.Background(), testRef, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", detail.SHA)
	require.Len(t, detail.Files, 1)
	assert.Equal(t, "modified", detail.Files[0].Status)
}

// TestCreateComment verifies the POST shape and the 201 expectation.
func TestCreateComment(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		var gotBody []byte
		client := testGitHubClient(func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, http.MethodPost, req.Method)
			assert.Equal(t, "/repos/acme/graph/issues/42/comments", req.URL.Path)
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			gotBody, _ = io.ReadAll(req.Body)
			return jsonResponse(http.StatusCreated, `{"id":1}`), nil
		})

		err := client.CreateComment(context.Background(), testRef, "## Cosmo Previews\nall good")
		require.NoError(t, err)

		var payload map[string]string
		require.NoError(t, json.Unmarshal(gotBody, &payload))
		assert.Equal(t, "## Cosmo Previews\nall good", payload["body"])
	})

	t.Run("forbidden", func(t *testing.T) {
		client := testGitHubClient(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusForbidden, `{"message":"Resource not accessible"}`), nil
		})

		err := client.CreateComment(context.Background(), testRef, "body")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status 403")
	})
}

// TestResponseError_Truncation verifies long error bodies are capped.
func TestResponseError_Truncation(t *testing.T) {
	long := bytes.Repeat([]byte("x"), 2048)
	resp := jsonResponse(http.StatusBadGateway, string(long))
	msg := responseError(resp)
	assert.Contains(t, msg, "unexpected status 502")
	assert.LessOrEqual(t, len(msg), 600)
}
