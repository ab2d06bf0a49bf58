// Copyright (C) 2025 WunderGraph, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wundergraph/cosmo-previews/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Quiet: true})
}

// TestParseChangeKind covers every host status string.
func TestParseChangeKind(t *testing.T) {
	tests := []struct {
		status string
		want   ChangeKind
	}{
		{"added", ChangeAdded},
		{"copied", ChangeCopied},
		{"removed", ChangeDeleted},
		{"modified", ChangeModified},
		{"renamed", ChangeRenamed},
		{"changed", ChangeTypeChanged},
		{"unmerged", ChangeUnmerged},
		{"unchanged", ChangeUnknown},
		{"", ChangeUnknown},
	}
	for _, tt := range tests {
		if got := parseChangeKind(tt.status); got != tt.want {
			t.Errorf("parseChangeKind(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

// TestIsSchemaFile verifies the fixed schema glob set.
func TestIsSchemaFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"schemas/products.graphql", true},
		{"schemas/products.gql", true},
		{"schemas/products.graphqls", true},
		{"deep/nested/dir/reviews.graphql", true},
		{"products.graphql", true},
		{"schemas/products.graphql.bak", false},
		{"schemas/products.yaml", false},
		{"README.md", false},
		{".github/cosmo.yaml", false},
	}
	for _, tt := range tests {
		if got := isSchemaFile(tt.path); got != tt.want {
			t.Errorf("isSchemaFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

// TestCollectChangedFiles_RenameExpansion verifies a rename becomes a
// synthetic Deleted+Added pair, both resolved under the checkout root.
func TestCollectChangedFiles_RenameExpansion(t *testing.T) {
	root := t.TempDir()
	pulls := &MockPullRequestClient{
		ListChangedFilesFunc: func(ctx context.Context, ref PullRequestRef) ([]ChangedFile, error) {
			return []ChangedFile{
				{Filename: "schemas/catalog.graphql", Status: "renamed", PreviousFilename: "schemas/products.graphql"},
				{Filename: "schemas/reviews.graphql", Status: "modified"},
			}, nil
		},
	}
	c := NewChangeClassifier(pulls, root, testLogger())

	records, err := c.CollectChangedFiles(context.Background(), PullRequestRef{Owner: "acme", Repo: "graph", Number: 7})
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, ChangeRecord{Path: filepath.Join(root, "schemas", "products.graphql"), Kind: ChangeDeleted}, records[0])
	assert.Equal(t, ChangeRecord{Path: filepath.Join(root, "schemas", "catalog.graphql"), Kind: ChangeAdded}, records[1])
	assert.Equal(t, ChangeRecord{Path: filepath.Join(root, "schemas", "reviews.graphql"), Kind: ChangeModified}, records[2])
}

// TestFilterSchemaFiles verifies filtering across buckets and the
// single-kind restriction.
func TestFilterSchemaFiles(t *testing.T) {
	records := []ChangeRecord{
		{Path: "/repo/schemas/a.graphql", Kind: ChangeAdded},
		{Path: "/repo/schemas/b.gql", Kind: ChangeModified},
		{Path: "/repo/schemas/c.graphqls", Kind: ChangeDeleted},
		{Path: "/repo/docs/readme.md", Kind: ChangeModified},
		{Path: "/repo/schemas/a.graphql", Kind: ChangeModified}, // duplicate path
		{Path: "/repo/src/app.go", Kind: ChangeAdded},
	}

	t.Run("all kinds", func(t *testing.T) {
		got := FilterSchemaFiles(records)
		want := []string{
			"/repo/schemas/a.graphql",
			"/repo/schemas/b.gql",
			"/repo/schemas/c.graphqls",
		}
		assert.Equal(t, want, got)
	})

	t.Run("restricted to modified", func(t *testing.T) {
		got := FilterSchemaFiles(records, ChangeModified)
		want := []string{
			"/repo/schemas/b.gql",
			"/repo/schemas/a.graphql",
		}
		assert.Equal(t, want, got)
	})

	t.Run("no matches", func(t *testing.T) {
		assert.Empty(t, FilterSchemaFiles(records, ChangeUnmerged))
	})
}

// TestManifestChanged verifies the sentinel-path check across change kinds.
func TestManifestChanged(t *testing.T) {
	manifest := filepath.Join("/repo", ".github", "cosmo.yaml")

	t.Run("modified manifest detected", func(t *testing.T) {
		records := []ChangeRecord{
			{Path: filepath.Join("/repo", "schemas", "a.graphql"), Kind: ChangeModified},
			{Path: manifest, Kind: ChangeModified},
		}
		assert.True(t, ManifestChanged(records, manifest))
	})

	t.Run("deleted manifest detected", func(t *testing.T) {
		records := []ChangeRecord{{Path: manifest, Kind: ChangeDeleted}}
		assert.True(t, ManifestChanged(records, manifest))
	})

	t.Run("untouched manifest passes", func(t *testing.T) {
		records := []ChangeRecord{
			{Path: filepath.Join("/repo", "schemas", "a.graphql"), Kind: ChangeModified},
		}
		assert.False(t, ManifestChanged(records, manifest))
	})
}

// TestNormalizePath verifies wire paths are converted to host separators.
func TestNormalizePath(t *testing.T) {
	got := normalizePath("schemas//nested/../products.graphql")
	want := filepath.Join("schemas", "products.graphql")
	assert.Equal(t, want, got)
}
