// Copyright (C) 2025 WunderGraph, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package main provides the change classifier of the reconciliation core.

The classifier turns the host's raw changed-file records into typed
ChangeRecords with resolved absolute paths, then filters them down to the
GraphQL schema files the manifest cares about. A rename is modeled as a
synthetic deletion of the old path plus an addition of the new path, so
every downstream consumer sees at most two simple change kinds per file.

Path comparisons are anchored on absolute, host-OS-normalized paths:
the host reports forward-slashed repo-relative paths, the manifest
resolves schema paths against its own directory, and both sides meet
here in the same form regardless of the invocation's working directory
or platform separator conventions.
*/
package main

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/wundergraph/cosmo-previews/pkg/logging"
)

// -----------------------------------------------------------------------------
// Change Kinds
// -----------------------------------------------------------------------------

// ChangeKind classifies one file change within a pull request.
type ChangeKind int

const (
	// ChangeUnknown is any change kind the host did not classify.
	ChangeUnknown ChangeKind = iota

	// ChangeAdded is a newly created file.
	ChangeAdded

	// ChangeCopied is a file copied from another path.
	ChangeCopied

	// ChangeDeleted is a removed file.
	ChangeDeleted

	// ChangeModified is an edited file.
	ChangeModified

	// ChangeRenamed is a moved file. Renames are expanded into a
	// synthetic Deleted+Added pair before filtering; this kind never
	// appears in classifier output.
	ChangeRenamed

	// ChangeTypeChanged is a file whose type changed (e.g. file to symlink).
	ChangeTypeChanged

	// ChangeUnmerged is a file left in a merge-conflict state.
	ChangeUnmerged
)

// String returns the lowercase kind name.
func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeCopied:
		return "copied"
	case ChangeDeleted:
		return "deleted"
	case ChangeModified:
		return "modified"
	case ChangeRenamed:
		return "renamed"
	case ChangeTypeChanged:
		return "type_changed"
	case ChangeUnmerged:
		return "unmerged"
	default:
		return "unknown"
	}
}

// parseChangeKind maps a host status string to a ChangeKind.
func parseChangeKind(status string) ChangeKind {
	switch status {
	case "added":
		return ChangeAdded
	case "copied":
		return ChangeCopied
	case "removed":
		return ChangeDeleted
	case "modified":
		return ChangeModified
	case "renamed":
		return ChangeRenamed
	case "changed":
		return ChangeTypeChanged
	case "unmerged":
		return ChangeUnmerged
	default:
		return ChangeUnknown
	}
}

// ChangeRecord is one classified file change with a resolved absolute path.
type ChangeRecord struct {
	// Path is absolute and normalized for the host operating system.
	Path string

	// Kind is the change classification. Never ChangeRenamed: renames
	// arrive pre-expanded into Deleted+Added.
	Kind ChangeKind
}

// -----------------------------------------------------------------------------
// Schema File Matching
// -----------------------------------------------------------------------------

// schemaFilePatterns is the fixed set of globs identifying GraphQL schema
// files. Applied to the file's base name.
var schemaFilePatterns = []string{"*.graphql", "*.gql", "*.graphqls"}

// isSchemaFile reports whether the path matches any schema glob.
func isSchemaFile(p string) bool {
	base := path.Base(filepath.ToSlash(p))
	for _, pattern := range schemaFilePatterns {
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// normalizePath converts a wire path (always forward-slashed) into the
// host OS's separator convention and cleans it. filepath.Clean preserves
// the UNC prefix on Windows.
func normalizePath(p string) string {
	return filepath.Clean(filepath.FromSlash(p))
}

// -----------------------------------------------------------------------------
// Classifier
// -----------------------------------------------------------------------------

// ChangeClassifier collects and classifies a pull request's changed files.
type ChangeClassifier struct {
	pulls    PullRequestClient
	repoRoot string
	log      *logging.Logger
}

// NewChangeClassifier creates a classifier.
//
// # Inputs
//
//   - pulls: Host query boundary
//   - repoRoot: Absolute path of the repository checkout; host-reported
//     relative paths are resolved against it
//   - log: Structured logger
func NewChangeClassifier(pulls PullRequestClient, repoRoot string, log *logging.Logger) *ChangeClassifier {
	return &ChangeClassifier{pulls: pulls, repoRoot: repoRoot, log: log}
}

// CollectChangedFiles fetches the PR's full cumulative diff and returns
// classified records with absolute normalized paths. Renamed files are
// expanded into a Deleted record for the old path and an Added record for
// the new path. The result is collected fresh on every call, never cached.
func (c *ChangeClassifier) CollectChangedFiles(ctx context.Context, ref PullRequestRef) ([]ChangeRecord, error) {
	files, err := c.pulls.ListChangedFiles(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("collecting changed files: %w", err)
	}
	records := c.classify(files)
	c.log.Debug("classified changed files", "pr", ref.String(), "records", len(records))
	return records, nil
}

// classify turns host records into ChangeRecords with resolved paths.
func (c *ChangeClassifier) classify(files []ChangedFile) []ChangeRecord {
	records := make([]ChangeRecord, 0, len(files))
	for _, f := range files {
		kind := parseChangeKind(f.Status)
		if kind == ChangeRenamed {
			if f.PreviousFilename != "" {
				records = append(records, ChangeRecord{Path: c.resolve(f.PreviousFilename), Kind: ChangeDeleted})
			}
			records = append(records, ChangeRecord{Path: c.resolve(f.Filename), Kind: ChangeAdded})
			continue
		}
		records = append(records, ChangeRecord{Path: c.resolve(f.Filename), Kind: kind})
	}
	return records
}

// resolve anchors a host-reported repo-relative path under the checkout root.
func (c *ChangeClassifier) resolve(p string) string {
	normalized := normalizePath(p)
	if filepath.IsAbs(normalized) {
		return normalized
	}
	return filepath.Join(c.repoRoot, normalized)
}

// -----------------------------------------------------------------------------
// Filters
// -----------------------------------------------------------------------------

// FilterSchemaFiles returns the unique absolute paths of records matching
// the schema globs. When kinds is non-empty the filter is restricted to
// those change kinds; otherwise every bucket is included. Order follows
// first appearance in records.
func FilterSchemaFiles(records []ChangeRecord, kinds ...ChangeKind) []string {
	wanted := func(ChangeKind) bool { return true }
	if len(kinds) > 0 {
		set := make(map[ChangeKind]bool, len(kinds))
		for _, k := range kinds {
			set[k] = true
		}
		wanted = func(k ChangeKind) bool { return set[k] }
	}

	seen := make(map[string]bool)
	var out []string
	for _, rec := range records {
		if !wanted(rec.Kind) || !isSchemaFile(rec.Path) || seen[rec.Path] {
			continue
		}
		seen[rec.Path] = true
		out = append(out, rec.Path)
	}
	return out
}

// ManifestChanged restricts the filter to a single sentinel path: the
// manifest itself. It reports whether the manifest appears anywhere in
// the PR's cumulative changed-file records, across every change kind.
//
// An update event must refuse to reconcile when this returns true: the
// derived names computed from the old manifest are no longer trustworthy,
// and the safe path is a close-and-reopen (destroy-then-create) cycle.
func ManifestChanged(records []ChangeRecord, manifestPath string) bool {
	target := filepath.Clean(manifestPath)
	for _, rec := range records {
		if rec.Path == target {
			return true
		}
	}
	return false
}
