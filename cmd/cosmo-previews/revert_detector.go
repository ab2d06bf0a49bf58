// Copyright (C) 2025 WunderGraph, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"

	"github.com/wundergraph/cosmo-previews/pkg/logging"
)

// RevertDetector finds schema files that a push reverted back to their
// pre-PR content.
//
// # Description
//
// On a synchronize event the cumulative PR diff no longer contains a file
// that was changed earlier and then reverted within the same push. An
// earlier run has likely already published a feature subgraph for that
// file, and no later commit will cause that publish to be revisited, so
// the orphaned remote resource must be torn down now.
//
// Detection compares the single most recent commit's modified schema
// files against the cumulative schema filter result for the same run:
// any file modified in the head commit that is absent from the cumulative
// set nets out to "no change" PR-wide and is reported as reverted.
//
// Known gap: the window is exactly one commit. A revert spread across
// several trailing commits (modify in N-2, partial revert in N-1, full
// revert in N) is not detected. Widening the window is an intentional
// non-change until the narrower behavior proves insufficient.
type RevertDetector struct {
	pulls    PullRequestClient
	repoRoot string
	log      *logging.Logger
}

// NewRevertDetector creates a detector anchored at the checkout root.
func NewRevertDetector(pulls PullRequestClient, repoRoot string, log *logging.Logger) *RevertDetector {
	return &RevertDetector{pulls: pulls, repoRoot: repoRoot, log: log}
}

// DetectReverted returns the absolute paths of schema files reverted by
// the latest push.
//
// # Inputs
//
//   - ctx: Context for the host queries
//   - ref: The pull request
//   - cumulativeSchemaFiles: The schema filter result over the PR's full
//     cumulative diff, computed by the classifier for this same run
//
// # Outputs
//
//   - []string: Reverted paths, in head-commit file order
//   - error: Non-nil only on host query failure; a zero-commit PR yields
//     an empty result, not an error
func (d *RevertDetector) DetectReverted(ctx context.Context, ref PullRequestRef, cumulativeSchemaFiles []string) ([]string, error) {
	commits, err := d.pulls.ListCommits(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("listing commits: %w", err)
	}
	if len(commits) == 0 {
		return nil, nil
	}

	head := commits[len(commits)-1]
	detail, err := d.pulls.GetCommit(ctx, ref, head.SHA)
	if err != nil {
		return nil, fmt.Errorf("fetching head commit: %w", err)
	}

	cumulative := make(map[string]bool, len(cumulativeSchemaFiles))
	for _, p := range cumulativeSchemaFiles {
		cumulative[p] = true
	}

	classifier := &ChangeClassifier{pulls: d.pulls, repoRoot: d.repoRoot, log: d.log}
	headRecords := classifier.classify(detail.Files)
	headModified := FilterSchemaFiles(headRecords, ChangeModified)

	var reverted []string
	for _, p := range headModified {
		if !cumulative[p] {
			reverted = append(reverted, p)
		}
	}

	if len(reverted) > 0 {
		d.log.Info("detected reverted schema files",
			"pr", ref.String(),
			"head_sha", head.SHA,
			"count", len(reverted),
		)
	}
	return reverted, nil
}
