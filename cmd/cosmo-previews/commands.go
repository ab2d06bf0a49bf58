// Copyright (C) 2025 WunderGraph, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wundergraph/cosmo-previews/cmd/cosmo-previews/config"
	"github.com/wundergraph/cosmo-previews/pkg/logging"
)

var (
	// ErrMissingAPIKey is returned when no Cosmo API credential is available.
	ErrMissingAPIKey = errors.New("missing Cosmo API key: set --cosmo-api-key or COSMO_API_KEY")

	// ErrMissingGitHubToken is returned when no host access credential is available.
	ErrMissingGitHubToken = errors.New("missing GitHub token: set --github-token or GITHUB_TOKEN")

	// ErrInvalidRepository is returned when the repository is not "owner/repo".
	ErrInvalidRepository = errors.New("repository must be in owner/repo form")

	// ErrInvalidPRNumber is returned for a missing or non-positive PR number.
	ErrInvalidPRNumber = errors.New("a positive --pr-number is required")
)

// --- Global Command Variables ---
var (
	flagCreate  bool
	flagUpdate  bool
	flagDestroy bool

	configPath  string
	repository  string
	prNumber    int
	repoRoot    string
	wgcCommand  string
	githubToken string
	cosmoAPIKey string
	jsonLogs    bool
	verbose     bool

	rootCmd = &cobra.Command{
		Use:   "cosmo-previews",
		Short: "Manage ephemeral Cosmo preview environments for pull requests",
		Long: `cosmo-previews reconciles per-PR feature subgraphs and feature flags
against the Cosmo platform. It is invoked once per pull request lifecycle
event (create, update, destroy) by the hosting CI, recomputes all state
from the PR's file diff and live platform queries, and issues the remote
calls needed to converge.`,
		SilenceUsage: true,
		RunE:         runPreviews,
	}
)

func init() {
	rootCmd.Flags().BoolVar(&flagCreate, "create", false, "Handle a PR opened/reopened event")
	rootCmd.Flags().BoolVar(&flagUpdate, "update", false, "Handle a PR synchronize event")
	rootCmd.Flags().BoolVar(&flagDestroy, "destroy", false, "Handle a PR closed event")

	rootCmd.Flags().StringVar(&configPath, "config-path", config.DefaultPath, "Path to the preview manifest; relative paths resolve against the repo root")
	rootCmd.Flags().StringVar(&repository, "repository", os.Getenv("GITHUB_REPOSITORY"), "Repository in owner/repo form")
	rootCmd.Flags().IntVar(&prNumber, "pr-number", 0, "Pull request number")
	rootCmd.Flags().StringVar(&repoRoot, "repo-root", defaultRepoRoot(), "Repository checkout root")
	rootCmd.Flags().StringVar(&wgcCommand, "wgc-command", "", "wgc binary to invoke (default \"wgc\")")
	rootCmd.Flags().StringVar(&githubToken, "github-token", os.Getenv("GITHUB_TOKEN"), "GitHub access token")
	rootCmd.Flags().StringVar(&cosmoAPIKey, "cosmo-api-key", os.Getenv("COSMO_API_KEY"), "Cosmo API key")
	rootCmd.Flags().BoolVar(&jsonLogs, "json-logs", false, "Emit logs as JSON")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
}

func defaultRepoRoot() string {
	if ws := os.Getenv("GITHUB_WORKSPACE"); ws != "" {
		return ws
	}
	return "."
}

// resolveManifestPath anchors a relative manifest path at the repository
// checkout root. PR-reported file paths resolve against the same root, so
// the manifest-changed sentinel compares identically anchored paths no
// matter what the invocation's working directory is.
func resolveManifestPath(repoRoot, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(repoRoot, path)
}

// parseRepository splits "owner/repo" into its parts.
func parseRepository(s string) (owner, repo string, err error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRepository, s)
	}
	return parts[0], parts[1], nil
}

// runPreviews is the single entrypoint for all three lifecycle events.
//
// Precondition failures (bad invocation, missing credential, bad
// manifest, manifest changed mid-PR) abort the run with an error before
// any further remote mutation. Per-item remote failures are recorded,
// reported, and do not fail the run: the run has completed, its report
// carries the failures.
func runPreviews(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}
	log := logging.New(logging.Config{
		Level:   level,
		JSON:    jsonLogs,
		Service: "cosmo-previews",
	})

	event, err := SelectLifecycleEvent(flagCreate, flagUpdate, flagDestroy)
	if err != nil {
		return err
	}
	if cosmoAPIKey == "" {
		return ErrMissingAPIKey
	}
	if githubToken == "" {
		return ErrMissingGitHubToken
	}
	if prNumber <= 0 {
		return ErrInvalidPRNumber
	}
	owner, repo, err := parseRepository(repository)
	if err != nil {
		return err
	}
	ref := PullRequestRef{Owner: owner, Repo: repo, Number: prNumber}

	rootAbs, err := filepath.Abs(repoRoot)
	if err != nil {
		return fmt.Errorf("resolving repository root: %w", err)
	}
	manifestAbs := resolveManifestPath(rootAbs, configPath)

	cfg, err := config.Load(manifestAbs)
	if err != nil {
		return err
	}

	log = log.With("run_id", uuid.NewString(), "pr", ref.String(), "event", event.String())
	log.Info("starting reconciliation",
		"namespace", cfg.Namespace,
		"subgraphs", len(cfg.Subgraphs),
		"feature_flags", len(cfg.FeatureFlags),
	)

	ctx := cmd.Context()
	pulls := NewGitHubClient(githubToken, log)
	wgc := NewCLIWgcClient(NewDefaultProcessManager(), wgcCommand, cosmoAPIKey, log)
	classifier := NewChangeClassifier(pulls, rootAbs, log)
	reverts := NewRevertDetector(pulls, rootAbs, log)
	reconciler := NewReconciler(cfg, manifestAbs, ref, classifier, reverts, wgc, log)

	if err := wgc.WhoAmI(ctx); err != nil {
		if stderr := ExtractStderr(err); stderr != "" {
			log.Error("cosmo credential check failed", "stderr", stderr)
		}
		return fmt.Errorf("cosmo credential check failed: %w", err)
	}

	plan, err := reconciler.Plan(ctx, event)
	if err != nil {
		return err
	}
	log.Info("computed reconciliation plan", "operations", len(plan.Operations))

	outcomes, err := reconciler.Execute(ctx, plan)
	if err != nil {
		return err
	}

	report := BuildReport(event, outcomes)
	if event != EventDestroy {
		if err := pulls.CreateComment(ctx, ref, report.MarkdownComment()); err != nil {
			// The reconciliation itself is done; a lost comment is not
			// worth failing the run over.
			log.Warn("failed to post run report comment", "error", err.Error())
		}
	}

	if err := WriteActionOutputs(os.Getenv(githubOutputEnv), plan.ToDeploy, plan.ToDestroy); err != nil {
		log.Warn("failed to write workflow outputs", "error", err.Error())
	}

	fmt.Print(report.TerminalSummary())

	if report.HasFailures() {
		log.Warn("run completed with per-item failures", "failed_flags", len(report.FailedFlags))
	} else {
		log.Info("run completed")
	}
	return nil
}
