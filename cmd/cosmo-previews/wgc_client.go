// Copyright (C) 2025 WunderGraph, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package main provides WgcClient, the typed boundary to the Cosmo platform.

All durable state of the preview system lives behind this boundary. The
production implementation shells out to the wgc CLI, one invocation per
logical operation, strictly sequentially. The reconciliation core only
ever sees the typed interface, so it is testable without process
execution.

# Credential Handling

The Cosmo API key is injected into each child process's environment for
that single call. It is never exported into this process's own
environment, so nothing else that shells out can observe it.

# Output Parsing

Mutating operations request --json output and parse it into a
CommandResult with explicit composition and deployment error lists.
Absent or malformed output degrades to a generic failure result rather
than an error, so one unparseable response cannot abort the run.
*/
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/wundergraph/cosmo-previews/pkg/logging"
)

// -----------------------------------------------------------------------------
// Result Types
// -----------------------------------------------------------------------------

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// CompositionError describes a failed composition of one federated graph.
type CompositionError struct {
	// FeatureFlag is the flag whose composition failed, when applicable.
	FeatureFlag string `json:"featureFlag"`

	// FederatedGraphName is the graph that failed to compose.
	FederatedGraphName string `json:"federatedGraphName"`

	// Message is the composition error detail.
	Message string `json:"message"`
}

// DeploymentError describes a failed deployment of a composed graph.
type DeploymentError struct {
	// FederatedGraphName is the graph whose deployment failed.
	FederatedGraphName string `json:"federatedGraphName"`

	// Message is the deployment error detail.
	Message string `json:"message"`
}

// CommandResult is the structured outcome of one wgc operation.
//
// The wgc CLI probes output shape dynamically; here the shape is a tagged
// struct with explicit error categories so callers match on fields, not
// on key presence.
type CommandResult struct {
	// Status is "success" or "failure".
	Status string `json:"status"`

	// Message is a human-readable summary.
	Message string `json:"message"`

	// CompositionErrors lists per-federated-graph composition failures.
	CompositionErrors []CompositionError `json:"compositionErrors"`

	// DeploymentErrors lists per-federated-graph deployment failures.
	DeploymentErrors []DeploymentError `json:"deploymentErrors"`
}

// Succeeded reports whether the operation completed successfully.
func (r *CommandResult) Succeeded() bool {
	return r != nil && r.Status == statusSuccess
}

// FeatureFlagSummary is one entry of a feature-flag list response.
type FeatureFlagSummary struct {
	// Name is the deployed flag name (already PR-suffixed).
	Name string `json:"name"`

	// Enabled reports whether the flag is currently active.
	Enabled bool `json:"enabled"`
}

// featureFlagListResult is the wire shape of `wgc feature-flag list --json`.
type featureFlagListResult struct {
	Flags []FeatureFlagSummary `json:"flags"`
}

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// WgcClient is the typed client for the Cosmo resource-management service.
//
// Every method maps to exactly one CLI invocation. Methods return a
// CommandResult for per-item outcome recording; the error return is
// reserved for invocation-level failures (binary missing, context
// cancelled), not for remote rejections.
type WgcClient interface {
	// WhoAmI validates the configured credential against the platform.
	WhoAmI(ctx context.Context) error

	// PublishFeatureSubgraph creates or overwrites the feature subgraph
	// with the given derived name. Publish is idempotent by name: a
	// republish of an existing feature subgraph replaces its schema.
	PublishFeatureSubgraph(ctx context.Context, name, baseSubgraph, routingURL, schemaPath, namespace string) (*CommandResult, error)

	// DeleteSubgraph removes the named (feature) subgraph. Deleting an
	// absent subgraph is benign and reported as success.
	DeleteSubgraph(ctx context.Context, name, namespace string) (*CommandResult, error)

	// CreateFeatureFlag creates the named flag with the given labels and
	// feature subgraph members, enabled immediately.
	CreateFeatureFlag(ctx context.Context, name, namespace string, labels, featureSubgraphs []string) (*CommandResult, error)

	// UpdateFeatureFlag replaces the named flag's labels and members.
	UpdateFeatureFlag(ctx context.Context, name, namespace string, labels, featureSubgraphs []string) (*CommandResult, error)

	// DeleteFeatureFlag removes the named flag. Deleting an absent flag
	// is benign and reported as success.
	DeleteFeatureFlag(ctx context.Context, name, namespace string) (*CommandResult, error)

	// ListFeatureFlags returns the flags currently present in the
	// namespace. This is the source of truth for existence checks.
	ListFeatureFlags(ctx context.Context, namespace string) ([]FeatureFlagSummary, error)
}

// -----------------------------------------------------------------------------
// CLI Implementation
// -----------------------------------------------------------------------------

// defaultWgcCommand is the wgc binary name resolved via PATH.
const defaultWgcCommand = "wgc"

// cosmoAPIKeyEnv is the variable the wgc CLI reads its credential from.
const cosmoAPIKeyEnv = "COSMO_API_KEY"

// CLIWgcClient implements WgcClient by shelling out to the wgc CLI.
type CLIWgcClient struct {
	proc    ProcessManager
	command string
	apiKey  string
	log     *logging.Logger
}

// NewCLIWgcClient creates a WgcClient over the given ProcessManager.
//
// # Inputs
//
//   - proc: Process execution seam
//   - command: wgc binary; empty selects the default "wgc"
//   - apiKey: Cosmo API credential, passed per call, never exported
//   - log: Structured logger
func NewCLIWgcClient(proc ProcessManager, command, apiKey string, log *logging.Logger) *CLIWgcClient {
	if command == "" {
		command = defaultWgcCommand
	}
	return &CLIWgcClient{proc: proc, command: command, apiKey: apiKey, log: log}
}

// WhoAmI validates the configured credential against the platform.
func (c *CLIWgcClient) WhoAmI(ctx context.Context) error {
	_, stderr, err := c.run(ctx, "auth", "whoami")
	if err != nil {
		return NewCommandError(c.command+" auth whoami", ExitCode(err), string(stderr), err)
	}
	return nil
}

// PublishFeatureSubgraph creates or overwrites a feature subgraph.
func (c *CLIWgcClient) PublishFeatureSubgraph(ctx context.Context, name, baseSubgraph, routingURL, schemaPath, namespace string) (*CommandResult, error) {
	c.log.Info("publishing feature subgraph",
		"feature_subgraph", name,
		"base_subgraph", baseSubgraph,
		"namespace", namespace,
	)
	stdout, stderr, err := c.run(ctx,
		"feature-subgraph", "publish", name,
		"--subgraph", baseSubgraph,
		"--routing-url", routingURL,
		"--schema", schemaPath,
		"-n", namespace,
		"--json",
	)
	return c.mutationResult("feature-subgraph publish", stdout, stderr, err)
}

// DeleteSubgraph removes a (feature) subgraph, tolerating prior absence.
func (c *CLIWgcClient) DeleteSubgraph(ctx context.Context, name, namespace string) (*CommandResult, error) {
	c.log.Info("deleting feature subgraph", "feature_subgraph", name, "namespace", namespace)
	_, stderr, err := c.run(ctx, "subgraph", "delete", name, "-n", namespace, "-f")
	return c.deleteResult("subgraph delete", stderr, err)
}

// CreateFeatureFlag creates a flag, enabled immediately.
func (c *CLIWgcClient) CreateFeatureFlag(ctx context.Context, name, namespace string, labels, featureSubgraphs []string) (*CommandResult, error) {
	c.log.Info("creating feature flag", "feature_flag", name, "namespace", namespace)
	args := flagArgs("create", name, namespace, labels, featureSubgraphs)
	args = append(args, "--enabled")
	stdout, stderr, err := c.run(ctx, args...)
	return c.mutationResult("feature-flag create", stdout, stderr, err)
}

// UpdateFeatureFlag replaces a flag's labels and members.
func (c *CLIWgcClient) UpdateFeatureFlag(ctx context.Context, name, namespace string, labels, featureSubgraphs []string) (*CommandResult, error) {
	c.log.Info("updating feature flag", "feature_flag", name, "namespace", namespace)
	stdout, stderr, err := c.run(ctx, flagArgs("update", name, namespace, labels, featureSubgraphs)...)
	return c.mutationResult("feature-flag update", stdout, stderr, err)
}

// DeleteFeatureFlag removes a flag, tolerating prior absence.
func (c *CLIWgcClient) DeleteFeatureFlag(ctx context.Context, name, namespace string) (*CommandResult, error) {
	c.log.Info("deleting feature flag", "feature_flag", name, "namespace", namespace)
	_, stderr, err := c.run(ctx, "feature-flag", "delete", name, "-n", namespace, "-f")
	return c.deleteResult("feature-flag delete", stderr, err)
}

// ListFeatureFlags returns the flags currently present in the namespace.
func (c *CLIWgcClient) ListFeatureFlags(ctx context.Context, namespace string) ([]FeatureFlagSummary, error) {
	stdout, stderr, err := c.run(ctx, "feature-flag", "list", "-n", namespace, "--json")
	if err != nil {
		return nil, NewCommandError(c.command+" feature-flag list", ExitCode(err), string(stderr), err)
	}
	var list featureFlagListResult
	if jsonErr := json.Unmarshal(jsonPayload(stdout), &list); jsonErr != nil {
		return nil, fmt.Errorf("parsing feature-flag list output: %w", jsonErr)
	}
	return list.Flags, nil
}

// run invokes the wgc CLI once with the credential in the child env.
func (c *CLIWgcClient) run(ctx context.Context, args ...string) ([]byte, []byte, error) {
	env := []string{cosmoAPIKeyEnv + "=" + c.apiKey}
	return c.proc.RunWithEnv(ctx, c.command, env, args...)
}

// mutationResult turns raw CLI output into a CommandResult.
//
// A non-zero exit still yields a structured result when the CLI printed
// one; otherwise the stderr tail becomes a generic failure. The error
// return stays nil so the caller records the outcome and moves on.
func (c *CLIWgcClient) mutationResult(op string, stdout, stderr []byte, err error) (*CommandResult, error) {
	if res := parseCommandResult(stdout); res != nil {
		if err != nil && res.Status == "" {
			res.Status = statusFailure
		}
		return res, nil
	}
	if err != nil {
		return &CommandResult{
			Status:  statusFailure,
			Message: failureMessage(op, stderr, err),
		}, nil
	}
	// Exit 0 with no parseable payload: treat as success without detail.
	return &CommandResult{Status: statusSuccess}, nil
}

// deleteResult maps delete outcomes, treating absent targets as success.
func (c *CLIWgcClient) deleteResult(op string, stderr []byte, err error) (*CommandResult, error) {
	if err == nil {
		return &CommandResult{Status: statusSuccess}, nil
	}
	if isNotFound(stderr) {
		c.log.Debug("delete target already absent", "operation", op)
		return &CommandResult{Status: statusSuccess, Message: "already absent"}, nil
	}
	return &CommandResult{
		Status:  statusFailure,
		Message: failureMessage(op, stderr, err),
	}, nil
}

// isNotFound reports whether stderr describes an already-absent target.
func isNotFound(stderr []byte) bool {
	s := strings.ToLower(string(stderr))
	return strings.Contains(s, "not found") || strings.Contains(s, "does not exist")
}

func failureMessage(op string, stderr []byte, err error) string {
	detail := strings.TrimSpace(string(stderr))
	if detail == "" {
		detail = err.Error()
	}
	return fmt.Sprintf("%s failed: %s", op, detail)
}

// flagArgs builds the shared argument list for flag create/update.
func flagArgs(verb, name, namespace string, labels, featureSubgraphs []string) []string {
	args := []string{"feature-flag", verb, name, "-n", namespace}
	if len(labels) > 0 {
		args = append(args, "--label")
		args = append(args, labels...)
	}
	args = append(args, "--feature-subgraphs")
	args = append(args, featureSubgraphs...)
	args = append(args, "--json")
	return args
}

// parseCommandResult extracts the JSON result object from CLI output.
//
// The CLI may print banner lines before the payload, so parsing starts at
// the first '{'. Returns nil when no parseable object is present.
func parseCommandResult(stdout []byte) *CommandResult {
	start := bytes.IndexByte(stdout, '{')
	if start < 0 {
		return nil
	}
	var res CommandResult
	if err := json.Unmarshal(jsonPayload(stdout), &res); err != nil {
		return nil
	}
	return &res
}

// jsonPayload trims any banner noise preceding the first JSON brace.
func jsonPayload(out []byte) []byte {
	if start := bytes.IndexByte(out, '{'); start >= 0 {
		return out[start:]
	}
	return out
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockWgcClient is a test double for WgcClient.
//
// Configure the mock by setting function fields before use; unset fields
// return success. All invocations are recorded in Calls.
type MockWgcClient struct {
	WhoAmIFunc                 func(ctx context.Context) error
	PublishFeatureSubgraphFunc func(ctx context.Context, name, baseSubgraph, routingURL, schemaPath, namespace string) (*CommandResult, error)
	DeleteSubgraphFunc         func(ctx context.Context, name, namespace string) (*CommandResult, error)
	CreateFeatureFlagFunc      func(ctx context.Context, name, namespace string, labels, featureSubgraphs []string) (*CommandResult, error)
	UpdateFeatureFlagFunc      func(ctx context.Context, name, namespace string, labels, featureSubgraphs []string) (*CommandResult, error)
	DeleteFeatureFlagFunc      func(ctx context.Context, name, namespace string) (*CommandResult, error)
	ListFeatureFlagsFunc       func(ctx context.Context, namespace string) ([]FeatureFlagSummary, error)

	// Calls records all invocations in order.
	Calls []WgcCall

	mu sync.Mutex
}

// WgcCall records a single WgcClient invocation.
type WgcCall struct {
	Method           string
	Target           string
	Namespace        string
	BaseSubgraph     string
	RoutingURL       string
	SchemaPath       string
	Labels           []string
	FeatureSubgraphs []string
}

func (m *MockWgcClient) record(call WgcCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

// GetCalls returns a copy of all recorded calls.
func (m *MockWgcClient) GetCalls() []WgcCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]WgcCall, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// CallsTo returns the recorded calls for one method.
func (m *MockWgcClient) CallsTo(method string) []WgcCall {
	var out []WgcCall
	for _, call := range m.GetCalls() {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

// WhoAmI delegates to WhoAmIFunc (default: success).
func (m *MockWgcClient) WhoAmI(ctx context.Context) error {
	m.record(WgcCall{Method: "WhoAmI"})
	if m.WhoAmIFunc == nil {
		return nil
	}
	return m.WhoAmIFunc(ctx)
}

// PublishFeatureSubgraph delegates to PublishFeatureSubgraphFunc (default: success).
func (m *MockWgcClient) PublishFeatureSubgraph(ctx context.Context, name, baseSubgraph, routingURL, schemaPath, namespace string) (*CommandResult, error) {
	m.record(WgcCall{
		Method:       "PublishFeatureSubgraph",
		Target:       name,
		Namespace:    namespace,
		BaseSubgraph: baseSubgraph,
		RoutingURL:   routingURL,
		SchemaPath:   schemaPath,
	})
	if m.PublishFeatureSubgraphFunc == nil {
		return &CommandResult{Status: statusSuccess}, nil
	}
	return m.PublishFeatureSubgraphFunc(ctx, name, baseSubgraph, routingURL, schemaPath, namespace)
}

// DeleteSubgraph delegates to DeleteSubgraphFunc (default: success).
func (m *MockWgcClient) DeleteSubgraph(ctx context.Context, name, namespace string) (*CommandResult, error) {
	m.record(WgcCall{Method: "DeleteSubgraph", Target: name, Namespace: namespace})
	if m.DeleteSubgraphFunc == nil {
		return &CommandResult{Status: statusSuccess}, nil
	}
	return m.DeleteSubgraphFunc(ctx, name, namespace)
}

// CreateFeatureFlag delegates to CreateFeatureFlagFunc (default: success).
func (m *MockWgcClient) CreateFeatureFlag(ctx context.Context, name, namespace string, labels, featureSubgraphs []string) (*CommandResult, error) {
	m.record(WgcCall{
		Method:           "CreateFeatureFlag",
		Target:           name,
		Namespace:        namespace,
		Labels:           labels,
		FeatureSubgraphs: featureSubgraphs,
	})
	if m.CreateFeatureFlagFunc == nil {
		return &CommandResult{Status: statusSuccess}, nil
	}
	return m.CreateFeatureFlagFunc(ctx, name, namespace, labels, featureSubgraphs)
}

// UpdateFeatureFlag delegates to UpdateFeatureFlagFunc (default: success).
func (m *MockWgcClient) UpdateFeatureFlag(ctx context.Context, name, namespace string, labels, featureSubgraphs []string) (*CommandResult, error) {
	m.record(WgcCall{
		Method:           "UpdateFeatureFlag",
		Target:           name,
		Namespace:        namespace,
		Labels:           labels,
		FeatureSubgraphs: featureSubgraphs,
	})
	if m.UpdateFeatureFlagFunc == nil {
		return &CommandResult{Status: statusSuccess}, nil
	}
	return m.UpdateFeatureFlagFunc(ctx, name, namespace, labels, featureSubgraphs)
}

// DeleteFeatureFlag delegates to DeleteFeatureFlagFunc (default: success).
func (m *MockWgcClient) DeleteFeatureFlag(ctx context.Context, name, namespace string) (*CommandResult, error) {
	m.record(WgcCall{Method: "DeleteFeatureFlag", Target: name, Namespace: namespace})
	if m.DeleteFeatureFlagFunc == nil {
		return &CommandResult{Status: statusSuccess}, nil
	}
	return m.DeleteFeatureFlagFunc(ctx, name, namespace)
}

// ListFeatureFlags delegates to ListFeatureFlagsFunc (default: empty list).
func (m *MockWgcClient) ListFeatureFlags(ctx context.Context, namespace string) ([]FeatureFlagSummary, error) {
	m.record(WgcCall{Method: "ListFeatureFlags", Namespace: namespace})
	if m.ListFeatureFlagsFunc == nil {
		return nil, nil
	}
	return m.ListFeatureFlagsFunc(ctx, namespace)
}

// Compile-time interface compliance check.
var (
	_ WgcClient = (*CLIWgcClient)(nil)
	_ WgcClient = (*MockWgcClient)(nil)
)
