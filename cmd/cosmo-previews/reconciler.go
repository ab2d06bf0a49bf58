// Copyright (C) 2025 WunderGraph, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package main provides the Reconciler, the decision core of cosmo-previews.

The Reconciler maps one pull-request lifecycle event plus the PR's changed
schema files onto an ordered list of remote operations. No local ledger
exists: "state" is re-derived on every run from the PR's file-change
history and live queries against the platform, with deterministic naming
as the join key between local config and remote resources.

# Architecture

	┌────────────────────────────────────────────────────────────────┐
	│                          Reconciler                            │
	│                                                                │
	│  Plan(event) sequence:                                         │
	│    1. ChangeClassifier.CollectChangedFiles  // cumulative diff │
	│    2. ManifestChanged guard (update only)                      │
	│    3. RevertDetector.DetectReverted (update only)              │
	│    4. match schema files to configured subgraphs               │
	│    5. WgcClient.ListFeatureFlags (update only, self-healing)   │
	│    6. emit ordered PlannedOperations                           │
	│                                                                │
	│  Execute(plan): one WgcClient call per operation, sequential,  │
	│  never retried; each outcome recorded, failures do not stop    │
	│  the remaining independent operations.                         │
	└────────────────────────────────────────────────────────────────┘

# Operating Assumption

The hosting CI serializes events per pull request. Two simultaneous runs
for the same PR would race on flag membership with last-writer-wins
semantics; this system does not coordinate concurrent invocations.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wundergraph/cosmo-previews/cmd/cosmo-previews/config"
	"github.com/wundergraph/cosmo-previews/pkg/logging"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrManifestChanged is returned when an update event finds the
	// manifest itself in the PR's changed files. Prior derived names are
	// no longer trustworthy; the operator must close and reopen the PR
	// for a clean destroy-then-create cycle.
	ErrManifestChanged = errors.New("preview manifest changed during the pull request's lifetime; close and reopen the pull request")

	// ErrNoLifecycleEvent is returned when the invocation selects zero
	// lifecycle events.
	ErrNoLifecycleEvent = errors.New("no lifecycle event selected: exactly one of create, update, destroy is required")

	// ErrMultipleLifecycleEvents is returned when the invocation selects
	// more than one lifecycle event.
	ErrMultipleLifecycleEvents = errors.New("multiple lifecycle events selected: exactly one of create, update, destroy is required")
)

// =============================================================================
// Lifecycle Events
// =============================================================================

// LifecycleEvent is the pull-request event a run handles. Exactly one per
// invocation.
type LifecycleEvent int

const (
	// EventCreate handles PR opened/reopened.
	EventCreate LifecycleEvent = iota

	// EventUpdate handles PR synchronized (new push).
	EventUpdate

	// EventDestroy handles PR closed.
	EventDestroy
)

// String returns the lowercase event name.
func (e LifecycleEvent) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventUpdate:
		return "update"
	case EventDestroy:
		return "destroy"
	default:
		return "unknown"
	}
}

// SelectLifecycleEvent validates that exactly one event flag is set and
// returns the selected event. Fails fast before any remote call.
func SelectLifecycleEvent(create, update, destroy bool) (LifecycleEvent, error) {
	var (
		selected LifecycleEvent
		count    int
	)
	if create {
		selected = EventCreate
		count++
	}
	if update {
		selected = EventUpdate
		count++
	}
	if destroy {
		selected = EventDestroy
		count++
	}
	switch count {
	case 0:
		return 0, ErrNoLifecycleEvent
	case 1:
		return selected, nil
	default:
		return 0, ErrMultipleLifecycleEvents
	}
}

// =============================================================================
// Deterministic Naming
// =============================================================================

// prNumberPlaceholder is the routing-url token substituted with the
// concrete pull request number.
const prNumberPlaceholder = "{PR_NUMBER}"

// FeatureSubgraphName derives the remote feature subgraph name. This name
// is the join key between local config and all remote operations: it must
// be computed identically in the create, update, and destroy paths, or
// remote state is orphaned.
func FeatureSubgraphName(subgraph, namespace string, prNumber int) string {
	return fmt.Sprintf("%s-%s-%d", subgraph, namespace, prNumber)
}

// FeatureFlagName derives the remote feature flag name.
func FeatureFlagName(flag string, prNumber int) string {
	return fmt.Sprintf("%s-%d", flag, prNumber)
}

// expandRoutingURL substitutes the PR-number placeholder. A template
// without the placeholder passes through unchanged.
func expandRoutingURL(template string, prNumber int) string {
	return strings.ReplaceAll(template, prNumberPlaceholder, strconv.Itoa(prNumber))
}

// =============================================================================
// Plan Types
// =============================================================================

// Operation is the kind of one planned remote call.
type Operation int

const (
	// OpPublishSubgraph publishes (creates or overwrites) a feature subgraph.
	OpPublishSubgraph Operation = iota

	// OpDeleteSubgraph deletes a feature subgraph.
	OpDeleteSubgraph

	// OpCreateFlag creates a feature flag, enabled.
	OpCreateFlag

	// OpUpdateFlag replaces a feature flag's labels and members.
	OpUpdateFlag

	// OpDeleteFlag deletes a feature flag.
	OpDeleteFlag
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpPublishSubgraph:
		return "publish_subgraph"
	case OpDeleteSubgraph:
		return "delete_subgraph"
	case OpCreateFlag:
		return "create_flag"
	case OpUpdateFlag:
		return "update_flag"
	case OpDeleteFlag:
		return "delete_flag"
	default:
		return "unknown"
	}
}

// PlannedOperation is one remote call the engine decided to issue.
type PlannedOperation struct {
	// Op is the operation kind.
	Op Operation

	// Target is the derived remote resource name.
	Target string

	// BaseSubgraph, SchemaPath, RoutingURL are set for publish operations.
	BaseSubgraph string
	SchemaPath   string
	RoutingURL   string

	// Labels and FeatureSubgraphs are set for flag create/update.
	Labels           []string
	FeatureSubgraphs []string
}

// ReconciliationPlan is the run-scoped, ordered list of remote operations.
// It is never persisted; every run recomputes it from current inputs.
type ReconciliationPlan struct {
	// Event is the lifecycle event the plan serves.
	Event LifecycleEvent

	// Operations execute strictly in order.
	Operations []PlannedOperation

	// ToDeploy and ToDestroy are the serializable records exposed as run
	// outputs for downstream workflow steps.
	ToDeploy  []FeatureSubgraphRecord
	ToDestroy []FeatureSubgraphRecord
}

// =============================================================================
// Outcomes
// =============================================================================

// OutcomeStatus classifies one attempted remote operation.
type OutcomeStatus int

const (
	// OutcomeSuccess means the remote call succeeded.
	OutcomeSuccess OutcomeStatus = iota

	// OutcomeFailure means the remote call failed; the run continued.
	OutcomeFailure
)

// RemoteOutcome records one attempted remote operation. Outcomes are
// aggregated into the run report and never retried.
type RemoteOutcome struct {
	// Op is the attempted operation.
	Op Operation

	// TargetName is the derived remote resource name.
	TargetName string

	// Status is success or failure.
	Status OutcomeStatus

	// Detail carries the failure message when Status is OutcomeFailure.
	Detail string

	// CompositionErrors and DeploymentErrors carry structured error
	// detail from the platform when available.
	CompositionErrors []CompositionError
	DeploymentErrors  []DeploymentError
}

// Failed reports whether the outcome records a failure.
func (o RemoteOutcome) Failed() bool {
	return o.Status == OutcomeFailure
}

// =============================================================================
// Reconciler
// =============================================================================

// Reconciler computes and executes reconciliation plans.
type Reconciler struct {
	cfg          *config.PreviewConfig
	manifestPath string
	ref          PullRequestRef
	classifier   *ChangeClassifier
	reverts      *RevertDetector
	wgc          WgcClient
	log          *logging.Logger
}

// NewReconciler wires the decision core to its collaborators.
//
// # Inputs
//
//   - cfg: Validated, path-resolved manifest
//   - manifestPath: Absolute manifest location, used as the
//     immutability-guard sentinel
//   - ref: The pull request this run serves
//   - classifier: Cumulative diff collection and filtering
//   - reverts: Same-push revert detection
//   - wgc: Remote resource gateway
//   - log: Structured logger
func NewReconciler(
	cfg *config.PreviewConfig,
	manifestPath string,
	ref PullRequestRef,
	classifier *ChangeClassifier,
	reverts *RevertDetector,
	wgc WgcClient,
	log *logging.Logger,
) *Reconciler {
	return &Reconciler{
		cfg:          cfg,
		manifestPath: manifestPath,
		ref:          ref,
		classifier:   classifier,
		reverts:      reverts,
		wgc:          wgc,
		log:          log,
	}
}

// Plan computes the ordered remote operations for the given event.
// Remote list queries needed for decisions happen at plan time; Plan
// itself mutates nothing.
func (r *Reconciler) Plan(ctx context.Context, event LifecycleEvent) (*ReconciliationPlan, error) {
	records, err := r.classifier.CollectChangedFiles(ctx, r.ref)
	if err != nil {
		return nil, err
	}

	switch event {
	case EventCreate:
		return r.planCreate(records)
	case EventUpdate:
		return r.planUpdate(ctx, records)
	case EventDestroy:
		return r.planDestroy(records)
	default:
		return nil, fmt.Errorf("unsupported lifecycle event %d", event)
	}
}

// planCreate handles PR opened/reopened: publish a feature subgraph per
// matching changed schema file, then create every configured flag over
// the published set. Zero matches means no flag is created at all; an
// empty feature flag is not meaningful.
func (r *Reconciler) planCreate(records []ChangeRecord) (*ReconciliationPlan, error) {
	plan := &ReconciliationPlan{Event: EventCreate}

	matched := r.matchSubgraphs(FilterSchemaFiles(records))
	for _, sg := range matched {
		plan.Operations = append(plan.Operations, r.publishOp(sg))
		plan.ToDeploy = append(plan.ToDeploy, r.record(sg))
	}
	if len(matched) == 0 {
		r.log.Info("no changed schema files match configured subgraphs; skipping feature flags")
		return plan, nil
	}

	names := r.featureSubgraphNames(matched)
	for _, flag := range r.cfg.FeatureFlags {
		plan.Operations = append(plan.Operations, PlannedOperation{
			Op:               OpCreateFlag,
			Target:           FeatureFlagName(flag.Name, r.ref.Number),
			Labels:           flag.Labels,
			FeatureSubgraphs: names,
		})
	}
	return plan, nil
}

// planUpdate handles PR synchronized: guard manifest immutability, tear
// down reverted feature subgraphs, republish current matches, then
// create-or-update each configured flag against live remote state.
func (r *Reconciler) planUpdate(ctx context.Context, records []ChangeRecord) (*ReconciliationPlan, error) {
	if ManifestChanged(records, r.manifestPath) {
		return nil, ErrManifestChanged
	}

	plan := &ReconciliationPlan{Event: EventUpdate}
	cumulative := FilterSchemaFiles(records)

	reverted, err := r.reverts.DetectReverted(ctx, r.ref, cumulative)
	if err != nil {
		return nil, err
	}
	for _, p := range reverted {
		sg := r.cfg.SubgraphBySchemaPath(p)
		if sg == nil {
			continue
		}
		plan.Operations = append(plan.Operations, PlannedOperation{
			Op:     OpDeleteSubgraph,
			Target: FeatureSubgraphName(sg.Name, r.cfg.Namespace, r.ref.Number),
		})
		plan.ToDestroy = append(plan.ToDestroy, r.record(*sg))
	}

	matched := r.matchSubgraphs(cumulative)
	for _, sg := range matched {
		plan.Operations = append(plan.Operations, r.publishOp(sg))
		plan.ToDeploy = append(plan.ToDeploy, r.record(sg))
	}
	if len(matched) == 0 {
		r.log.Info("no cumulative schema changes match configured subgraphs; skipping feature flags")
		return plan, nil
	}

	// Self-healing: a flag can be missing remotely when the create run
	// failed or the first push had no matching changes. Fall back to
	// create semantics instead of failing the update.
	existing, err := r.wgc.ListFeatureFlags(ctx, r.cfg.Namespace)
	if err != nil {
		return nil, fmt.Errorf("listing feature flags in namespace %q: %w", r.cfg.Namespace, err)
	}
	present := make(map[string]bool, len(existing))
	for _, f := range existing {
		present[f.Name] = true
	}

	names := r.featureSubgraphNames(matched)
	for _, flag := range r.cfg.FeatureFlags {
		derived := FeatureFlagName(flag.Name, r.ref.Number)
		op := OpUpdateFlag
		if !present[derived] {
			op = OpCreateFlag
			r.log.Info("feature flag absent remotely; switching to create", "feature_flag", derived)
		}
		plan.Operations = append(plan.Operations, PlannedOperation{
			Op:               op,
			Target:           derived,
			Labels:           flag.Labels,
			FeatureSubgraphs: names,
		})
	}
	return plan, nil
}

// planDestroy handles PR closed: delete flags first (a flag referencing a
// vanished subgraph is a worse failure mode than a briefly dangling
// subgraph), then delete every feature subgraph this PR could have
// created across its lifetime, deduplicated by derived name. Delete is
// idempotent remotely, so targets that never existed are harmless.
//
// Unlike create and update, the zero-match skip does not apply here:
// derived flags are deleted even when no schema file in the cumulative
// diff matches, because a flag can survive from an earlier push whose
// matching files were all reverted later. The delete of an absent flag
// is benign.
func (r *Reconciler) planDestroy(records []ChangeRecord) (*ReconciliationPlan, error) {
	plan := &ReconciliationPlan{Event: EventDestroy}

	for _, flag := range r.cfg.FeatureFlags {
		plan.Operations = append(plan.Operations, PlannedOperation{
			Op:     OpDeleteFlag,
			Target: FeatureFlagName(flag.Name, r.ref.Number),
		})
	}

	seen := make(map[string]bool)
	for _, sg := range r.matchSubgraphs(FilterSchemaFiles(records)) {
		derived := FeatureSubgraphName(sg.Name, r.cfg.Namespace, r.ref.Number)
		if seen[derived] {
			continue
		}
		seen[derived] = true
		plan.Operations = append(plan.Operations, PlannedOperation{
			Op:     OpDeleteSubgraph,
			Target: derived,
		})
		plan.ToDestroy = append(plan.ToDestroy, r.record(sg))
	}
	return plan, nil
}

// Execute walks the plan in order, one remote call per operation, and
// records every outcome. A failed operation is recorded and does not stop
// the remaining operations; nothing is retried.
func (r *Reconciler) Execute(ctx context.Context, plan *ReconciliationPlan) ([]RemoteOutcome, error) {
	outcomes := make([]RemoteOutcome, 0, len(plan.Operations))
	for _, op := range plan.Operations {
		res, err := r.dispatch(ctx, op)
		outcomes = append(outcomes, buildOutcome(op, res, err))
	}
	return outcomes, nil
}

// dispatch issues the single remote call for one planned operation.
func (r *Reconciler) dispatch(ctx context.Context, op PlannedOperation) (*CommandResult, error) {
	switch op.Op {
	case OpPublishSubgraph:
		return r.wgc.PublishFeatureSubgraph(ctx, op.Target, op.BaseSubgraph, op.RoutingURL, op.SchemaPath, r.cfg.Namespace)
	case OpDeleteSubgraph:
		return r.wgc.DeleteSubgraph(ctx, op.Target, r.cfg.Namespace)
	case OpCreateFlag:
		return r.wgc.CreateFeatureFlag(ctx, op.Target, r.cfg.Namespace, op.Labels, op.FeatureSubgraphs)
	case OpUpdateFlag:
		return r.wgc.UpdateFeatureFlag(ctx, op.Target, r.cfg.Namespace, op.Labels, op.FeatureSubgraphs)
	case OpDeleteFlag:
		return r.wgc.DeleteFeatureFlag(ctx, op.Target, r.cfg.Namespace)
	default:
		return nil, fmt.Errorf("unsupported operation %d", op.Op)
	}
}

// buildOutcome folds a gateway response into a RemoteOutcome.
func buildOutcome(op PlannedOperation, res *CommandResult, err error) RemoteOutcome {
	outcome := RemoteOutcome{Op: op.Op, TargetName: op.Target, Status: OutcomeSuccess}
	if err != nil {
		outcome.Status = OutcomeFailure
		outcome.Detail = err.Error()
		return outcome
	}
	if res == nil || !res.Succeeded() {
		outcome.Status = OutcomeFailure
		if res != nil {
			outcome.Detail = res.Message
			outcome.CompositionErrors = res.CompositionErrors
			outcome.DeploymentErrors = res.DeploymentErrors
		}
	}
	return outcome
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// matchSubgraphs maps changed schema file paths onto configured
// subgraphs, preserving manifest order and matching each subgraph once.
func (r *Reconciler) matchSubgraphs(paths []string) []config.SubgraphConfig {
	changed := make(map[string]bool, len(paths))
	for _, p := range paths {
		changed[p] = true
	}
	var out []config.SubgraphConfig
	for _, sg := range r.cfg.Subgraphs {
		if changed[sg.SchemaPath] {
			out = append(out, sg)
		}
	}
	return out
}

// publishOp builds the publish operation for one matched subgraph.
func (r *Reconciler) publishOp(sg config.SubgraphConfig) PlannedOperation {
	return PlannedOperation{
		Op:           OpPublishSubgraph,
		Target:       FeatureSubgraphName(sg.Name, r.cfg.Namespace, r.ref.Number),
		BaseSubgraph: sg.Name,
		SchemaPath:   sg.SchemaPath,
		RoutingURL:   expandRoutingURL(sg.RoutingURL, r.ref.Number),
	}
}

// record builds the serializable output record for one matched subgraph.
func (r *Reconciler) record(sg config.SubgraphConfig) FeatureSubgraphRecord {
	return FeatureSubgraphRecord{
		FeatureSubgraphName: FeatureSubgraphName(sg.Name, r.cfg.Namespace, r.ref.Number),
		SchemaPath:          sg.SchemaPath,
		RoutingURL:          expandRoutingURL(sg.RoutingURL, r.ref.Number),
		BaseSubgraphName:    sg.Name,
	}
}

// featureSubgraphNames derives the remote names for matched subgraphs.
func (r *Reconciler) featureSubgraphNames(subgraphs []config.SubgraphConfig) []string {
	names := make([]string, 0, len(subgraphs))
	for _, sg := range subgraphs {
		names = append(names, FeatureSubgraphName(sg.Name, r.cfg.Namespace, r.ref.Number))
	}
	return names
}
