// Copyright (C) 2025 WunderGraph, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// FlagFailure is one failed feature-flag operation, reduced to what the
// operator needs: which flag, which federated graph, and why.
type FlagFailure struct {
	FlagName           string
	FederatedGraphName string
	Message            string
}

// genericFailureDetail is used when the platform returned no structured
// error detail to point at.
const genericFailureDetail = "composition failed; see the Cosmo Studio composition dashboard for details"

// RunReport aggregates a run's remote outcomes for rendering.
type RunReport struct {
	// Event is the lifecycle event the run handled.
	Event LifecycleEvent

	// DeployedFlags lists derived names of successfully deployed flags.
	DeployedFlags []string

	// FailedFlags lists flag operations that failed, with detail.
	FailedFlags []FlagFailure

	// FeatureSubgraphs lists every derived feature subgraph name the run
	// published.
	FeatureSubgraphs []string
}

// HasFailures reports whether any flag operation failed.
func (r *RunReport) HasFailures() bool {
	return len(r.FailedFlags) > 0
}

// Attempted reports whether any flag operation was attempted at all.
func (r *RunReport) Attempted() bool {
	return len(r.DeployedFlags) > 0 || len(r.FailedFlags) > 0
}

// BuildReport folds remote outcomes into a RunReport.
//
// Flag failures prefer structured composition error detail, then
// deployment error detail, then the outcome message, then a generic
// pointer to the composition dashboard.
func BuildReport(event LifecycleEvent, outcomes []RemoteOutcome) *RunReport {
	report := &RunReport{Event: event}
	for _, o := range outcomes {
		switch o.Op {
		case OpPublishSubgraph:
			if !o.Failed() {
				report.FeatureSubgraphs = append(report.FeatureSubgraphs, o.TargetName)
			}
		case OpCreateFlag, OpUpdateFlag:
			if o.Failed() {
				report.FailedFlags = append(report.FailedFlags, flagFailure(o))
			} else {
				report.DeployedFlags = append(report.DeployedFlags, o.TargetName)
			}
		}
	}
	return report
}

// flagFailure extracts the most specific detail available from an outcome.
func flagFailure(o RemoteOutcome) FlagFailure {
	failure := FlagFailure{FlagName: o.TargetName}
	switch {
	case len(o.CompositionErrors) > 0:
		failure.FederatedGraphName = o.CompositionErrors[0].FederatedGraphName
		failure.Message = o.CompositionErrors[0].Message
	case len(o.DeploymentErrors) > 0:
		failure.FederatedGraphName = o.DeploymentErrors[0].FederatedGraphName
		failure.Message = o.DeploymentErrors[0].Message
	case o.Detail != "":
		failure.Message = o.Detail
	default:
		failure.Message = genericFailureDetail
	}
	return failure
}

// -----------------------------------------------------------------------------
// Markdown Comment
// -----------------------------------------------------------------------------

// MarkdownComment renders the report as the single PR comment body:
// a deployed table and a failed table. A pure function of the report;
// handles all-success, all-failure, mixed, and zero-attempted runs.
func (r *RunReport) MarkdownComment() string {
	var b strings.Builder
	b.WriteString("## Cosmo Previews\n\n")

	if !r.Attempted() {
		b.WriteString("No changed schema files matched a configured subgraph, so no feature flags were deployed.\n")
		return b.String()
	}

	if len(r.DeployedFlags) > 0 {
		b.WriteString("### Deployed feature flags\n\n")
		b.WriteString("| Feature flag | Feature subgraphs |\n")
		b.WriteString("| --- | --- |\n")
		members := strings.Join(r.FeatureSubgraphs, ", ")
		for _, flag := range r.DeployedFlags {
			fmt.Fprintf(&b, "| `%s` | %s |\n", flag, members)
		}
		b.WriteString("\n")
	}

	if len(r.FailedFlags) > 0 {
		b.WriteString("### Failed feature flags\n\n")
		b.WriteString("| Feature flag | Federated graph | Error |\n")
		b.WriteString("| --- | --- | --- |\n")
		for _, f := range r.FailedFlags {
			graph := f.FederatedGraphName
			if graph == "" {
				graph = "-"
			}
			fmt.Fprintf(&b, "| `%s` | %s | %s |\n", f.FlagName, graph, escapePipes(f.Message))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// escapePipes keeps error text from breaking the markdown table.
func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

// -----------------------------------------------------------------------------
// Terminal Summary
// -----------------------------------------------------------------------------

var (
	summaryTitleStyle   = lipgloss.NewStyle().Bold(true)
	summarySuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	summaryFailureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// TerminalSummary renders a short styled summary for the workflow log.
// Styling applies only when stdout is a terminal; CI log collectors get
// plain text.
func (r *RunReport) TerminalSummary() string {
	styled := isatty.IsTerminal(os.Stdout.Fd())
	render := func(style lipgloss.Style, s string) string {
		if !styled {
			return s
		}
		return style.Render(s)
	}

	var b strings.Builder
	b.WriteString(render(summaryTitleStyle, fmt.Sprintf("cosmo-previews %s", r.Event)))
	b.WriteString("\n")

	if !r.Attempted() {
		b.WriteString("no feature flag operations attempted\n")
		return b.String()
	}
	for _, flag := range r.DeployedFlags {
		fmt.Fprintf(&b, "%s %s\n", render(summarySuccessStyle, "deployed"), flag)
	}
	for _, f := range r.FailedFlags {
		fmt.Fprintf(&b, "%s %s: %s\n", render(summaryFailureStyle, "failed"), f.FlagName, f.Message)
	}
	return b.String()
}
