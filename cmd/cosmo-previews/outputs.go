// Copyright (C) 2025 WunderGraph, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// FeatureSubgraphRecord is one serializable record exposed to downstream
// workflow steps, describing a feature subgraph this run deploys or
// destroys.
type FeatureSubgraphRecord struct {
	FeatureSubgraphName string `json:"featureSubgraphName"`
	SchemaPath          string `json:"schemaPath"`
	RoutingURL          string `json:"routingUrl"`
	BaseSubgraphName    string `json:"baseSubgraphName"`
}

// Output keys consumed by downstream workflow steps.
const (
	outputKeyDeploy  = "feature_subgraphs_to_deploy"
	outputKeyDestroy = "feature_subgraphs_to_destroy"
)

// githubOutputEnv names the file GitHub Actions provides for step outputs.
const githubOutputEnv = "GITHUB_OUTPUT"

// WriteActionOutputs appends the deploy and destroy record lists to the
// workflow output file in heredoc format. Values are JSON arrays; empty
// lists serialize as [] so downstream steps can parse unconditionally.
//
// Writing is skipped silently when path is empty (running outside the
// hosting CI).
func WriteActionOutputs(path string, deploy, destroy []FeatureSubgraphRecord) error {
	if path == "" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening output file: %w", err)
	}
	defer f.Close()

	if err := writeOutput(f, outputKeyDeploy, deploy); err != nil {
		return err
	}
	return writeOutput(f, outputKeyDestroy, destroy)
}

// writeOutput appends one key in the heredoc form the workflow runner
// parses. The delimiter is random so record content can never terminate
// the block early.
func writeOutput(f *os.File, key string, records []FeatureSubgraphRecord) error {
	if records == nil {
		records = []FeatureSubgraphRecord{}
	}
	value, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	delimiter := "ghadelimiter_" + uuid.NewString()
	if _, err := fmt.Fprintf(f, "%s<<%s\n%s\n%s\n", key, delimiter, value, delimiter); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
