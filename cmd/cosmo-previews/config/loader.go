// Copyright (C) 2025 WunderGraph, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the manifest lives unless the invocation overrides
// it. The path is relative to the repository checkout root.
const DefaultPath = ".github/cosmo.yaml"

var (
	// ErrNotFound is returned when the manifest file does not exist.
	ErrNotFound = errors.New("preview manifest not found")

	// ErrNoFeatureFlags is returned when the manifest declares zero
	// feature flags. An empty flag list makes every run a no-op, which is
	// always a configuration mistake.
	ErrNoFeatureFlags = errors.New("no feature flags configured")

	// ErrNoSubgraphs is returned when the manifest declares zero
	// subgraphs.
	ErrNoSubgraphs = errors.New("no subgraphs configured")
)

// Load reads, parses, and validates the manifest at path.
//
// # Description
//
// Fails fast, aborting the run with no partial state, when the file is
// absent, unparseable, or declares zero feature flags or zero subgraphs.
// Each subgraph schema path is resolved to an absolute path relative to
// the manifest's own directory, anchoring all later path comparisons.
//
// # Inputs
//
//   - path: Manifest location; relative paths resolve against the
//     current working directory.
//
// # Outputs
//
//   - *PreviewConfig: Validated, path-resolved configuration
//   - error: ErrNotFound, ErrNoFeatureFlags, ErrNoSubgraphs, or a parse
//     or validation error
func Load(path string) (*PreviewConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving manifest path %q: %w", path, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, absPath)
		}
		return nil, fmt.Errorf("reading manifest %s: %w", absPath, err)
	}

	var cfg PreviewConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", absPath, err)
	}

	// Explicit emptiness checks come before struct validation so the
	// operator sees the actionable sentinel, not a validator dump.
	if len(cfg.FeatureFlags) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFeatureFlags, absPath)
	}
	if len(cfg.Subgraphs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSubgraphs, absPath)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating manifest %s: %w", absPath, err)
	}

	manifestDir := filepath.Dir(absPath)
	for i := range cfg.Subgraphs {
		sp := cfg.Subgraphs[i].SchemaPath
		if !filepath.IsAbs(sp) {
			sp = filepath.Join(manifestDir, sp)
		}
		cfg.Subgraphs[i].SchemaPath = filepath.Clean(sp)
	}

	return &cfg, nil
}
