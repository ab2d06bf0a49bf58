// Copyright (C) 2025 WunderGraph, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates the cosmo-previews manifest.
//
// The manifest declares which subgraphs of the federated graph are
// eligible for preview environments and which feature flags group the
// resulting feature subgraphs:
//
//	namespace: "prod-preview"
//	feature_flags:
//	  - name: "preview"
//	    labels: ["team=platform"]
//	subgraphs:
//	  - name: "products"
//	    schema_path: "schemas/products.graphql"
//	    routing_url: "https://products-{PR_NUMBER}.preview.example.com/graphql"
//
// Schema paths are resolved to absolute paths against the manifest's own
// directory at load time, so later path comparisons are independent of
// the invocation's working directory. The loaded config is treated as
// immutable for the rest of the run.
package config

// SubgraphConfig declares one base subgraph eligible for previews.
type SubgraphConfig struct {
	// Name is the base subgraph name as registered in the namespace.
	Name string `yaml:"name" validate:"required"`

	// SchemaPath points at the subgraph's GraphQL schema file. Relative
	// paths in the manifest are resolved against the manifest directory
	// during Load; after Load the path is always absolute.
	SchemaPath string `yaml:"schema_path" validate:"required"`

	// RoutingURL is the URL the router uses to reach the feature
	// subgraph. It may embed the {PR_NUMBER} placeholder, which is
	// substituted with the concrete pull request number at publish time.
	RoutingURL string `yaml:"routing_url" validate:"required,min=1"`
}

// FeatureFlagConfig declares one feature flag to create per pull request.
type FeatureFlagConfig struct {
	// Name is the flag's base name; the deployed flag is named
	// "{name}-{prNumber}".
	Name string `yaml:"name" validate:"required"`

	// Labels select which federated graphs the flag applies to.
	// Order is preserved as declared.
	Labels []string `yaml:"labels"`
}

// PreviewConfig is the validated, path-resolved manifest.
type PreviewConfig struct {
	// Namespace is the Cosmo namespace all remote operations target.
	Namespace string `yaml:"namespace" validate:"required"`

	// FeatureFlags lists the flags to manage per pull request.
	// At least one must be declared.
	FeatureFlags []FeatureFlagConfig `yaml:"feature_flags" validate:"required,min=1,dive"`

	// Subgraphs lists the base subgraphs eligible for previews.
	// At least one must be declared.
	Subgraphs []SubgraphConfig `yaml:"subgraphs" validate:"required,min=1,dive"`
}

// SubgraphBySchemaPath returns the subgraph whose resolved schema path
// equals the given absolute path, or nil when none matches.
func (c *PreviewConfig) SubgraphBySchemaPath(path string) *SubgraphConfig {
	for i := range c.Subgraphs {
		if c.Subgraphs[i].SchemaPath == path {
			return &c.Subgraphs[i]
		}
	}
	return nil
}
