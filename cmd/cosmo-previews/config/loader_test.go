// Copyright (C) 2025 WunderGraph, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const validManifest = `
namespace: "prod-preview"
feature_flags:
  - name: "preview"
    labels: ["team=platform", "env=preview"]
subgraphs:
  - name: "products"
    schema_path: "schemas/products.graphql"
    routing_url: "https://products-{PR_NUMBER}.preview.example.com/graphql"
  - name: "reviews"
    schema_path: "schemas/reviews.graphql"
    routing_url: "https://reviews-{PR_NUMBER}.preview.example.com/graphql"
`

// writeManifest writes content to <dir>/.github/cosmo.yaml and returns the path.
func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ".github", "cosmo.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

// TestLoad verifies a valid manifest parses and resolves paths.
func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, validManifest)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Namespace != "prod-preview" {
		t.Errorf("Namespace = %q, want %q", cfg.Namespace, "prod-preview")
	}
	if len(cfg.FeatureFlags) != 1 {
		t.Fatalf("len(FeatureFlags) = %d, want 1", len(cfg.FeatureFlags))
	}
	if got := cfg.FeatureFlags[0].Labels; len(got) != 2 || got[0] != "team=platform" {
		t.Errorf("Labels = %v, want declared order preserved", got)
	}
	if len(cfg.Subgraphs) != 2 {
		t.Fatalf("len(Subgraphs) = %d, want 2", len(cfg.Subgraphs))
	}

	// Schema paths resolve against the manifest directory, not the CWD.
	want := filepath.Join(dir, ".github", "schemas", "products.graphql")
	if cfg.Subgraphs[0].SchemaPath != want {
		t.Errorf("SchemaPath = %q, want %q", cfg.Subgraphs[0].SchemaPath, want)
	}
	if !filepath.IsAbs(cfg.Subgraphs[1].SchemaPath) {
		t.Errorf("SchemaPath %q is not absolute", cfg.Subgraphs[1].SchemaPath)
	}
}

// TestLoad_AbsoluteSchemaPath verifies absolute paths pass through untouched.
func TestLoad_AbsoluteSchemaPath(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(dir, "elsewhere", "products.graphql")
	path := writeManifest(t, dir, `
namespace: "ns"
feature_flags:
  - name: "preview"
subgraphs:
  - name: "products"
    schema_path: "`+abs+`"
    routing_url: "https://products.example.com/graphql"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Subgraphs[0].SchemaPath != abs {
		t.Errorf("SchemaPath = %q, want %q", cfg.Subgraphs[0].SchemaPath, abs)
	}
}

// TestLoad_Missing verifies a descriptive sentinel for an absent manifest.
func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope", "cosmo.yaml"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
}

// TestLoad_EmptyLists verifies fail-fast on zero flags or subgraphs.
func TestLoad_EmptyLists(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		want     error
	}{
		{
			name: "no feature flags",
			manifest: `
namespace: "ns"
feature_flags: []
subgraphs:
  - name: "products"
    schema_path: "schemas/products.graphql"
    routing_url: "https://products.example.com/graphql"
`,
			want: ErrNoFeatureFlags,
		},
		{
			name: "no subgraphs",
			manifest: `
namespace: "ns"
feature_flags:
  - name: "preview"
subgraphs: []
`,
			want: ErrNoSubgraphs,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeManifest(t, t.TempDir(), tt.manifest)
			_, err := Load(path)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Load() error = %v, want %v", err, tt.want)
			}
		})
	}
}

// TestLoad_MissingRequiredFields verifies validator catches holes.
func TestLoad_MissingRequiredFields(t *testing.T) {
	path := writeManifest(t, t.TempDir(), `
feature_flags:
  - name: "preview"
subgraphs:
  - name: "products"
    schema_path: "schemas/products.graphql"
    routing_url: "https://products.example.com/graphql"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load() succeeded despite missing namespace")
	}
}

// TestLoad_Malformed verifies YAML syntax errors surface.
func TestLoad_Malformed(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "namespace: [unterminated")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() succeeded on malformed YAML")
	}
}

// TestSubgraphBySchemaPath verifies the join-key lookup.
func TestSubgraphBySchemaPath(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, validManifest)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	want := filepath.Join(dir, ".github", "schemas", "reviews.graphql")
	sg := cfg.SubgraphBySchemaPath(want)
	if sg == nil || sg.Name != "reviews" {
		t.Fatalf("SubgraphBySchemaPath(%q) = %v, want reviews", want, sg)
	}
	if cfg.SubgraphBySchemaPath("/no/such/file.graphql") != nil {
		t.Error("SubgraphBySchemaPath matched an unknown path")
	}
}
