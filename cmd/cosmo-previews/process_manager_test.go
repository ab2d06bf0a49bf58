// Copyright (C) 2025 WunderGraph, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultProcessManager_SeparateChannels verifies stdout and stderr
// arrive on separate channels.
func TestDefaultProcessManager_SeparateChannels(t *testing.T) {
	pm := NewDefaultProcessManager()

	stdout, stderr, err := pm.RunWithEnv(context.Background(), "sh", nil, "-c", "echo out; echo err 1>&2")
	require.NoError(t, err)
	assert.Equal(t, "out\n", string(stdout))
	assert.Equal(t, "err\n", string(stderr))
}

// TestDefaultProcessManager_EnvInjection verifies the extra variables
// reach the child without being exported into this process.
func TestDefaultProcessManager_EnvInjection(t *testing.T) {
	pm := NewDefaultProcessManager()

	stdout, _, err := pm.RunWithEnv(context.Background(), "sh", []string{"PREVIEW_TEST_KEY=secret123"}, "-c", "printf %s \"$PREVIEW_TEST_KEY\"")
	require.NoError(t, err)
	assert.Equal(t, "secret123", string(stdout))

	// The variable existed only in the child's environment.
	assert.Empty(t, getEnv(t, "PREVIEW_TEST_KEY"))
}

func getEnv(t *testing.T, key string) string {
	t.Helper()
	stdout, _, err := NewDefaultProcessManager().RunWithEnv(context.Background(), "sh", nil, "-c", "printf %s \"${"+key+":-}\"")
	require.NoError(t, err)
	return string(stdout)
}

// TestExitCode verifies exit status extraction.
func TestExitCode(t *testing.T) {
	pm := NewDefaultProcessManager()

	_, _, err := pm.RunWithEnv(context.Background(), "sh", nil, "-c", "exit 3")
	require.Error(t, err)
	assert.Equal(t, 3, ExitCode(err))

	assert.Equal(t, -1, ExitCode(errors.New("not an exec error")))
	assert.Equal(t, -1, ExitCode(nil))
}

// TestDefaultProcessManager_Cancellation verifies the context kills the
// child process.
func TestDefaultProcessManager_Cancellation(t *testing.T) {
	pm := NewDefaultProcessManager()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := pm.RunWithEnv(ctx, "sh", nil, "-c", "sleep 10")
	require.Error(t, err)
}

// TestMockProcessManager_Records verifies call recording and Reset.
func TestMockProcessManager_Records(t *testing.T) {
	mock := &MockProcessManager{
		RunWithEnvFunc: func(ctx context.Context, name string, env []string, args ...string) ([]byte, []byte, error) {
			return []byte("ok"), nil, nil
		},
	}

	_, _, err := mock.RunWithEnv(context.Background(), "wgc", []string{"COSMO_API_KEY=k"}, "auth", "whoami")
	require.NoError(t, err)

	calls := mock.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "wgc", calls[0].Name)
	assert.Equal(t, []string{"COSMO_API_KEY=k"}, calls[0].Env)
	assert.Equal(t, []string{"auth", "whoami"}, calls[0].Args)

	mock.Reset()
	assert.Empty(t, mock.GetCalls())
}
