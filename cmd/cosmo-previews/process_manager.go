// Copyright (C) 2025 WunderGraph, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package main provides ProcessManager for abstracting external process execution.

ProcessManager enables testable interaction with the operating system's
process management capabilities. All exec.Command calls in the
reconciliation code go through this interface so the core stays testable
without real process execution.

# Design Rationale

Direct calls to exec.Command are not testable because they execute real
processes. By abstracting process execution behind an interface, we can:
  - Mock process execution in tests
  - Capture and verify command invocations, including per-call credentials
  - Simulate success/failure scenarios without real processes

Stdout and stderr are captured on separate channels: the wgc CLI writes
its machine-readable JSON payload to stdout and diagnostics to stderr,
and the two must not be interleaved.
*/
package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
)

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// ProcessManager handles external process operations.
//
// Implementations must be safe for concurrent use, although the
// reconciliation core issues calls strictly sequentially.
type ProcessManager interface {
	// RunWithEnv executes a command synchronously with additional
	// environment variables and returns its output.
	//
	// # Description
	//
	// The extra variables are appended to the current process environment
	// for this single invocation only. This is how credentials reach the
	// wgc CLI: passed per call, never exported process-wide. A nil env
	// runs the command with the unmodified process environment.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - name: The executable name or path
	//   - env: Extra variables in KEY=VALUE form; may be nil
	//   - args: Command arguments (variadic)
	//
	// # Outputs
	//
	//   - stdout: Captured standard output
	//   - stderr: Captured standard error
	//   - error: Non-nil if the command fails or is cancelled; stdout and
	//     stderr are still returned for diagnosis
	RunWithEnv(ctx context.Context, name string, env []string, args ...string) (stdout, stderr []byte, err error)
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultProcessManager implements ProcessManager using os/exec.
//
// This is the production implementation that executes real processes on
// the system. Use MockProcessManager in tests instead.
type DefaultProcessManager struct{}

// NewDefaultProcessManager creates a ProcessManager that executes real
// processes using os/exec.
func NewDefaultProcessManager() *DefaultProcessManager {
	return &DefaultProcessManager{}
}

// RunWithEnv executes a command with additional environment variables.
func (pm *DefaultProcessManager) RunWithEnv(ctx context.Context, name string, env []string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// ExitCode extracts the process exit code from a Run error.
// Returns -1 when the error carries no exit status (e.g. exec failure).
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockProcessManager is a test double for ProcessManager.
//
// Configure the mock by setting function fields before use. If a function
// field is nil and the corresponding method is called, it will panic.
//
// # Examples
//
//	mock := &MockProcessManager{
//	    RunWithEnvFunc: func(ctx context.Context, name string, env []string, args ...string) ([]byte, []byte, error) {
//	        return []byte(`{"status":"success"}`), nil, nil
//	    },
//	}
type MockProcessManager struct {
	// RunWithEnvFunc is called when RunWithEnv is invoked
	RunWithEnvFunc func(ctx context.Context, name string, env []string, args ...string) ([]byte, []byte, error)

	// Calls records all method invocations for verification
	Calls []ProcessManagerCall

	// mu protects Calls for concurrent access
	mu sync.Mutex
}

// ProcessManagerCall records a single method invocation.
type ProcessManagerCall struct {
	Name string
	Env  []string
	Args []string
}

// RunWithEnv delegates to RunWithEnvFunc and records the call.
func (m *MockProcessManager) RunWithEnv(ctx context.Context, name string, env []string, args ...string) ([]byte, []byte, error) {
	m.record(ProcessManagerCall{Name: name, Env: env, Args: args})
	if m.RunWithEnvFunc == nil {
		panic("MockProcessManager.RunWithEnvFunc not set")
	}
	return m.RunWithEnvFunc(ctx, name, env, args...)
}

func (m *MockProcessManager) record(call ProcessManagerCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

// GetCalls returns a copy of all recorded calls.
func (m *MockProcessManager) GetCalls() []ProcessManagerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]ProcessManagerCall, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// Reset clears all recorded calls.
func (m *MockProcessManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// Compile-time interface compliance check.
var (
	_ ProcessManager = (*DefaultProcessManager)(nil)
	_ ProcessManager = (*MockProcessManager)(nil)
)
