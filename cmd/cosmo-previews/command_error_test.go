package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandError(t *testing.T) {
	wrapped := errors.New("exit status 1")
	err := NewCommandError("wgc auth whoami", 1, "unauthorized: bad api key\n", wrapped)

	assert.Contains(t, err.Error(), "wgc auth whoami")
	assert.Contains(t, err.Error(), "unauthorized")
	assert.True(t, err.HasStderr())
	require.ErrorIs(t, err, wrapped)

	var cmdErr *CommandError
	require.ErrorAs(t, error(err), &cmdErr)
	assert.Equal(t, 1, cmdErr.ExitCode)
}

func TestExtractStderr(t *testing.T) {
	err := NewCommandError("wgc subgraph delete", 1, "not found", errors.New("exit status 1"))
	assert.Equal(t, "not found", ExtractStderr(err))
	assert.Empty(t, ExtractStderr(errors.New("plain")))
	assert.Empty(t, ExtractStderr(nil))
}
