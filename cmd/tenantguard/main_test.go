package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()

	for _, path := range [][]string{
		{"serve"},
		{"migrate"},
		{"bootstrap"},
		{"tenant", "create"},
		{"tenant", "suspend"},
		{"tenant", "activate"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestTenantStatus_RejectsBadID(t *testing.T) {
	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"tenant", "suspend", "acme"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tenant id")
}

func TestTenantCreate_RequiresName(t *testing.T) {
	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"tenant", "create"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
}
