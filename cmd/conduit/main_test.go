package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "conduit version ")
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", "../../internal/cli/testdata/rpc.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	_, err = execute(t, "validate")
	assert.Error(t, err)
}

func TestGraphCommand(t *testing.T) {
	out, err := execute(t, "graph", "../../internal/cli/testdata/rpc.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "graph LR")
}
