package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	root := newRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])
	assert.True(t, names["price"])

	require.NotNil(t, root.PersistentFlags().Lookup("config"))
	require.NotNil(t, root.PersistentFlags().Lookup("verbose"))
}

func TestPriceCommandRequiresMint(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"price"})
	root.SetOut(new(nopWriter))
	root.SetErr(new(nopWriter))
	assert.Error(t, root.Execute())
}

func TestInvalidConfigFails(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	root := newRootCmd()
	root.SetArgs([]string{"migrate"})
	root.SetOut(new(nopWriter))
	root.SetErr(new(nopWriter))
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }
