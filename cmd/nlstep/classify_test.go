package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runClassify(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newClassifyCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestClassifyCmd(t *testing.T) {
	assert.Equal(t, "api\n", runClassify(t, "send", "GET", "/users/1"))
	assert.Equal(t, "browser\n", runClassify(t, "click", "the", "submit", "button"))
	assert.Equal(t, "assertion\n", runClassify(t, "the", "response", "should", "be", "successful"))
}

func TestClassifyCmd_ModeOverride(t *testing.T) {
	assert.Equal(t, "api\n", runClassify(t, "--mode", "api", "click the submit button"))
}

func TestClassifyCmd_RequiresArgs(t *testing.T) {
	cmd := newClassifyCmd()
	cmd.SetArgs(nil)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetOut(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := newRootCmd()
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "schedule", "classify", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}
