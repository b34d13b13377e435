package main

import (
	"context"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStaleFlagShapes(t *testing.T) {
	for _, tc := range []struct {
		args      []string
		wantSet   bool
		wantValue string
	}{
		{args: []string{}, wantSet: false},
		{args: []string{"--stale"}, wantSet: true, wantValue: "true"},
		{args: []string{"--stale=1w"}, wantSet: true, wantValue: "1w"},
	} {
		var s staleFlag
		fs := flag.NewFlagSet("t", flag.ContinueOnError)
		fs.Var(&s, "stale", "")
		require.NoError(t, fs.Parse(tc.args), "args %v", tc.args)
		assert.Equal(t, tc.wantSet, s.set, "args %v", tc.args)
		if tc.wantSet {
			assert.Equal(t, tc.wantValue, s.value, "args %v", tc.args)
		}
	}
}

func TestCleanDryRunOnEmptyProject(t *testing.T) {
	root := t.TempDir()
	err := cmdClean(context.Background(), []string{
		"-project.root", root,
		"-daemon.base", t.TempDir(),
		"--dry-run",
	}, zap.NewNop())
	assert.NoError(t, err)
}

func TestCleanTrackedOnlyRequiresStale(t *testing.T) {
	err := cmdClean(context.Background(), []string{
		"-project.root", t.TempDir(),
		"--tracked-only",
	}, zap.NewNop())
	require.Error(t, err)
	assert.True(t, isUserError(err))
}

func TestHelpUnknownTopic(t *testing.T) {
	assert.NoError(t, cmdHelp(nil))
	assert.NoError(t, cmdHelp([]string{"clean"}))
	err := cmdHelp([]string{"nope"})
	require.Error(t, err)
	assert.True(t, isUserError(err))
}
