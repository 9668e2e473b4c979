package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/Ramsey-B/thistle/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("WORKSPACE_PATH", filepath.Join(t.TempDir(), "workspace.db"))
	t.Setenv("APP_VERSION", "1.2.3")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "thistle-api 1.2.3\n", out)
}

func TestPresenceVerify_EmptyCaseIsConsistent(t *testing.T) {
	out, err := execute(t, "presence", "verify", "--case", "case-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"consistent": true`)
}

func TestPresenceRebuild_UnknownCase(t *testing.T) {
	_, err := execute(t, "presence", "rebuild", "--case", "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPresenceRequiresCase(t *testing.T) {
	_, err := execute(t, "presence", "verify")
	require.Error(t, err)
}
