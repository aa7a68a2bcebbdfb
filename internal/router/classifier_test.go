package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkit-run/agentkit/internal/core"
)

func TestClassifyPicksExternalCLIForCodePrompt(t *testing.T) {
	c := classify("fix the bug in the database migration and add a regression test", false)
	assert.Equal(t, core.RunnerExternalCLI, c.Kind)
	assert.Greater(t, c.Scores["code"], c.Scores["content"])
}

func TestClassifyPicksEmbeddedForContentPrompt(t *testing.T) {
	c := classify("write a blog article summarizing our newsletter for this quarter", false)
	assert.Equal(t, core.RunnerEmbedded, c.Kind)
	assert.Greater(t, c.Scores["content"], c.Scores["code"])
}

func TestClassifyTieBreaksOnWorkspaceOrientation(t *testing.T) {
	tied := classify("hello there", true)
	assert.Equal(t, core.RunnerEmbedded, tied.Kind)

	untied := classify("hello there", false)
	assert.Equal(t, core.RunnerExternalCLI, untied.Kind)
}

func TestClassifyToleratesMisspellings(t *testing.T) {
	c := classify("refactr the api endpint and fix the migraton", false)
	assert.Equal(t, core.RunnerExternalCLI, c.Kind)
}

func TestIsCodeOrientedWorkspaceDetectsGitDir(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, isCodeOrientedWorkspace(dir))

	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	assert.True(t, isCodeOrientedWorkspace(dir))
}
