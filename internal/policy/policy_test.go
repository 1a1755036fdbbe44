package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := Default()

	assert.True(t, p.SafelistsModule("crypto"))
	assert.True(t, p.SafelistsModule("node:crypto"))
	assert.False(t, p.SafelistsModule("fs"))
	assert.False(t, p.SafelistsModule("node:fs"))

	assert.True(t, p.ForbidsGlobal("fetch"))
	assert.True(t, p.ForbidsGlobal("eval"))
	assert.True(t, p.ForbidsGlobal("require"))
	assert.False(t, p.ForbidsGlobal("Math"))
	assert.False(t, p.ForbidsGlobal("JSON"))
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `
safelist_modules:
  - crypto
  - node:buffer
additional_forbidden_globals:
  - queueMicrotask
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	p, err := Load(path)
	require.NoError(t, err)

	assert.True(t, p.SafelistsModule("buffer"))
	assert.True(t, p.SafelistsModule("node:buffer"))
	assert.True(t, p.ForbidsGlobal("queueMicrotask"))
	// Additions extend the default catalog rather than replacing it.
	assert.True(t, p.ForbidsGlobal("fetch"))
}

func TestLoadReplacesForbiddenCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `
forbidden_globals:
  - fetch
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	p, err := Load(path)
	require.NoError(t, err)

	assert.True(t, p.ForbidsGlobal("fetch"))
	assert.False(t, p.ForbidsGlobal("eval"))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/policy.yaml")
	assert.Error(t, err)
}

func TestSortedCopies(t *testing.T) {
	p := New([]string{"b", "a"}, []string{"z", "y"})
	assert.Equal(t, []string{"a", "b"}, p.SafelistModules())
	assert.Equal(t, []string{"y", "z"}, p.ForbiddenGlobals())
}
