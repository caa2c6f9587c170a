package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetForTest clears key for the test and restores it afterwards.
func unsetForTest(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoadEnvFilesPrefersLocalFile(t *testing.T) {
	unsetForTest(t, "HYPERCLUSTER_ENV_A")
	unsetForTest(t, "HYPERCLUSTER_ENV_B")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HYPERCLUSTER_ENV_A=base\nHYPERCLUSTER_ENV_B=base\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("HYPERCLUSTER_ENV_A=local\n"), 0o644))

	loaded := LoadEnvFiles(dir)

	assert.Equal(t, []string{filepath.Join(dir, ".env.local"), filepath.Join(dir, ".env")}, loaded)
	assert.Equal(t, "local", os.Getenv("HYPERCLUSTER_ENV_A"))
	assert.Equal(t, "base", os.Getenv("HYPERCLUSTER_ENV_B"))
}

func TestLoadEnvFilesStopsAtFirstDirectoryWithFiles(t *testing.T) {
	unsetForTest(t, "HYPERCLUSTER_ENV_C")

	empty, first, second := t.TempDir(), t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(first, ".env"), []byte("HYPERCLUSTER_ENV_C=first\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(second, ".env"), []byte("HYPERCLUSTER_ENV_C=second\n"), 0o644))

	loaded := LoadEnvFiles(empty, first, second)

	assert.Equal(t, []string{filepath.Join(first, ".env")}, loaded)
	assert.Equal(t, "first", os.Getenv("HYPERCLUSTER_ENV_C"))
}

func TestLoadEnvFilesKeepsProcessEnvironment(t *testing.T) {
	t.Setenv("HYPERCLUSTER_ENV_D", "process")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HYPERCLUSTER_ENV_D=file\n"), 0o644))

	LoadEnvFiles(dir)
	assert.Equal(t, "process", os.Getenv("HYPERCLUSTER_ENV_D"))
}

func TestVersionFlag(t *testing.T) {
	prev := GetVersion()
	SetVersion("1.4.2")
	t.Cleanup(func() { SetVersion(prev) })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, Execute())
	assert.Equal(t, "1.4.2\n", out.String())
}
