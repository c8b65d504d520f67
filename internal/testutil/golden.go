package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// UpdateGoldenEnv names the variable that rewrites golden files instead of comparing.
const UpdateGoldenEnv = "TODOCTL_UPDATE_GOLDEN"

// Golden compares got against testdata/<name>.golden.
func Golden(t testing.TB, name string, got string) {
	t.Helper()

	path := filepath.Join("testdata", name+".golden")

	if os.Getenv(UpdateGoldenEnv) != "" {
		require.NoError(t, os.MkdirAll("testdata", 0755))
		require.NoError(t, os.WriteFile(path, []byte(got), 0644))
		return
	}

	want, err := os.ReadFile(path)
	require.NoError(t, err, "golden file %s missing; rerun with %s=1", path, UpdateGoldenEnv)
	assert.Equal(t, string(want), got, "output mismatch for %s", name)
}
