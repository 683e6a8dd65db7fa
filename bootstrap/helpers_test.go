package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		t.Run(level, func(t *testing.T) {
			logger, sugar, err := InitLogger(level)
			require.NoError(t, err)
			assert.NotNil(t, logger)
			assert.NotNil(t, sugar)
		})
	}
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	_, _, err := InitLogger("loud")
	require.Error(t, err)
}

func TestEnsureInstanceDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "instance")

	absPath, err := EnsureInstanceDir(dir)
	require.NoError(t, err)

	info, err := os.Stat(absPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Idempotent on an existing directory.
	again, err := EnsureInstanceDir(dir)
	require.NoError(t, err)
	assert.Equal(t, absPath, again)
}
