package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInstance(t *testing.T) {
	dir := t.TempDir()

	instance, err := GenerateInstance(dir)
	require.NoError(t, err)

	// 32 bytes of entropy encode to 43 URL-safe characters.
	assert.Len(t, instance.SecretKey, 43)
	assert.NotEqual(t, DefaultSecretKey, instance.SecretKey)
	assert.Equal(t, filepath.Join(dir, DatabaseFileName), instance.Database)

	// The artifact must be on disk with the expected keys.
	data, err := os.ReadFile(InstancePath(dir))
	require.NoError(t, err)

	var raw map[string]string
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, instance.SecretKey, raw["SECRET_KEY"])
	assert.Equal(t, instance.Database, raw["DATABASE"])
}

func TestGenerateInstanceSecretsDiffer(t *testing.T) {
	first, err := GenerateInstance(t.TempDir())
	require.NoError(t, err)
	second, err := GenerateInstance(t.TempDir())
	require.NoError(t, err)

	assert.NotEqual(t, first.SecretKey, second.SecretKey)
}

func TestGenerateInstanceLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := GenerateInstance(dir)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, InstanceFileName, entries[0].Name())
}

func TestResolveInstanceRoundTrip(t *testing.T) {
	dir := t.TempDir()

	generated, err := GenerateInstance(dir)
	require.NoError(t, err)

	resolved, err := ResolveInstance(dir)
	require.NoError(t, err)
	assert.Equal(t, generated, resolved)
}

func TestResolveInstanceNotConfigured(t *testing.T) {
	_, err := ResolveInstance(t.TempDir())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestResolveInstanceCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "truncated json", content: `{"SECRET_KEY": "abc`},
		{name: "not json", content: "hello"},
		{name: "missing secret", content: `{"DATABASE": "/tmp/s4.db"}`},
		{name: "missing database", content: `{"SECRET_KEY": "abc"}`},
		{name: "empty object", content: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(InstancePath(dir), []byte(tt.content), 0o644))

			_, err := ResolveInstance(dir)
			require.Error(t, err)
			// Corrupt is never reported as "not configured": callers
			// must not fall back to the degraded default over it.
			assert.NotErrorIs(t, err, ErrNotConfigured)
		})
	}
}

func TestDefaultInstance(t *testing.T) {
	instance := DefaultInstance()

	assert.Equal(t, DefaultSecretKey, instance.SecretKey)
	assert.Equal(t, MemoryDatabase, instance.Database)
	assert.True(t, instance.IsMemory())
}

func TestRegenerateReplacesSecret(t *testing.T) {
	dir := t.TempDir()

	first, err := GenerateInstance(dir)
	require.NoError(t, err)

	second, err := GenerateInstance(dir)
	require.NoError(t, err)
	assert.NotEqual(t, first.SecretKey, second.SecretKey)

	// Only the new secret survives; there is no dual-secret rollover.
	resolved, err := ResolveInstance(dir)
	require.NoError(t, err)
	assert.Equal(t, second.SecretKey, resolved.SecretKey)
}
