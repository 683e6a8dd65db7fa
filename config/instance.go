package config

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultSecretKey is the well-known credential used only in
	// degraded mode. It is deliberately not a secret.
	DefaultSecretKey = "s4"

	// MemoryDatabase is the sentinel meaning a transient, in-memory
	// store.
	MemoryDatabase = ":memory:"

	// InstanceFileName is the persisted configuration artifact inside
	// the instance directory.
	InstanceFileName = "config.json"

	// DatabaseFileName is the default database file inside the
	// instance directory.
	DatabaseFileName = "s4.db"

	// secretKeyBytes is the entropy, in bytes, of a generated secret
	// before encoding.
	secretKeyBytes = 32
)

// ErrNotConfigured is returned by ResolveInstance when no persisted
// instance configuration exists.
var ErrNotConfigured = errors.New("instance not configured")

// InstanceConfig is the credential pair governing one running instance.
// It is immutable after bootstrap; regenerating it only takes effect on
// the next process start. The JSON keys match the persisted artifact
// format exactly.
type InstanceConfig struct {
	SecretKey string `json:"SECRET_KEY"`
	Database  string `json:"DATABASE"`
}

// DefaultInstance returns the degraded-mode configuration: the
// well-known default credential paired with a non-persistent store.
// The two always travel together; the default credential must never
// gate a persisted database.
func DefaultInstance() *InstanceConfig {
	return &InstanceConfig{
		SecretKey: DefaultSecretKey,
		Database:  MemoryDatabase,
	}
}

// InstancePath returns the path of the persisted configuration artifact
// under the given instance directory.
func InstancePath(instanceDir string) string {
	return filepath.Join(instanceDir, InstanceFileName)
}

// ResolveInstance reads the persisted instance configuration. A missing
// file yields ErrNotConfigured; a corrupt or partial file is a hard
// error, never silently treated as valid.
func ResolveInstance(instanceDir string) (*InstanceConfig, error) {
	path := InstancePath(instanceDir)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("failed to read instance config %s: %w", path, err)
	}

	var cfg InstanceConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("corrupt instance config %s: %w", path, err)
	}

	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("corrupt instance config %s: missing SECRET_KEY", path)
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("corrupt instance config %s: missing DATABASE", path)
	}

	return &cfg, nil
}

// GenerateInstance creates a fresh instance configuration with a
// cryptographically random secret and a database file under the
// instance directory, and persists it atomically. An existing artifact
// is overwritten; callers are responsible for confirming destructive
// regeneration with the operator first.
func GenerateInstance(instanceDir string) (*InstanceConfig, error) {
	secret, err := generateSecretKey()
	if err != nil {
		return nil, err
	}

	cfg := &InstanceConfig{
		SecretKey: secret,
		Database:  filepath.Join(instanceDir, DatabaseFileName),
	}

	if err := writeInstanceFile(instanceDir, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// generateSecretKey produces a URL-safe random credential with
// secretKeyBytes bytes of entropy.
func generateSecretKey() (string, error) {
	buf := make([]byte, secretKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// writeInstanceFile persists the configuration artifact with a
// write-temp-then-rename so a crash mid-write never leaves a
// half-written file readable as valid.
func writeInstanceFile(instanceDir string, cfg *InstanceConfig) error {
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode instance config: %w", err)
	}

	tmp, err := os.CreateTemp(instanceDir, InstanceFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp config file: %w", err)
	}

	if err := os.Rename(tmpPath, InstancePath(instanceDir)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to persist instance config: %w", err)
	}

	return nil
}

// IsMemory reports whether the configured database is the transient
// in-memory sentinel.
func (c *InstanceConfig) IsMemory() bool {
	return c.Database == MemoryDatabase
}
