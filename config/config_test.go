package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetcore/config"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fleetd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestValidateRejectsMissingRequiredFields(t *testing.T) {
	cfg := &config.Config{}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsPlaceholderSecret(t *testing.T) {
	cfg := &config.Config{
		Application: "fleetd",
		Listen:      ":8080",
		Logger:      config.Logger{Level: "info"},
		Pool:        config.PoolConfig{MaxSize: 1},
		JWTSecret:   "change-me-in-production",
	}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateFillsHostname(t *testing.T) {
	cfg := &config.Config{
		Application: "fleetd",
		Listen:      ":8080",
		Logger:      config.Logger{Level: "info"},
		Pool:        config.PoolConfig{MaxSize: 1},
		JWTSecret:   "a-real-secret",
	}
	require.NoError(t, cfg.Validate())
	assert.NotEmpty(t, cfg.Hostname)
}

func TestLoadParsesDefaultConfig(t *testing.T) {
	path := writeConfigFile(t, string(config.DefaultConfig)+"\njwt_secret: \"a-real-secret\"\n")

	mgr, err := config.Load(path)
	require.NoError(t, err)

	cfg := mgr.Get()
	assert.Equal(t, "fleetd", cfg.Application)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 20, cfg.Pool.MaxSize)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "not: valid: yaml: at: all:")
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingJWTSecret(t *testing.T) {
	path := writeConfigFile(t, string(config.DefaultConfig))
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestWatchFileReloadsOnChange(t *testing.T) {
	path := writeConfigFile(t, string(config.DefaultConfig)+"\njwt_secret: \"a-real-secret\"\n")

	mgr, err := config.Load(path)
	require.NoError(t, err)

	changes := mgr.Watch()
	initial := <-changes
	assert.Equal(t, 20, initial.Pool.MaxSize)

	stop, err := mgr.WatchFile()
	require.NoError(t, err)
	defer stop()

	updated := `
application: "fleetd"
logger:
  level: "info"
listen: ":8080"
jwt_secret: "a-real-secret"
pool:
  max_size: 42
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case cfg := <-changes:
		assert.Equal(t, 42, cfg.Pool.MaxSize)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload notification")
	}
}
