package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
app:
  name: opsync
  environment: test
database:
  path: /tmp/opsync-test/opsync.db
endpoints:
  primary: http://backend:8000
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, "@every 30s", cfg.Sync.Schedule)
	assert.Equal(t, 50, cfg.Sync.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Sync.InitialDelayDuration())
	assert.Equal(t, time.Minute, cfg.Sync.MaxDelayDuration())
	assert.Equal(t, 30*time.Second, cfg.Transport.TimeoutDuration())
	assert.Equal(t, "/health", cfg.Endpoints.Health)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, 8080, cfg.API.Port)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("OPSYNC_BACKEND", "http://cmms.internal:9000")

	cfg, err := Load(writeConfig(t, `
database:
  path: /tmp/opsync-test/opsync.db
endpoints:
  primary: ${OPSYNC_BACKEND}
`))
	require.NoError(t, err)
	assert.Equal(t, "http://cmms.internal:9000", cfg.Endpoints.Primary)
}

func TestValidateRequiresDatabasePath(t *testing.T) {
	_, err := Load(writeConfig(t, `
endpoints:
  primary: http://backend:8000
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database path")
}

func TestValidateRequiresPrimaryEndpoint(t *testing.T) {
	_, err := Load(writeConfig(t, `
database:
  path: /tmp/opsync-test/opsync.db
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoints.primary")
}

func TestValidateRejectsBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
sync:
  initial_delay: soon
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync.initial_delay")
}

func TestValidateRequiresRedisAddress(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
redis:
  enabled: true
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.address")
}

func TestValidateRequiresAPIKeysWhenAuthEnabled(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
api:
  enabled: true
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_keys")
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Second, parseDuration("garbage", time.Second))
	assert.Equal(t, time.Second, parseDuration("-5s", time.Second))
	assert.Equal(t, 3*time.Second, parseDuration("3s", time.Second))
}
