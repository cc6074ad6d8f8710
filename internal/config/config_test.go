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

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "weread", cfg.Session.Provider)
	assert.Equal(t, "auto", cfg.Session.Backend)
	assert.Equal(t, 30*24*time.Hour, cfg.Session.TTL)
	assert.False(t, cfg.Session.StrictAuth)
	assert.Equal(t, 120*time.Second, cfg.Sync.Overlap())
	assert.True(t, cfg.Sync.Incremental())
	assert.Equal(t, 2, cfg.Sync.MidnightShiftDays)
	assert.InDelta(t, 0.9, cfg.Sync.CoverageSLATarget, 1e-9)
	assert.Equal(t, "source", cfg.View.DefaultMode)
	assert.NotEmpty(t, cfg.Sources.FeedTemplates)
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := writeConfig(t, `
session:
  provider: sogou
  strict_auth_required: true
sync:
  overlap_seconds: 300
  midnight_shift_days: 1
  disable_incremental: true
log_level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sogou", cfg.Session.Provider)
	assert.True(t, cfg.Session.StrictAuth)
	assert.Equal(t, 300*time.Second, cfg.Sync.Overlap())
	assert.Equal(t, 1, cfg.Sync.MidnightShiftDays)
	assert.False(t, cfg.Sync.Incremental())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestEnvironmentWinsOverFile(t *testing.T) {
	path := writeConfig(t, `
session:
  strict_auth_required: false
sync:
  overlap_seconds: 60
`)
	t.Setenv("STRICT_AUTH_REQUIRED", "true")
	t.Setenv("SYNC_OVERLAP_SECONDS", "240")
	t.Setenv("MIDNIGHT_SHIFT_DAYS", "3")
	t.Setenv("COVERAGE_SLA_TARGET", "0.8")
	t.Setenv("SESSION_PROVIDER", "sogou")
	t.Setenv("SESSION_BACKEND", "file")
	t.Setenv("EXTREME_LOCAL_MODE", "1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Session.StrictAuth)
	assert.Equal(t, 240, cfg.Sync.OverlapSeconds)
	assert.Equal(t, 3, cfg.Sync.MidnightShiftDays)
	assert.InDelta(t, 0.8, cfg.Sync.CoverageSLATarget, 1e-9)
	assert.Equal(t, "sogou", cfg.Session.Provider)
	assert.Equal(t, "file", cfg.Session.Backend)
	assert.True(t, cfg.Sync.ExtremeLocalMode)
}

func TestIncrementalSyncDisabledByEnv(t *testing.T) {
	t.Setenv("INCREMENTAL_SYNC_ENABLED", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.False(t, cfg.Sync.Incremental())
}

func TestIncrementalSyncExplicitlyEnabledByEnv(t *testing.T) {
	path := writeConfig(t, `
sync:
  disable_incremental: true
`)
	t.Setenv("INCREMENTAL_SYNC_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Sync.Incremental())
}

func TestEnvExpansionInFile(t *testing.T) {
	t.Setenv("DIGEST_DB_PATH", "/tmp/expanded.db")
	path := writeConfig(t, `
database:
  path: ${DIGEST_DB_PATH}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/expanded.db", cfg.Database.Path)
}

func TestMalformedYAML(t *testing.T) {
	path := writeConfig(t, "session: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}
