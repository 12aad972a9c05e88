package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServer_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://test@localhost/test")
	t.Setenv("REPORT_LIMIT_PER_HOUR", "7")

	cfg, err := LoadServer()
	require.NoError(t, err)

	assert.Equal(t, "postgres://test@localhost/test", cfg.DatabaseURL)
	assert.Equal(t, 7, cfg.ReportLimitPerHour)
	assert.Equal(t, 10, cfg.CorrectLimitPerHour)
	assert.Equal(t, 120, cfg.LookupLimitPerHour)
	assert.Equal(t, "8080", cfg.HTTPPort)
	// The health probe stays on loopback unless deployment overrides it.
	assert.Equal(t, "localhost:50051", cfg.GRPCHealthAddr)
	assert.Equal(t, 15*time.Minute, cfg.SeedURLExpiry)
	assert.Equal(t, "info", cfg.Level)
}

func TestLoadDevice_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hash_salt: from-file\ndb_path: /tmp/cs.db\n"), 0o600))
	t.Setenv("CALLSHIELD_SCREEN_TIMEOUT", "900ms")

	cfg, err := LoadDevice(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.HashSalt)
	assert.Equal(t, "/tmp/cs.db", cfg.DBPath)
	assert.Equal(t, 900*time.Millisecond, cfg.ScreenTimeout)
	assert.Equal(t, 10, cfg.BreakerWindow)
}

func TestLoadDevice_RequiresSalt(t *testing.T) {
	_, err := LoadDevice("", t.TempDir())
	assert.Error(t, err)
}
