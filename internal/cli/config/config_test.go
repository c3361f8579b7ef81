package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conduit-lang/trident/internal/logging"
	"github.com/conduit-lang/trident/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { _ = os.Chdir(oldWd) })
	return tmpDir
}

func TestLoad(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, session.DriverMemory, cfg.Session.Driver)
	assert.Empty(t, cfg.Session.Fixtures)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Cache.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "trident:", cfg.Cache.Prefix)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Dump.Format)
	assert.Equal(t, "localhost:3000", cfg.Address())
}

func TestLoadWithConfigFile(t *testing.T) {
	dir := chdirTemp(t)

	content := `
session:
  driver: sqlite3
  dsn: lab.db
  fixtures:
    - fixtures/lab.yml
cache:
  enabled: true
  addr: redis:6379
  db: 2
  ttl: 30s
server:
  host: 0.0.0.0
  port: 8080
log:
  level: debug
  development: true
dump:
  format: yaml
`
	require.NoError(t, os.WriteFile("trident.yml", []byte(content), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, session.Config{
		Driver:   session.DriverSQLite,
		DSN:      "lab.db",
		Fixtures: []string{"fixtures/lab.yml"},
	}, cfg.SessionConfig())

	redis := cfg.RedisConfig()
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "redis:6379", redis.Addr)
	assert.Equal(t, 2, redis.DB)
	assert.Equal(t, 30*time.Second, redis.Config.DefaultTTL)
	assert.Equal(t, "trident:", redis.Config.Prefix)

	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
	assert.Equal(t, "yaml", cfg.Dump.Format)

	// Found from a subdirectory too
	sub := filepath.Join(dir, "nested", "deeper")
	require.NoError(t, os.MkdirAll(sub, 0755))
	require.NoError(t, os.Chdir(sub))

	root, err := FindRoot()
	require.NoError(t, err)
	resolved, _ := filepath.EvalSymlinks(dir)
	found, _ := filepath.EvalSymlinks(root)
	assert.Equal(t, resolved, found)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, session.DriverSQLite, cfg.Session.Driver)
}

func TestLoadExplicitPath(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)

	_, err = Load(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TRIDENT_SESSION_DRIVER", "postgres")
	t.Setenv("TRIDENT_SESSION_DSN", "postgres://localhost/lab")
	t.Setenv("TRIDENT_SERVER_PORT", "4000")
	t.Setenv("TRIDENT_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, session.DriverPostgres, cfg.Session.Driver)
	assert.Equal(t, "postgres://localhost/lab", cfg.Session.DSN)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadInvalid(t *testing.T) {
	chdirTemp(t)

	content := `
session:
  driver: mongo
server:
  port: 70000
log:
  level: loud
dump:
  format: xml
`
	require.NoError(t, os.WriteFile("trident.yaml", []byte(content), 0644))

	_, err := Load("")
	require.Error(t, err)
	for _, want := range []string{"session.driver", "server.port", "log.level", "dump.format"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateConfigRequiresDSN(t *testing.T) {
	cfg := &Config{
		Session: SessionConfig{Driver: session.DriverHTTP},
		Log:     logging.DefaultConfig(),
		Dump:    DumpConfig{Format: "json"},
	}
	err := validateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.dsn is required")

	cfg.Session.DSN = "http://localhost:3000"
	assert.NoError(t, validateConfig(cfg))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a.yml", "b.yml", "c.yml"}, splitList([]string{"a.yml, b.yml", "", "c.yml"}))
	assert.Nil(t, splitList(nil))
}
