package runtime

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, "host=localhost port=5432 user=postgres dbname=postgres sslmode=prefer", cfg.ConnString())
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "")

	path := filepath.Join(t.TempDir(), "pebble.yaml")
	data := []byte("host: db.internal\nport: 6432\ndatabase: blog\nuser: app\npassword: secret\nmax_conns: 4\nmodels: ./internal/models\nlock_timeout: 2s\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 6432, cfg.Port)
	assert.Equal(t, int32(4), cfg.MaxConns)
	assert.Equal(t, int32(2), cfg.MinConns, "unset keys keep defaults")
	assert.Equal(t, "./internal/models", cfg.Models)
	assert.Equal(t, 2*time.Second, cfg.LockTimeout)
	assert.Equal(t, "host=db.internal port=6432 user=app dbname=blog sslmode=prefer password=secret", cfg.ConnString())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pebble.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: postgres://file/db\n"), 0o644))
	t.Setenv(EnvDatabaseURL, "postgres://env/db")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.ConnString())
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [1, 2\n"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestPoolConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "postgres://app@db.internal/blog?application_name=worker"
	cfg.MaxConns = 3
	cfg.LockTimeout = 1500 * time.Millisecond

	pc, err := poolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(3), pc.MaxConns)
	assert.Equal(t, "worker", pc.ConnConfig.RuntimeParams["application_name"], "URL parameters win")
	assert.Equal(t, "1500", pc.ConnConfig.RuntimeParams["lock_timeout"])

	cfg.URL = "postgres://app@db.internal/blog"
	cfg.LockTimeout = 0
	pc, err = poolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "pebble-permanent", pc.ConnConfig.RuntimeParams["application_name"])
	assert.NotContains(t, pc.ConnConfig.RuntimeParams, "lock_timeout")

	_, err = poolConfig(&Config{URL: "postgres://%zz"})
	assert.Error(t, err)
}
