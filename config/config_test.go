package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("applies defaults for missing keys", func(t *testing.T) {
		path := writeConfig(t, `
[jwt]
secret = "s3cret"

[database]
driver = "sqlite"
sqlite_path = "test.db"
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, 30, cfg.Websocket.HeartbeatInterval)
		assert.Equal(t, 60, cfg.Websocket.ConnectionTimeout)
		assert.Equal(t, "taskroom.events", cfg.Kafka.Topics.Events)
		assert.EqualValues(t, 100, cfg.Files.MaxSizeMB)
		assert.Equal(t, 24, cfg.JWT.ExpireHours)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := writeConfig(t, `
[server]
port = 8081
mode = "debug"

[jwt]
secret = "abc"

[kafka]
enabled = true
brokers = ["10.0.0.1:9092", "10.0.0.2:9092"]
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 8081, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Server.Mode)
		assert.True(t, cfg.Kafka.Enabled)
		assert.Len(t, cfg.Kafka.Brokers, 2)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, `
[jwt]
secret = "from-file"
`)
		t.Setenv("TASKROOM_JWT_SECRET", "from-env")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.JWT.Secret)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})

	t.Run("invalid configuration is rejected", func(t *testing.T) {
		path := writeConfig(t, `
[database]
driver = "mongo"
`)
		_, err := LoadConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret")
		assert.Contains(t, err.Error(), "mongo")
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:  DatabaseConfig{Driver: "postgres"},
			JWT:       JWTConfig{Secret: "x"},
			Websocket: WebsocketConfig{HeartbeatInterval: 10, ConnectionTimeout: 30},
			Files:     FilesConfig{MaxSizeMB: 1},
		}
	}

	assert.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Websocket.ConnectionTimeout = 5
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Kafka.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Files.MaxSizeMB = 0
	assert.Error(t, cfg.Validate())
}
