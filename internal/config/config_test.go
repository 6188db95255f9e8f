package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setKeys(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "editor")
	t.Setenv("PUBLIC_KEY", "viewer")
	t.Setenv("SESSION_SECRET", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setKeys(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 10, cfg.PageSize)
	assert.Equal(t, DriverFile, cfg.Storage.Driver)
	assert.Equal(t, 30*24*time.Hour, cfg.Sessions.RememberFor)
	assert.Equal(t, int64(5<<20), cfg.Uploads.MaxBytes)
	assert.Equal(t, "journal/posts", cfg.MQTT.Topic)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	setKeys(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
}

func TestLoad_FileThenEnv(t *testing.T) {
	setKeys(t)
	path := filepath.Join(t.TempDir(), "journal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 8080
page_size: 20
log_level: debug
storage:
  driver: sqlite
  database_path: /var/lib/journal/journal.db
sessions:
  idle_timeout: 2h
media:
  image_extensions: [png, jpg]
mqtt:
  broker: tcp://localhost:1883
`), 0o644))

	t.Setenv("PORT", "9090")
	t.Setenv("JOURNAL_WATCH_POSTS", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port, "environment wins over the file")
	assert.Equal(t, 20, cfg.PageSize)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/journal/journal.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 2*time.Hour, cfg.Sessions.IdleTimeout)
	assert.Equal(t, 30*24*time.Hour, cfg.Sessions.RememberFor, "unset fields keep defaults")
	assert.Equal(t, []string{"png", "jpg"}, cfg.Media.ImageExtensions)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.False(t, cfg.Storage.WatchPosts)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_BadFile(t *testing.T) {
	setKeys(t)
	path := filepath.Join(t.TempDir(), "journal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [not a number"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_BadEnv(t *testing.T) {
	setKeys(t)
	t.Setenv("PORT", "eighty")

	_, err := Load("")
	assert.ErrorContains(t, err, "PORT")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Auth = AuthConfig{EditorKey: "e", ViewerKey: "v", SessionSecret: "s"}
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing editor key", func(c *Config) { c.Auth.EditorKey = "" }},
		{"same keys", func(c *Config) { c.Auth.ViewerKey = c.Auth.EditorKey }},
		{"missing session secret", func(c *Config) { c.Auth.SessionSecret = "" }},
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"bad page size", func(c *Config) { c.PageSize = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"file driver without path", func(c *Config) { c.Storage.PostsPath = "" }},
		{"no database", func(c *Config) { c.Storage.DatabasePath = "" }},
		{"zero idle timeout", func(c *Config) { c.Sessions.IdleTimeout = 0 }},
		{"no upload dir", func(c *Config) { c.Uploads.Dir = "" }},
		{"zero upload limit", func(c *Config) { c.Uploads.MaxBytes = 0 }},
		{"relative url prefix", func(c *Config) { c.Uploads.URLPrefix = "uploads/" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadStorage_NoSecretsNeeded(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "")
	t.Setenv("PUBLIC_KEY", "")
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("JOURNAL_POSTS_PATH", "/tmp/journal/posts.json")

	st, err := LoadStorage("")
	require.NoError(t, err)
	assert.Equal(t, DriverFile, st.Driver)
	assert.Equal(t, "/tmp/journal/posts.json", st.PostsPath)

	t.Setenv("JOURNAL_STORAGE_DRIVER", "postgres")
	_, err = LoadStorage("")
	assert.Error(t, err)
}
