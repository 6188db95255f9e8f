package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers for the posts document.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Config holds all configuration for the application.
type Config struct {
	// Hostname is the public hostname where this service is reachable.
	Hostname string `yaml:"hostname"`

	// Port is the HTTP server port.
	Port int `yaml:"port"`

	// StaticDir, if set, is served at /.
	StaticDir string `yaml:"static_dir"`

	// PageSize is the number of posts per page.
	PageSize int `yaml:"page_size"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	Sessions SessionsConfig `yaml:"sessions"`
	Uploads  UploadsConfig  `yaml:"uploads"`
	Media    MediaConfig    `yaml:"media"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
}

// AuthConfig holds the shared secrets. They are normally supplied through
// the environment rather than the config file.
type AuthConfig struct {
	// EditorKey grants the editor role (PRIVATE_KEY).
	EditorKey string `yaml:"editor_key"`
	// ViewerKey grants the viewer role (PUBLIC_KEY).
	ViewerKey string `yaml:"viewer_key"`
	// SessionSecret signs session tokens (SESSION_SECRET).
	SessionSecret string `yaml:"session_secret"`
}

type StorageConfig struct {
	// Driver selects where the posts document lives: "file" or "sqlite".
	Driver string `yaml:"driver"`
	// PostsPath is the posts document for the file driver.
	PostsPath string `yaml:"posts_path"`
	// DatabasePath is the SQLite database holding sessions, and the posts
	// document for the sqlite driver.
	DatabasePath string `yaml:"database_path"`
	// WatchPosts reloads the post log when PostsPath is edited by hand.
	WatchPosts bool `yaml:"watch_posts"`
	// WatchDebounce groups bursts of file events.
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

type SessionsConfig struct {
	RememberFor     time.Duration `yaml:"remember_for"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	CookieName      string        `yaml:"cookie_name"`
	SecureCookies   bool          `yaml:"secure_cookies"`
}

type UploadsConfig struct {
	Dir       string `yaml:"dir"`
	URLPrefix string `yaml:"url_prefix"`
	MaxBytes  int64  `yaml:"max_bytes"`
	// Types maps accepted content types to stored file extensions.
	Types map[string]string `yaml:"types"`
}

type MediaConfig struct {
	ImageExtensions []string `yaml:"image_extensions"`
	ImageHosts      []string `yaml:"image_hosts"`
}

// MQTTConfig enables the MQTT announcer when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	UseTLS   bool   `yaml:"use_tls"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Hostname: "localhost",
		Port:     3000,
		PageSize: 10,
		LogLevel: "info",
		Storage: StorageConfig{
			Driver:        DriverFile,
			PostsPath:     "data/posts.json",
			DatabasePath:  "data/journal.db",
			WatchPosts:    true,
			WatchDebounce: 250 * time.Millisecond,
		},
		Sessions: SessionsConfig{
			RememberFor:     30 * 24 * time.Hour,
			IdleTimeout:     12 * time.Hour,
			CleanupInterval: time.Hour,
			CookieName:      "journal_session",
		},
		Uploads: UploadsConfig{
			Dir:       "public/uploads",
			URLPrefix: "/uploads/",
			MaxBytes:  5 << 20,
		},
		MQTT: MQTTConfig{
			Topic: "journal/posts",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is set and the file exists) and environment variables, in that
// order, and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := loadUnvalidated(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStorage resolves only the storage settings, for tools that open the
// post document directly and need none of the server's secrets.
func LoadStorage(path string) (StorageConfig, error) {
	cfg, err := loadUnvalidated(path)
	if err != nil {
		return StorageConfig{}, err
	}
	switch cfg.Storage.Driver {
	case DriverFile, DriverSQLite:
	default:
		return StorageConfig{}, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	return cfg.Storage, nil
}

func loadUnvalidated(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("PRIVATE_KEY", &c.Auth.EditorKey)
	str("PUBLIC_KEY", &c.Auth.ViewerKey)
	str("SESSION_SECRET", &c.Auth.SessionSecret)
	str("JOURNAL_HOSTNAME", &c.Hostname)
	str("JOURNAL_STATIC_DIR", &c.StaticDir)
	str("JOURNAL_LOG_LEVEL", &c.LogLevel)
	str("JOURNAL_STORAGE_DRIVER", &c.Storage.Driver)
	str("JOURNAL_POSTS_PATH", &c.Storage.PostsPath)
	str("JOURNAL_DATABASE_PATH", &c.Storage.DatabasePath)
	str("JOURNAL_UPLOAD_DIR", &c.Uploads.Dir)
	str("JOURNAL_MQTT_BROKER", &c.MQTT.Broker)
	str("JOURNAL_MQTT_USERNAME", &c.MQTT.Username)
	str("JOURNAL_MQTT_PASSWORD", &c.MQTT.Password)
	str("JOURNAL_MQTT_TOPIC", &c.MQTT.Topic)

	ints := []struct {
		key string
		dst *int
	}{
		{"PORT", &c.Port},
		{"JOURNAL_PAGE_SIZE", &c.PageSize},
	}
	for _, e := range ints {
		if v := getenv(e.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", e.key, err)
			}
			*e.dst = n
		}
	}

	if v := getenv("JOURNAL_UPLOAD_MAX_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid JOURNAL_UPLOAD_MAX_BYTES: %w", err)
		}
		c.Uploads.MaxBytes = n
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"JOURNAL_WATCH_POSTS", &c.Storage.WatchPosts},
		{"JOURNAL_SECURE_COOKIES", &c.Sessions.SecureCookies},
		{"JOURNAL_MQTT_TLS", &c.MQTT.UseTLS},
	}
	for _, e := range bools {
		if v := getenv(e.key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", e.key, err)
			}
			*e.dst = b
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Auth.EditorKey == "" || c.Auth.ViewerKey == "" {
		return fmt.Errorf("PRIVATE_KEY and PUBLIC_KEY are required")
	}
	if c.Auth.EditorKey == c.Auth.ViewerKey {
		return fmt.Errorf("PRIVATE_KEY and PUBLIC_KEY must differ")
	}
	if c.Auth.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PageSize < 1 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}

	switch c.Storage.Driver {
	case DriverFile:
		if c.Storage.PostsPath == "" {
			return fmt.Errorf("storage.posts_path is required for the file driver")
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path is required")
	}

	if c.Sessions.RememberFor <= 0 || c.Sessions.IdleTimeout <= 0 || c.Sessions.CleanupInterval <= 0 {
		return fmt.Errorf("session durations must be positive")
	}
	if c.Uploads.Dir == "" {
		return fmt.Errorf("uploads.dir is required")
	}
	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("uploads.max_bytes must be positive, got %d", c.Uploads.MaxBytes)
	}
	if !strings.HasPrefix(c.Uploads.URLPrefix, "/") {
		return fmt.Errorf("uploads.url_prefix must start with /")
	}
	return nil
}

// SlogLevel returns LogLevel as a slog level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
