package shared

import (
	_ "embed"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Redis       RedisConfig       `toml:"redis"`
	Server      ServerConfig      `toml:"server"`
	Poller      PollerConfig      `toml:"poller"`
	Upstream    UpstreamConfig    `toml:"upstream"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// DatabaseConfig contains token store connection settings.
//
// Driver selects the backend: "sqlite" uses Path, "postgres" uses URL, "redis" uses [RedisConfig].
type DatabaseConfig struct {
	Driver       string `toml:"driver"`
	Path         string `toml:"path"`
	URL          string `toml:"url"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	PoolSize int    `toml:"pool_size"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host      string        `toml:"host"`
	Port      int           `toml:"port"`
	PublicURL string        `toml:"public_url"`
	StaticDir string        `toml:"static_dir"`
	Heartbeat time.Duration `toml:"heartbeat"`
}

// PollerConfig contains the playback poller timings.
type PollerConfig struct {
	RefreshMargin time.Duration `toml:"refresh_margin"`
	ErrorDelay    time.Duration `toml:"error_delay"`
	MaxDelay      time.Duration `toml:"max_delay"`
	EndSlack      time.Duration `toml:"end_slack"`
	Buffer        int           `toml:"buffer"`
	EmitIdle      bool          `toml:"emit_idle"`
}

// UpstreamConfig contains Spotify endpoint and client throttling settings.
type UpstreamConfig struct {
	APIBaseURL string        `toml:"api_base_url"`
	AuthURL    string        `toml:"auth_url"`
	TokenURL   string        `toml:"token_url"`
	RateLimit  float64       `toml:"rate_limit"`
	Burst      int           `toml:"burst"`
	Timeout    time.Duration `toml:"timeout"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Addr returns the host:port pair the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// CallbackURL returns the OAuth redirect URI, derived from the public URL when not set explicitly.
func (c *Config) CallbackURL() string {
	if c.Credentials.Spotify.RedirectURI != "" {
		return c.Credentials.Spotify.RedirectURI
	}
	return strings.TrimRight(c.Server.PublicURL, "/") + "/auth/callback"
}

// ApplyEnv overrides secrets from the environment.
//
// Recognized variables: SPOTIFY_CLIENT_ID, SPOTIFY_CLIENT_SECRET, DATABASE_URL, REDIS_ADDR.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Credentials.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Credentials.Spotify.ClientSecret = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
}

// Validate checks that the settings required to serve are present.
func (c *Config) Validate() error {
	if c.Credentials.Spotify.ClientID == "" || c.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client_id and client_secret are required", ErrMissingCredentials)
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("%w: database.path is required for sqlite", ErrInvalidConfig)
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("%w: database.url is required for postgres", ErrInvalidConfig)
		}
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.addr is required for redis", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.Database.Driver)
	}

	if c.Poller.Buffer <= 0 {
		return fmt.Errorf("%w: poller.buffer must be positive", ErrInvalidConfig)
	}
	for _, timing := range []struct {
		name string
		d    time.Duration
	}{
		{"refresh_margin", c.Poller.RefreshMargin},
		{"error_delay", c.Poller.ErrorDelay},
		{"max_delay", c.Poller.MaxDelay},
	} {
		if timing.d <= 0 {
			return fmt.Errorf("%w: poller.%s must be positive, got %v", ErrInvalidConfig, timing.name, timing.d)
		}
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
