package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Auth        AuthConfig        `toml:"auth"`
	Log         LogConfig         `toml:"log"`
	Transfer    TransferConfig    `toml:"transfer"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify    SpotifyConfig    `toml:"spotify"`
	Tidal      TidalConfig      `toml:"tidal"`
	YouTube    YouTubeConfig    `toml:"youtube"`
	AppleMusic AppleMusicConfig `toml:"applemusic"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// TidalConfig contains TIDAL device-login credentials.
type TidalConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	CountryCode  string `toml:"country_code"`
}

// YouTubeConfig points at the YouTube Music proxy.
type YouTubeConfig struct {
	ProxyURL    string `toml:"proxy_url"`
	HeadersPath string `toml:"headers_path"`
}

// AppleMusicConfig scopes search links to a storefront (e.g. "us").
type AppleMusicConfig struct {
	Storefront string `toml:"storefront"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr joins host and port for [net/http.Server].
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig locates stored token sets and lock files.
type AuthConfig struct {
	TokenDir string `toml:"token_dir"`
}

// TokenPath returns the token file for a provider.
func (a AuthConfig) TokenPath(provider string) string {
	return filepath.Join(ExpandHome(a.TokenDir), provider+"_token.json")
}

// LogConfig sets the logger level.
type LogConfig struct {
	Level string `toml:"level"`
}

// TransferConfig tunes the orchestrator.
type TransferConfig struct {
	Concurrency                     int     `toml:"concurrency"`
	BatchSize                       int     `toml:"batch_size"`
	MaxAttempts                     int     `toml:"max_attempts"`
	BackoffMS                       int     `toml:"backoff_ms"`
	RequestTimeoutSeconds           int     `toml:"request_timeout_seconds"`
	RequestsPerSecond               float64 `toml:"requests_per_second"`
	SearchLimit                     int     `toml:"search_limit"`
	RateLimitedAbortRatio           float64 `toml:"rate_limited_abort_ratio"`
	MaxConsecutiveTransportFailures int     `toml:"max_consecutive_transport_failures"`
	SkipDuplicates                  bool    `toml:"skip_duplicates"`
	SearchAllArtists                bool    `toml:"search_all_artists"`
	SessionTTLMinutes               int     `toml:"session_ttl_minutes"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// LoadConfigOrDefault loads path when it exists and falls back to [DefaultConfig] otherwise.
func LoadConfigOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
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

// SaveConfig encodes config as TOML and writes it to path.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks values the orchestrator and server cannot run without.
func (c *Config) Validate() error {
	switch {
	case c.Database.Path == "":
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("%w: server.port must be between 1 and 65535", ErrInvalidConfig)
	case c.Transfer.RateLimitedAbortRatio < 0 || c.Transfer.RateLimitedAbortRatio > 1:
		return fmt.Errorf("%w: transfer.rate_limited_abort_ratio must be within [0,1]", ErrInvalidConfig)
	case c.Transfer.MaxAttempts < 0:
		return fmt.Errorf("%w: transfer.max_attempts must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
