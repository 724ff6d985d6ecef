// Package config loads song-posts configuration from an optional TOML file
// and environment variables. Environment variables override file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// ErrMissingCredentials is returned when SPOTIFY_ID or SPOTIFY_SECRET is not set.
var ErrMissingCredentials = errors.New("missing SPOTIFY_ID or SPOTIFY_SECRET")

const (
	DefaultAddr        = "127.0.0.1:8080"
	DefaultRedirectURI = "http://127.0.0.1:8080/callback"
	DefaultBackendURL  = "http://127.0.0.1:8080"
)

// Config holds application configuration.
type Config struct {
	Spotify  SpotifyConfig  `toml:"spotify"`
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
}

// SpotifyConfig holds Spotify app credentials and client limits.
type SpotifyConfig struct {
	ClientID     string  `toml:"client_id"`
	ClientSecret string  `toml:"client_secret"`
	RedirectURI  string  `toml:"redirect_uri"`
	RPS          float64 `toml:"rps"` // 0 disables client-side rate limiting
}

// ServerConfig holds HTTP settings. BackendURL is where CLI commands reach a
// running server.
type ServerConfig struct {
	Addr       string `toml:"addr"`
	BackendURL string `toml:"backend_url"`
}

// DatabaseConfig holds the PostgreSQL URL. Empty selects in-memory stores.
type DatabaseConfig struct {
	URL string `toml:"url"`
}

// LogConfig holds the log level name.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns a Config with defaults applied.
func Default() *Config {
	return &Config{
		Spotify: SpotifyConfig{RedirectURI: DefaultRedirectURI},
		Server:  ServerConfig{Addr: DefaultAddr, BackendURL: DefaultBackendURL},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads the TOML file at path, if path is non-empty and the file exists,
// and then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Spotify.ClientID, "SPOTIFY_ID")
	setString(&c.Spotify.ClientSecret, "SPOTIFY_SECRET")
	setString(&c.Spotify.RedirectURI, "SONGPOSTS_REDIRECT_URI")
	setString(&c.Server.Addr, "SONGPOSTS_ADDR")
	setString(&c.Server.BackendURL, "SONGPOSTS_BACKEND_URL")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Log.Level, "SONGPOSTS_LOG_LEVEL")

	if v := os.Getenv("SONGPOSTS_CATALOG_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parsing SONGPOSTS_CATALOG_RPS: %w", err)
		}
		c.Spotify.RPS = rps
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// RequireSpotify returns ErrMissingCredentials unless both Spotify app
// credentials are set.
func (c *Config) RequireSpotify() error {
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return ErrMissingCredentials
	}
	return nil
}
