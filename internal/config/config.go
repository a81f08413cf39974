package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wolfeidau/jobcrew/internal/client"
	"github.com/wolfeidau/jobcrew/internal/session"
)

// Config is the optional settings file for jobcrew-cli.
type Config struct {
	Server         string `yaml:"server" json:"server"`
	SessionDir     string `yaml:"session_dir" json:"session_dir"`
	Cache          bool   `yaml:"cache" json:"cache"`
	CacheDir       string `yaml:"cache_dir" json:"cache_dir"`
	SignInPath     string `yaml:"sign_in_path" json:"sign_in_path"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Load reads a YAML or JSON config file, picking the format by extension.
// An empty path yields an empty config.
func Load(path string) (*Config, error) {
	var config Config
	if path == "" {
		return &config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Determine file format by extension
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	} else {
		// Default to YAML
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if config.TimeoutSeconds < 0 {
		return nil, fmt.Errorf("timeout_seconds must not be negative, got %d", config.TimeoutSeconds)
	}

	return &config, nil
}

// Override returns c with every non-zero field of flags applied on top.
// Flags and environment variables win over the file.
func (c Config) Override(flags Config) Config {
	if flags.Server != "" {
		c.Server = flags.Server
	}
	if flags.SessionDir != "" {
		c.SessionDir = flags.SessionDir
	}
	if flags.Cache {
		c.Cache = true
	}
	if flags.CacheDir != "" {
		c.CacheDir = flags.CacheDir
	}
	if flags.SignInPath != "" {
		c.SignInPath = flags.SignInPath
	}
	if flags.TimeoutSeconds > 0 {
		c.TimeoutSeconds = flags.TimeoutSeconds
	}
	return c
}

// WithDefaults fills the fields left unset by both the file and the flags.
// SessionDir stays empty so the storage picks its own default.
func (c Config) WithDefaults() Config {
	defaults := client.DefaultConfig()

	if c.Server == "" {
		c.Server = defaults.ServerURL
	}
	if c.SignInPath == "" {
		c.SignInPath = session.DefaultSignInPath
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = int(defaults.Timeout / time.Second)
	}
	return c
}

// Timeout is TimeoutSeconds as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
