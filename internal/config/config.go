// Package config loads the oceep configuration from YAML with
// environment overrides on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all oceep configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Backend API configuration
	API APIConfig `yaml:"api"`

	// Cloud persistence (optional)
	Cloud CloudConfig `yaml:"cloud"`

	// Local persistence
	Storage StorageConfig `yaml:"storage"`

	// Chat defaults
	Chat ChatConfig `yaml:"chat"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the Gemini backend.
type APIConfig struct {
	// Keys is the rotation pool; each attempt takes the next key.
	Keys    []string `yaml:"keys"`
	Timeout string   `yaml:"timeout"`
}

// CloudConfig configures the REST persistence sink. Empty URL
// disables it.
type CloudConfig struct {
	URL     string `yaml:"url"`
	AnonKey string `yaml:"anon_key"`
	UserID  string `yaml:"user_id"`
}

// StorageConfig configures local persistence.
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	DatabaseFile string `yaml:"database_file"`
}

// ChatConfig holds per-user chat defaults.
type ChatConfig struct {
	Nickname    string `yaml:"nickname"`
	DefaultTier string `yaml:"default_tier"`
	DefaultMood string `yaml:"default_mood"`
	PersonaID   string `yaml:"persona_id"`

	// Incognito disables both persistence sinks.
	Incognito bool `yaml:"incognito"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	dataDir := ".oceep"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".oceep")
	}

	return &Config{
		Name:    "oceep",
		Version: "0.1.0",

		API: APIConfig{
			Timeout: "120s",
		},

		Storage: StorageConfig{
			DataDir:      dataDir,
			DatabaseFile: "oceep.db",
		},

		Chat: ChatConfig{
			DefaultTier: "smart",
			DefaultMood: "default",
			PersonaID:   "bot-friend",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields
// the defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// API keys: OCEEP_API_KEYS wins, then the conventional Gemini
	// variables. Comma-separated lists feed the rotation pool.
	for _, name := range []string{"OCEEP_API_KEYS", "GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		if v := os.Getenv(name); v != "" {
			c.API.Keys = splitKeys(v)
			break
		}
	}

	if v := os.Getenv("OCEEP_CLOUD_URL"); v != "" {
		c.Cloud.URL = v
	} else if v := os.Getenv("SUPABASE_URL"); v != "" {
		c.Cloud.URL = v
	}
	if v := os.Getenv("OCEEP_CLOUD_ANON_KEY"); v != "" {
		c.Cloud.AnonKey = v
	} else if v := os.Getenv("SUPABASE_ANON_KEY"); v != "" {
		c.Cloud.AnonKey = v
	}
	if v := os.Getenv("OCEEP_USER_ID"); v != "" {
		c.Cloud.UserID = v
	}

	if v := os.Getenv("OCEEP_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("OCEEP_NICKNAME"); v != "" {
		c.Chat.Nickname = v
	}
	if v := os.Getenv("OCEEP_TIER"); v != "" {
		c.Chat.DefaultTier = v
	}
	if v := os.Getenv("OCEEP_DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		c.Logging.DebugMode = true
	}
}

func splitKeys(v string) []string {
	var keys []string
	for _, k := range strings.Split(v, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// DatabasePath returns the absolute sqlite path.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.DatabaseFile)
}

// APITimeout parses the API timeout, falling back to two minutes.
func (c *Config) APITimeout() time.Duration {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// Validate checks the parts that have no workable fallback.
func (c *Config) Validate() error {
	if len(c.API.Keys) == 0 {
		return fmt.Errorf("no API keys configured (set OCEEP_API_KEYS or GEMINI_API_KEY)")
	}
	if c.Cloud.URL != "" && c.Cloud.AnonKey == "" {
		return fmt.Errorf("cloud url set but anon key missing")
	}
	return nil
}
