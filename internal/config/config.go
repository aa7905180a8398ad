// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for turochat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.turochat/config.toml
//   - ~/.turochat/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/turochat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete turochat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Completion endpoint configuration
	Cloud CloudConfig `toml:"cloud" json:"cloud"`

	// Local storage medium configuration
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Session controller behavior
	Session SessionConfig `toml:"session" json:"session"`

	// Logging configuration
	Log LogConfig `toml:"log" json:"log"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`
}

// CloudConfig contains completion endpoint configuration.
type CloudConfig struct {
	// BaseURL is the OpenAI-compatible API root (without /chat/completions)
	BaseURL string `toml:"base_url" json:"base_url"`
	// Model is the fixed model identifier sent with every request
	Model string `toml:"model" json:"model"`
	// Temperature is the sampling temperature sent with every request
	Temperature float64 `toml:"temperature" json:"temperature"`
	// TimeoutSecs bounds a single completion request
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// StorageConfig selects and configures the local storage medium.
type StorageConfig struct {
	// Driver is one of: "file", "sqlite", "bolt", "redis", "memory"
	Driver string `toml:"driver" json:"driver"`
	// Path is the data directory (file) or database file (sqlite, bolt).
	// Empty means a default under ~/.turochat.
	Path string `toml:"path" json:"path"`
	// Namespace prefixes every storage key
	Namespace string `toml:"namespace" json:"namespace"`

	// Redis connection (driver = "redis")
	RedisAddr     string `toml:"redis_addr" json:"redis_addr"`
	RedisPassword string `toml:"redis_password" json:"redis_password"`
	RedisDB       int    `toml:"redis_db" json:"redis_db"`
}

// SessionConfig controls the session controller.
type SessionConfig struct {
	// StrictLoad surfaces a not-found error when loading a missing chat
	// instead of silently ignoring it.
	StrictLoad bool `toml:"strict_load" json:"strict_load"`
	// TitleMaxRunes is the length of the derived chat title prefix
	TitleMaxRunes int `toml:"title_max_runes" json:"title_max_runes"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	// Level is one of: "debug", "info", "warn", "error"
	Level string `toml:"level" json:"level"`
	// Format is "text" or "json"
	Format string `toml:"format" json:"format"`
	// File is the log file path (empty = stderr)
	File string `toml:"file" json:"file"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Markdown renders assistant replies as markdown in a terminal
	Markdown bool `toml:"markdown" json:"markdown"`
	// Theme is the markdown theme: "dark", "light", "auto", "notty"
	Theme string `toml:"theme" json:"theme"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Storage drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Cloud: CloudConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			TimeoutSecs: 60,
		},

		Storage: StorageConfig{
			Driver:    DriverFile,
			Namespace: "turochat",
			RedisAddr: "127.0.0.1:6379",
		},

		Session: SessionConfig{
			StrictLoad:    false,
			TitleMaxRunes: 30,
		},

		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},

		UI: UIConfig{
			Markdown: true,
			Theme:    "auto",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the turochat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".turochat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// StoragePath returns the effective storage path for the configured driver.
// The file driver gets a directory, sqlite and bolt get a database file.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	switch c.Storage.Driver {
	case DriverSQLite:
		return filepath.Join(dir, "turochat.db"), nil
	case DriverBolt:
		return filepath.Join(dir, "turochat.bolt"), nil
	default:
		return filepath.Join(dir, "data"), nil
	}
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files may hold a Redis password; keep them 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	if path, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}
	if path, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file on top of cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file on top of cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}

	if c.Cloud.BaseURL == "" {
		c.Cloud.BaseURL = defaults.Cloud.BaseURL
	}
	if c.Cloud.Model == "" {
		c.Cloud.Model = defaults.Cloud.Model
	}
	if c.Cloud.TimeoutSecs == 0 {
		c.Cloud.TimeoutSecs = defaults.Cloud.TimeoutSecs
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = defaults.Storage.Driver
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Storage.Namespace == "" {
		c.Storage.Namespace = defaults.Storage.Namespace
	}
	if c.Storage.RedisAddr == "" {
		c.Storage.RedisAddr = defaults.Storage.RedisAddr
	}

	if c.Session.TitleMaxRunes == 0 {
		c.Session.TitleMaxRunes = defaults.Session.TitleMaxRunes
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}

	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var sb strings.Builder
	sb.WriteString("# turochat configuration file\n")
	sb.WriteString("# Generated by turochat - edit with care\n\n")

	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFileWithDir(path, []byte(sb.String()), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Cloud.BaseURL != "" {
		u, err := url.Parse(c.Cloud.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "cloud.base_url",
				Message: fmt.Sprintf("invalid URL '%s'", c.Cloud.BaseURL),
			})
		}
	}
	if c.Cloud.Temperature < 0 || c.Cloud.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "cloud.temperature",
			Message: fmt.Sprintf("must be between 0 and 2, got %v", c.Cloud.Temperature),
		})
	}
	if c.Cloud.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "cloud.timeout_secs",
			Message: "cannot be negative",
		})
	}

	validDrivers := map[string]bool{
		DriverFile: true, DriverSQLite: true, DriverBolt: true, DriverRedis: true, DriverMemory: true,
	}
	if !validDrivers[strings.ToLower(c.Storage.Driver)] {
		errs = append(errs, ValidationError{
			Field:   "storage.driver",
			Message: fmt.Sprintf("invalid driver '%s', must be one of: file, sqlite, bolt, redis, memory", c.Storage.Driver),
		})
	}
	if strings.ContainsAny(c.Storage.Namespace, "/\\: ") {
		errs = append(errs, ValidationError{
			Field:   "storage.namespace",
			Message: "must not contain path separators, colons or spaces",
		})
	}
	if c.Storage.RedisDB < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.redis_db",
			Message: "cannot be negative",
		})
	}

	if c.Session.TitleMaxRunes < 0 {
		errs = append(errs, ValidationError{
			Field:   "session.title_max_runes",
			Message: "cannot be negative",
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: text, json", c.Log.Format),
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true, "notty": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto, notty", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - TUROCHAT_BASE_URL: overrides cloud.base_url
//   - TUROCHAT_MODEL: overrides cloud.model
//   - TUROCHAT_STORAGE_DRIVER: overrides storage.driver
//   - TUROCHAT_STORAGE_PATH: overrides storage.path
//   - TUROCHAT_REDIS_ADDR: overrides storage.redis_addr
//   - TUROCHAT_REDIS_PASSWORD: overrides storage.redis_password
//   - TUROCHAT_REDIS_DB: overrides storage.redis_db
//   - TUROCHAT_STRICT_LOAD: "1" or "true" enables session.strict_load
//   - TUROCHAT_LOG_LEVEL: overrides log.level
//   - TUROCHAT_LOG_FORMAT: overrides log.format
//   - TUROCHAT_THEME: overrides ui.theme
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TUROCHAT_BASE_URL"); v != "" {
		c.Cloud.BaseURL = v
	}
	if v := os.Getenv("TUROCHAT_MODEL"); v != "" {
		c.Cloud.Model = v
	}
	if v := os.Getenv("TUROCHAT_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("TUROCHAT_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("TUROCHAT_REDIS_ADDR"); v != "" {
		c.Storage.RedisAddr = v
	}
	if v := os.Getenv("TUROCHAT_REDIS_PASSWORD"); v != "" {
		c.Storage.RedisPassword = v
	}
	if v := os.Getenv("TUROCHAT_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Storage.RedisDB = db
		}
	}
	if v := os.Getenv("TUROCHAT_STRICT_LOAD"); v != "" {
		c.Session.StrictLoad = v == "1" || strings.ToLower(v) == "true"
	}
	if v := os.Getenv("TUROCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("TUROCHAT_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("TUROCHAT_THEME"); v != "" {
		c.UI.Theme = v
	}
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
