// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for promptarena.
//
// Configuration comes from a TOML file with sensible defaults and
// environment variable overrides applied last.
//
// Configuration file locations (in order of precedence):
//   - path passed explicitly on the command line
//   - ~/.promptarena/config.toml
//   - Built-in defaults
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/promptarena/internal/model"
	"github.com/jeranaias/promptarena/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete promptarena configuration.
type Config struct {
	// APIBaseURL is the base URL of the OpenAI-compatible completions API.
	APIBaseURL string `toml:"api_base_url"`
	// APIKey authenticates against the completions API. Usually supplied
	// via the ARENA_API_KEY environment variable rather than the file.
	APIKey string `toml:"api_key"`

	// Battle configuration
	Battle BattleConfig `toml:"battle"`

	// Server configuration
	Server ServerConfig `toml:"server"`

	// Store configuration
	Store StoreConfig `toml:"store"`

	// Models is the static pool for round selection.
	Models []ModelConfig `toml:"models"`
}

// BattleConfig contains round engine tuning.
type BattleConfig struct {
	// CooldownSecs is how long a throttled model stays out of selection.
	CooldownSecs int `toml:"cooldown_secs"`
	// RequestTimeoutSecs bounds each completion attempt.
	RequestTimeoutSecs int `toml:"request_timeout_secs"`
	// MaxRetries is the retry budget for transient completion failures.
	MaxRetries int `toml:"max_retries"`
	// MaxPromptLength caps prompt size in characters.
	MaxPromptLength int `toml:"max_prompt_length"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Port for the arena HTTP API.
	Port int `toml:"port"`
	// BearerToken, when set, is required on every API request.
	BearerToken string `toml:"bearer_token"`
	// RateLimitRPM is the per-client request budget per minute.
	RateLimitRPM int `toml:"rate_limit_rpm"`
}

// StoreConfig contains vote persistence settings.
type StoreConfig struct {
	// Path to the SQLite vote database. Empty selects the default under
	// the config directory.
	Path string `toml:"path"`
}

// ModelConfig describes one pool entry in the config file.
type ModelConfig struct {
	ID            string `toml:"id"`
	Name          string `toml:"name"`
	Category      string `toml:"category"`
	ContextLength int    `toml:"context_length"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values, including the
// stock eight-model pool.
func Default() *Config {
	return &Config{
		APIBaseURL: "http://127.0.0.1:11434/v1",
		APIKey:     "",

		Battle: BattleConfig{
			CooldownSecs:       60,
			RequestTimeoutSecs: 60,
			MaxRetries:         2,
			MaxPromptLength:    2000,
		},

		Server: ServerConfig{
			Port:         8787,
			BearerToken:  "",
			RateLimitRPM: 60,
		},

		Store: StoreConfig{
			Path: "",
		},

		Models: []ModelConfig{
			{ID: "codellama:latest", Name: "CodeLlama", Category: "code", ContextLength: 16384},
			{ID: "deepseek-r1:14b", Name: "DeepSeek R1 14B", Category: "reasoning", ContextLength: 131072},
			{ID: "gemma3:12b", Name: "Gemma 3 12B", Category: "general", ContextLength: 131072},
			{ID: "llama3.1:70b-instruct-q4_K_M", Name: "Llama 3.1 70B Instruct", Category: "general", ContextLength: 131072},
			{ID: "llava:latest", Name: "LLaVA", Category: "vision", ContextLength: 4096},
			{ID: "mistral:latest", Name: "Mistral 7B", Category: "general", ContextLength: 32768},
			{ID: "phi4:latest", Name: "Phi-4", Category: "general", ContextLength: 16384},
			{ID: "qwen2.5:72b", Name: "Qwen 2.5 72B", Category: "general", ContextLength: 131072},
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the promptarena configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".promptarena"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultStorePath returns the default vote database location.
func DefaultStorePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "votes.db"), nil
}

// ensureSecurePermissions checks and fixes permissions on the config file.
// SECURITY: Config files should be 0600 (owner read/write only) to protect API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if mode := info.Mode().Perm(); mode != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file if present,
// falling back to defaults. Environment overrides are applied last and
// the result is validated.
func Load() (*Config, error) {
	cfg := Default()

	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := loadTOML(cfg, path); err != nil {
				return nil, fmt.Errorf("failed to load config: %w", err)
			}
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. Fields absent from the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := loadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadTOML decodes a TOML file over the given config.
// SECURITY: Checks and fixes file permissions on load.
func loadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems; warn and continue.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	// A [[models]] block in the file replaces the default pool entirely.
	var fileCfg Config
	meta, err := toml.DecodeFile(path, &fileCfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}

	fileCfg.Models = dedupeModels(fileCfg.Models)

	defaults := *cfg
	*cfg = mergeOverDefaults(defaults, fileCfg, meta)
	return nil
}

// mergeOverDefaults overlays decoded file values onto defaults, keeping
// the default for any key the file did not set.
func mergeOverDefaults(def Config, file Config, meta toml.MetaData) Config {
	out := def

	if meta.IsDefined("api_base_url") {
		out.APIBaseURL = file.APIBaseURL
	}
	if meta.IsDefined("api_key") {
		out.APIKey = file.APIKey
	}
	if meta.IsDefined("battle", "cooldown_secs") {
		out.Battle.CooldownSecs = file.Battle.CooldownSecs
	}
	if meta.IsDefined("battle", "request_timeout_secs") {
		out.Battle.RequestTimeoutSecs = file.Battle.RequestTimeoutSecs
	}
	if meta.IsDefined("battle", "max_retries") {
		out.Battle.MaxRetries = file.Battle.MaxRetries
	}
	if meta.IsDefined("battle", "max_prompt_length") {
		out.Battle.MaxPromptLength = file.Battle.MaxPromptLength
	}
	if meta.IsDefined("server", "port") {
		out.Server.Port = file.Server.Port
	}
	if meta.IsDefined("server", "bearer_token") {
		out.Server.BearerToken = file.Server.BearerToken
	}
	if meta.IsDefined("server", "rate_limit_rpm") {
		out.Server.RateLimitRPM = file.Server.RateLimitRPM
	}
	if meta.IsDefined("store", "path") {
		out.Store.Path = file.Store.Path
	}
	if meta.IsDefined("models") {
		out.Models = file.Models
	}
	return out
}

func dedupeModels(models []ModelConfig) []ModelConfig {
	seen := make(map[string]bool, len(models))
	out := models[:0]
	for _, m := range models {
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies ARENA_* environment variables over the
// loaded configuration. Environment always wins over the file.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("ARENA_API_KEY"); v != "" {
		c.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("ARENA_API_BASE_URL"); v != "" {
		c.APIBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("ARENA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("ARENA_BEARER_TOKEN"); v != "" {
		c.Server.BearerToken = v
	}
	if v := os.Getenv("ARENA_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("ARENA_COOLDOWN_SECS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Battle.CooldownSecs = secs
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one invalid config field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates all config problems found in one pass.
type ValidationErrors []*ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// ErrMissingAPIKey and ErrTooFewModels are the fatal startup conditions.
var (
	ErrMissingAPIKey = errors.New("API key is required (set ARENA_API_KEY or api_key)")
	ErrTooFewModels  = errors.New("at least 2 models must be configured")
)

// Validate checks the configuration for fatal and structural problems.
// A missing API key and a pool below two models abort startup; other
// problems are collected into ValidationErrors.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, &ValidationError{Field: "api_key", Message: ErrMissingAPIKey.Error()})
	}
	if len(c.Models) < 2 {
		errs = append(errs, &ValidationError{Field: "models", Message: ErrTooFewModels.Error()})
	}
	if c.APIBaseURL == "" {
		errs = append(errs, &ValidationError{Field: "api_base_url", Message: "must not be empty"})
	} else if u, err := url.Parse(c.APIBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, &ValidationError{Field: "api_base_url", Message: "must be a valid http(s) URL"})
	}
	if c.Battle.CooldownSecs <= 0 {
		errs = append(errs, &ValidationError{Field: "battle.cooldown_secs", Message: "must be positive"})
	}
	if c.Battle.RequestTimeoutSecs <= 0 {
		errs = append(errs, &ValidationError{Field: "battle.request_timeout_secs", Message: "must be positive"})
	}
	if c.Battle.MaxRetries < 0 {
		errs = append(errs, &ValidationError{Field: "battle.max_retries", Message: "must not be negative"})
	}
	if c.Battle.MaxPromptLength <= 0 {
		errs = append(errs, &ValidationError{Field: "battle.max_prompt_length", Message: "must be positive"})
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{Field: "server.port", Message: "must be in 1-65535"})
	}
	if c.Server.RateLimitRPM < 0 {
		errs = append(errs, &ValidationError{Field: "server.rate_limit_rpm", Message: "must not be negative"})
	}
	for i, m := range c.Models {
		if strings.TrimSpace(m.ID) == "" {
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("models[%d].id", i),
				Message: "must not be empty",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// CooldownWindow returns the throttle cooldown as a duration.
func (c *Config) CooldownWindow() time.Duration {
	return time.Duration(c.Battle.CooldownSecs) * time.Second
}

// RequestTimeout returns the per-attempt completion timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Battle.RequestTimeoutSecs) * time.Second
}

// RegistryModels converts the configured pool into registry entries.
func (c *Config) RegistryModels() []model.Model {
	out := make([]model.Model, 0, len(c.Models))
	for _, m := range c.Models {
		out = append(out, model.Model{
			ID:            m.ID,
			Name:          m.Name,
			Category:      m.Category,
			ContextLength: m.ContextLength,
		})
	}
	return out
}

// =============================================================================
// SAVE
// =============================================================================

// Save writes the configuration to the default config path with 0600
// permissions, creating the directory if needed.
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// SECURITY: 0600 keeps the API key private to the owner.
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
