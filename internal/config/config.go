// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for
// sciquery.
//
// Supports TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.sciquery/config.toml
//   - ~/.sciquery/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/sciquery/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete sciquery configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Server configuration
	Server ServerConfig `toml:"server" json:"server"`

	// LLM provider configuration
	Providers ProvidersConfig `toml:"providers" json:"providers"`

	// Vector retrieval configuration
	Retrieval RetrievalConfig `toml:"retrieval" json:"retrieval"`

	// Reranking configuration
	Rerank RerankConfig `toml:"rerank" json:"rerank"`

	// Web search configuration
	Search SearchConfig `toml:"search" json:"search"`

	// Query history configuration
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Client (CLI/TUI) configuration
	Client ClientConfig `toml:"client" json:"client"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Port is the listen port.
	Port int `toml:"port" json:"port"`
	// MaxConcurrent is the number of questions processed at once; further
	// requests queue.
	MaxConcurrent int `toml:"max_concurrent" json:"max_concurrent"`
	// BearerToken enables API authentication when non-empty.
	BearerToken string `toml:"bearer_token" json:"bearer_token"`
	// AllowedOrigins overrides the default CORS origin allowlist.
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`
}

// ProvidersConfig contains LLM provider API keys and routing settings.
type ProvidersConfig struct {
	CerebrasKey  string `toml:"cerebras_key" json:"cerebras_key"`
	GroqKey      string `toml:"groq_key" json:"groq_key"`
	FireworksKey string `toml:"fireworks_key" json:"fireworks_key"`
	SambanovaKey string `toml:"sambanova_key" json:"sambanova_key"`

	// CooldownMinutes is how long a failing provider sits out of rotation.
	CooldownMinutes int `toml:"cooldown_minutes" json:"cooldown_minutes"`
	// QueryRewriting enables the question rewrite step before retrieval.
	QueryRewriting bool `toml:"query_rewriting" json:"query_rewriting"`
}

// RetrievalConfig contains vector store and embeddings settings.
type RetrievalConfig struct {
	// SupabaseURL is the project base URL of the document store.
	SupabaseURL string `toml:"supabase_url" json:"supabase_url"`
	// SupabaseKey is the service key for the document store.
	SupabaseKey string `toml:"supabase_key" json:"supabase_key"`
	// OpenAIKey authorizes the embeddings API.
	OpenAIKey string `toml:"openai_key" json:"openai_key"`
	// EmbeddingModel is the embeddings model name.
	EmbeddingModel string `toml:"embedding_model" json:"embedding_model"`
}

// RerankConfig contains reranker settings.
type RerankConfig struct {
	// CohereKey authorizes the rerank API. Reranking is skipped gracefully
	// when empty.
	CohereKey string `toml:"cohere_key" json:"cohere_key"`
	// Model is the rerank model name.
	Model string `toml:"model" json:"model"`
}

// SearchConfig contains web search provider keys and quota persistence.
type SearchConfig struct {
	TavilyKey string `toml:"tavily_key" json:"tavily_key"`
	SerpKey   string `toml:"serp_key" json:"serp_key"`
	SerperKey string `toml:"serper_key" json:"serper_key"`

	// UsagePath is the JSON file tracking per-provider quota usage.
	// Empty means ~/.sciquery/usage.json.
	UsagePath string `toml:"usage_path" json:"usage_path"`
}

// StorageConfig contains query history settings.
type StorageConfig struct {
	// Enabled controls whether answered queries are persisted.
	Enabled bool `toml:"enabled" json:"enabled"`
	// DBPath is the SQLite database path. Empty means
	// ~/.sciquery/queries.db.
	DBPath string `toml:"db_path" json:"db_path"`
}

// ClientConfig contains settings for the CLI and chat TUI.
type ClientConfig struct {
	// ServerURL is the sciquery server base URL.
	ServerURL string `toml:"server_url" json:"server_url"`
	// UserID identifies this client in query history.
	UserID string `toml:"user_id" json:"user_id"`
	// Theme is the TUI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Server: ServerConfig{
			Port:          8000,
			MaxConcurrent: 10,
		},

		Providers: ProvidersConfig{
			CooldownMinutes: 30,
			QueryRewriting:  false,
		},

		Retrieval: RetrievalConfig{
			EmbeddingModel: "text-embedding-3-small",
		},

		Rerank: RerankConfig{
			Model: "rerank-v3.5",
		},

		Storage: StorageConfig{
			Enabled: true,
		},

		Client: ClientConfig{
			ServerURL: "http://127.0.0.1:8000",
			Theme:     "dark",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the sciquery configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".sciquery"), nil
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
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions tightens config files to 0600 since they carry
// API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions: %w", err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s). Tries TOML first, then
// JSON, and falls back to defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				return nil, fmt.Errorf("failed to load TOML config: %w", err)
			}
			return finalize(cfg)
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				return nil, fmt.Errorf("failed to load JSON config: %w", err)
			}
			return finalize(cfg)
		}
	}

	return finalize(cfg)
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	return finalize(cfg)
}

// finalize applies env overrides, defaults, and validation.
func finalize(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
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
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# sciquery configuration file")
	fmt.Fprintln(file, "# Generated by sciquery - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file atomically with 0600
// permissions.
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
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
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("must be 1-65535, got %d", c.Server.Port),
		})
	}
	if c.Server.MaxConcurrent < 1 || c.Server.MaxConcurrent > 1000 {
		errs = append(errs, ValidationError{
			Field:   "server.max_concurrent",
			Message: fmt.Sprintf("must be 1-1000, got %d", c.Server.MaxConcurrent),
		})
	}

	if c.Providers.CooldownMinutes < 1 {
		errs = append(errs, ValidationError{
			Field:   "providers.cooldown_minutes",
			Message: fmt.Sprintf("must be positive, got %d", c.Providers.CooldownMinutes),
		})
	}

	if c.Retrieval.SupabaseURL != "" {
		if u, err := url.Parse(c.Retrieval.SupabaseURL); err != nil || u.Scheme == "" {
			errs = append(errs, ValidationError{
				Field:   "retrieval.supabase_url",
				Message: fmt.Sprintf("invalid URL '%s'", c.Retrieval.SupabaseURL),
			})
		}
	}
	if c.Client.ServerURL != "" {
		if u, err := url.Parse(c.Client.ServerURL); err != nil || u.Scheme == "" {
			errs = append(errs, ValidationError{
				Field:   "client.server_url",
				Message: fmt.Sprintf("invalid URL '%s'", c.Client.ServerURL),
			})
		}
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.Client.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "client.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.Client.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills in any missing or zero-value configuration fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Server.MaxConcurrent == 0 {
		c.Server.MaxConcurrent = defaults.Server.MaxConcurrent
	}
	if c.Providers.CooldownMinutes == 0 {
		c.Providers.CooldownMinutes = defaults.Providers.CooldownMinutes
	}
	if c.Retrieval.EmbeddingModel == "" {
		c.Retrieval.EmbeddingModel = defaults.Retrieval.EmbeddingModel
	}
	if c.Rerank.Model == "" {
		c.Rerank.Model = defaults.Rerank.Model
	}
	if c.Client.ServerURL == "" {
		c.Client.ServerURL = defaults.Client.ServerURL
	}
	if c.Client.Theme == "" {
		c.Client.Theme = defaults.Client.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - SCIQUERY_PORT: overrides server.port
//   - SCIQUERY_MAX_CONCURRENT: overrides server.max_concurrent
//   - SCIQUERY_BEARER_TOKEN: overrides server.bearer_token
//   - SCIQUERY_CEREBRAS_KEY, SCIQUERY_GROQ_KEY,
//     SCIQUERY_FIREWORKS_KEY, SCIQUERY_SAMBANOVA_KEY: provider keys
//   - SCIQUERY_OPENAI_KEY: overrides retrieval.openai_key
//   - SCIQUERY_SUPABASE_URL, SCIQUERY_SUPABASE_KEY: document store
//   - SCIQUERY_COHERE_KEY: overrides rerank.cohere_key
//   - SCIQUERY_TAVILY_KEY, SCIQUERY_SERP_KEY, SCIQUERY_SERPER_KEY: search
//   - SCIQUERY_SERVER_URL: overrides client.server_url
//   - SCIQUERY_USER: overrides client.user_id
func (c *Config) ApplyEnvOverrides() {
	if port := os.Getenv("SCIQUERY_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.Server.Port = n
		}
	}
	if maxConc := os.Getenv("SCIQUERY_MAX_CONCURRENT"); maxConc != "" {
		if n, err := strconv.Atoi(maxConc); err == nil {
			c.Server.MaxConcurrent = n
		}
	}
	if token := os.Getenv("SCIQUERY_BEARER_TOKEN"); token != "" {
		c.Server.BearerToken = token
	}

	envString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	envString("SCIQUERY_CEREBRAS_KEY", &c.Providers.CerebrasKey)
	envString("SCIQUERY_GROQ_KEY", &c.Providers.GroqKey)
	envString("SCIQUERY_FIREWORKS_KEY", &c.Providers.FireworksKey)
	envString("SCIQUERY_SAMBANOVA_KEY", &c.Providers.SambanovaKey)
	envString("SCIQUERY_OPENAI_KEY", &c.Retrieval.OpenAIKey)
	envString("SCIQUERY_SUPABASE_URL", &c.Retrieval.SupabaseURL)
	envString("SCIQUERY_SUPABASE_KEY", &c.Retrieval.SupabaseKey)
	envString("SCIQUERY_COHERE_KEY", &c.Rerank.CohereKey)
	envString("SCIQUERY_TAVILY_KEY", &c.Search.TavilyKey)
	envString("SCIQUERY_SERP_KEY", &c.Search.SerpKey)
	envString("SCIQUERY_SERPER_KEY", &c.Search.SerperKey)
	envString("SCIQUERY_SERVER_URL", &c.Client.ServerURL)
	envString("SCIQUERY_USER", &c.Client.UserID)
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// ProviderKeys returns the configured LLM provider keys by provider name.
// Providers without a key are omitted.
func (c *Config) ProviderKeys() map[string]string {
	keys := make(map[string]string)
	for name, key := range map[string]string{
		"cerebras":  c.Providers.CerebrasKey,
		"groq":      c.Providers.GroqKey,
		"fireworks": c.Providers.FireworksKey,
		"sambanova": c.Providers.SambanovaKey,
	} {
		if key != "" {
			keys[name] = key
		}
	}
	return keys
}

// UsagePath returns the search quota file path, defaulting to
// ~/.sciquery/usage.json.
func (c *Config) UsagePath() (string, error) {
	if c.Search.UsagePath != "" {
		return c.Search.UsagePath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "usage.json"), nil
}

// DBPath returns the query history database path, defaulting to
// ~/.sciquery/queries.db.
func (c *Config) DBPath() (string, error) {
	if c.Storage.DBPath != "" {
		return c.Storage.DBPath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "queries.db"), nil
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation
// (e.g., "server.port").
func (c *Config) Get(key string) (any, error) {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return nil, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			return field.Interface(), nil
		}
		if field.Kind() != reflect.Struct {
			return nil, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return nil, fmt.Errorf("invalid key: %s", key)
}

// Set sets a configuration value using dot notation (e.g., "server.port").
func (c *Config) Set(key string, value any) error {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			if !field.CanSet() {
				return fmt.Errorf("cannot set field: %s", key)
			}
			return setFieldValue(field, value)
		}
		if field.Kind() != reflect.Struct {
			return fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go
// field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an any value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(strVal == "1" || lower == "true" || lower == "yes")
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"server.port",
		"server.max_concurrent",
		"server.bearer_token",
		"server.allowed_origins",
		"providers.cerebras_key",
		"providers.groq_key",
		"providers.fireworks_key",
		"providers.sambanova_key",
		"providers.cooldown_minutes",
		"providers.query_rewriting",
		"retrieval.supabase_url",
		"retrieval.supabase_key",
		"retrieval.openai_key",
		"retrieval.embedding_model",
		"rerank.cohere_key",
		"rerank.model",
		"search.tavily_key",
		"search.serp_key",
		"search.serper_key",
		"search.usage_path",
		"storage.enabled",
		"storage.db_path",
		"client.server_url",
		"client.user_id",
		"client.theme",
	}
}

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.AllowedOrigins != nil {
		clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	}
	return &clone
}

// String returns a string representation of the config for debugging, with
// every API key redacted.
func (c *Config) String() string {
	safe := c.Clone()

	redact := func(s *string) {
		if *s != "" {
			*s = "[REDACTED]"
		}
	}
	redact(&safe.Server.BearerToken)
	redact(&safe.Providers.CerebrasKey)
	redact(&safe.Providers.GroqKey)
	redact(&safe.Providers.FireworksKey)
	redact(&safe.Providers.SambanovaKey)
	redact(&safe.Retrieval.SupabaseKey)
	redact(&safe.Retrieval.OpenAIKey)
	redact(&safe.Rerank.CohereKey)
	redact(&safe.Search.TavilyKey)
	redact(&safe.Search.SerpKey)
	redact(&safe.Search.SerperKey)

	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance, loading it on first
// access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfig = cfg
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
