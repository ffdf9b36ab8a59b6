// Copyright 2024 Parts Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the assistant configuration from YAML files and
// environment variables using viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	// ErrMissingRequiredField is returned when a required configuration field is missing
	ErrMissingRequiredField = errors.New("missing required configuration field")
	// ErrNoConfigFile is returned when no configuration file could be located
	ErrNoConfigFile = errors.New("no config file found")
)

// EnvPrefix is the prefix for automatic environment overrides (PARTS_ASSISTANT_LLM_MODEL, ...)
const EnvPrefix = "PARTS_ASSISTANT"

// Config represents the complete application configuration
type Config struct {
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Search     SearchConfig     `mapstructure:"search"`
	Scraper    ScraperConfig    `mapstructure:"scraper"`
	Session    SessionConfig    `mapstructure:"session"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// OpenAIConfig contains OpenAI API configuration
type OpenAIConfig struct {
	APIKey   string `mapstructure:"apikey"`
	Endpoint string `mapstructure:"endpoint"`
}

// LLMConfig controls the chat model used for classification, extraction and answers
type LLMConfig struct {
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SearchConfig contains the search API configuration
type SearchConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	CSEID      string        `mapstructure:"cse_id"`
	Endpoint   string        `mapstructure:"endpoint"`
	Site       string        `mapstructure:"site"`
	MaxResults int           `mapstructure:"max_results"`
	CacheSize  int           `mapstructure:"cache_size"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// ScraperConfig contains retail page fetching configuration
type ScraperConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Renderer          string        `mapstructure:"renderer"`
	Headless          bool          `mapstructure:"headless"`
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	SymptomPartLimit  int           `mapstructure:"symptom_part_limit"`
}

// SessionConfig contains conversation memory configuration
type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	MaxSessions     int           `mapstructure:"max_sessions"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	HistoryMessages int           `mapstructure:"history_messages"`
}

// TranscriptConfig contains exchange log storage configuration
type TranscriptConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// LoadOptions contains options for configuration loading
type LoadOptions struct {
	ConfigPath       string
	RequireFile      bool
	ValidateRequired bool
}

// Load loads configuration from file and environment variables.
// Environment variables take precedence over config file values.
// A missing default config file is tolerated so env-only deployments work.
func Load(configPath string) (*Config, error) {
	return LoadWithOptions(LoadOptions{
		ConfigPath:       configPath,
		RequireFile:      configPath != "",
		ValidateRequired: true,
	})
}

// LoadWithOptions loads configuration with additional options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	fileFound := true
	if err := setConfigFile(v, opts.ConfigPath); err != nil {
		if opts.RequireFile || !errors.Is(err, ErrNoConfigFile) {
			return nil, fmt.Errorf("failed to set config file: %w", err)
		}
		fileFound = false
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)

	if fileFound {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	setEnvironmentMappings(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if opts.ValidateRequired {
		if err := validateConfig(&config); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("openai.endpoint", "https://api.openai.com/v1")

	v.SetDefault("llm.model", "gpt-4")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 1200)
	v.SetDefault("llm.timeout", 45*time.Second)

	v.SetDefault("search.endpoint", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("search.site", "partselect.com")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.cache_size", 256)
	v.SetDefault("search.cache_ttl", 10*time.Minute)

	v.SetDefault("scraper.base_url", "https://www.partselect.com/")
	v.SetDefault("scraper.renderer", "http")
	v.SetDefault("scraper.headless", true)
	v.SetDefault("scraper.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("scraper.timeout", 20*time.Second)
	v.SetDefault("scraper.requests_per_second", 1.0)
	v.SetDefault("scraper.burst", 2)
	v.SetDefault("scraper.symptom_part_limit", 1)

	v.SetDefault("session.ttl", 30*time.Minute)
	v.SetDefault("session.max_sessions", 1000)
	v.SetDefault("session.cleanup_interval", 5*time.Minute)
	v.SetDefault("session.history_messages", 6)

	v.SetDefault("transcript.enabled", true)
	v.SetDefault("transcript.db_path", "./transcript.db")

	v.SetDefault("server.port", 5001)
	v.SetDefault("server.allowed_origins", []string{"chrome-extension://*", "http://localhost:3000"})
	v.SetDefault("server.requests_per_second", 2.0)
	v.SetDefault("server.burst", 5)
	v.SetDefault("server.request_timeout", 90*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// setConfigFile sets the configuration file path with fallback logic
func setConfigFile(v *viper.Viper, configPath string) error {
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return fmt.Errorf("config file specified by CONFIG_PATH does not exist: %s", envPath)
		}
		v.SetConfigFile(envPath)
		return nil
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	for _, path := range []string{"./configs/config.yaml", "./config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
	}

	return fmt.Errorf("%w in default locations (./configs/config.yaml, ./config.yaml)", ErrNoConfigFile)
}

// setEnvironmentMappings sets explicit environment variable mappings
func setEnvironmentMappings(v *viper.Viper) {
	envMappings := map[string]string{
		"OPENAI_API_KEY":     "openai.apikey",
		"OPENAI_ENDPOINT":    "openai.endpoint",
		"GOOGLE_API_KEY":     "search.api_key",
		"GOOGLE_CSE_ID":      "search.cse_id",
		"TRANSCRIPT_DB_PATH": "transcript.db_path",
		"SERVER_PORT":        "server.port",
		"LOG_LEVEL":          "logging.level",
		"LOG_FORMAT":         "logging.format",
		"LOG_OUTPUT":         "logging.output",
	}

	for envVar, configKey := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			v.Set(configKey, value)
		}
	}
}

// validateConfig validates the configuration for required fields and valid values
func validateConfig(config *Config) error {
	var errs []ValidationError

	if config.OpenAI.APIKey == "" {
		errs = append(errs, ValidationError{
			Field:   "openai.apikey",
			Message: "OpenAI API key is required. Set via config file or OPENAI_API_KEY environment variable",
		})
	}

	if config.LLM.Model == "" {
		errs = append(errs, ValidationError{Field: "llm.model", Message: "model is required"})
	}

	if config.LLM.Temperature < 0 || config.LLM.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if config.LLM.MaxTokens <= 0 {
		errs = append(errs, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be greater than 0",
		})
	}

	if config.Search.MaxResults <= 0 || config.Search.MaxResults > 10 {
		errs = append(errs, ValidationError{
			Field:   "search.max_results",
			Message: "max_results must be between 1 and 10",
		})
	}

	if config.Search.Site == "" {
		errs = append(errs, ValidationError{Field: "search.site", Message: "site restriction is required"})
	}

	if !strings.HasPrefix(config.Scraper.BaseURL, "http://") && !strings.HasPrefix(config.Scraper.BaseURL, "https://") {
		errs = append(errs, ValidationError{
			Field:   "scraper.base_url",
			Message: "base_url must be an absolute http(s) URL",
		})
	}

	validRenderers := []string{"http", "browser"}
	if !contains(validRenderers, config.Scraper.Renderer) {
		errs = append(errs, ValidationError{
			Field:   "scraper.renderer",
			Message: fmt.Sprintf("renderer must be one of: %s", strings.Join(validRenderers, ", ")),
		})
	}

	if config.Scraper.RequestsPerSecond <= 0 || config.Scraper.Burst <= 0 {
		errs = append(errs, ValidationError{
			Field:   "scraper.requests_per_second",
			Message: "requests_per_second and burst must be greater than 0",
		})
	}

	if config.Scraper.SymptomPartLimit <= 0 {
		errs = append(errs, ValidationError{
			Field:   "scraper.symptom_part_limit",
			Message: "symptom_part_limit must be greater than 0",
		})
	}

	if config.Session.MaxSessions <= 0 {
		errs = append(errs, ValidationError{
			Field:   "session.max_sessions",
			Message: "max_sessions must be greater than 0",
		})
	}

	if config.Session.HistoryMessages < 0 {
		errs = append(errs, ValidationError{
			Field:   "session.history_messages",
			Message: "history_messages must be greater than or equal to 0",
		})
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, config.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")),
		})
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, config.Logging.Format) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")),
		})
	}

	if config.Transcript.Enabled {
		if config.Transcript.DBPath == "" {
			errs = append(errs, ValidationError{
				Field:   "transcript.db_path",
				Message: "transcript database path is required when transcript is enabled",
			})
		} else if err := validateDirectoryExists(filepath.Dir(config.Transcript.DBPath)); err != nil {
			errs = append(errs, ValidationError{
				Field:   "transcript.db_path",
				Message: fmt.Sprintf("transcript database directory does not exist: %s", filepath.Dir(config.Transcript.DBPath)),
			})
		}
	}

	if len(errs) > 0 {
		var errorMessages []string
		for _, err := range errs {
			errorMessages = append(errorMessages, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errorMessages, "\n"))
	}

	return nil
}

// SearchConfigured reports whether the search API credentials are present
func (c *Config) SearchConfigured() bool {
	return c.Search.APIKey != "" && c.Search.CSEID != ""
}

// MaskSensitiveValues returns a copy of the config with sensitive values masked
func (c *Config) MaskSensitiveValues() *Config {
	masked := *c

	if masked.OpenAI.APIKey != "" {
		masked.OpenAI.APIKey = maskValue(masked.OpenAI.APIKey)
	}
	if masked.Search.APIKey != "" {
		masked.Search.APIKey = maskValue(masked.Search.APIKey)
	}

	return &masked
}

// maskValue masks sensitive values, showing only the first 8 characters
func maskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:8] + strings.Repeat("*", len(value)-8)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// validateDirectoryExists checks if a directory exists
func validateDirectoryExists(path string) error {
	if path == "" || path == "." {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	return nil
}

// WatchConfig reloads the configuration whenever the file changes and hands
// the validated result to callback. Invalid reloads are reported to onError
// and the previous configuration stays in effect.
func WatchConfig(configPath string, callback func(*Config), onError func(error)) error {
	v := viper.New()

	if err := setConfigFile(v, configPath); err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}

		config, err := LoadWithOptions(LoadOptions{
			ConfigPath:       configPath,
			RequireFile:      true,
			ValidateRequired: true,
		})
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("failed to reload config %s: %w", e.Name, err))
			}
			return
		}

		callback(config)
	})
	v.WatchConfig()

	return nil
}
