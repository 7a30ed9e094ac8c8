// Package config provides configuration loading and parsing functionality
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigFormat represents the configuration file format
type ConfigFormat string

const (
	FormatYAML ConfigFormat = "yaml"
	FormatJSON ConfigFormat = "json"
)

// DefaultEnvPrefix prefixes every environment override, e.g. NPL_LOG_LEVEL.
const DefaultEnvPrefix = "NPL"

// Loader handles configuration loading from files, .env files and the
// environment.
type Loader struct {
	// Configuration search paths
	searchPaths []string

	// Environment variable prefix
	envPrefix string

	// .env files read before environment overrides are applied
	dotEnvFiles []string

	// Default configuration factory
	defaults func() *Config
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	home, _ := os.UserHomeDir()
	paths := []string{".", "./config", "./configs", "/etc/nplmini"}
	if home != "" {
		paths = append(paths, filepath.Join(home, ".nplmini"))
	}

	return &Loader{
		searchPaths: paths,
		envPrefix:   DefaultEnvPrefix,
		defaults:    DefaultConfig,
	}
}

// SetSearchPaths sets the configuration file search paths
func (l *Loader) SetSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

// SetEnvPrefix sets the environment variable prefix
func (l *Loader) SetEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// SetDotEnvFiles sets the .env files to load. Missing files are ignored and
// variables already present in the environment win.
func (l *Loader) SetDotEnvFiles(files ...string) *Loader {
	l.dotEnvFiles = files
	return l
}

// SetDefaults sets the factory for the configuration that files are merged
// onto.
func (l *Loader) SetDefaults(defaults func() *Config) *Loader {
	l.defaults = defaults
	return l
}

// Load loads configuration from filename. An empty filename searches the
// search paths and falls back to defaults if nothing is found.
func (l *Loader) Load(filename string) (*Config, error) {
	if filename == "" {
		found, err := l.findConfigFile()
		switch {
		case errors.Is(err, ErrConfigFileNotFound):
			return l.finish(l.defaultConfig())
		case err != nil:
			return nil, err
		}
		filename = found
	}

	format, err := formatOf(filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, filename)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config, err := l.parseConfig(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return l.finish(config)
}

// LoadFromReader loads configuration from an io.Reader
func (l *Loader) LoadFromReader(reader io.Reader, format ConfigFormat) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration data: %w", err)
	}

	config, err := l.parseConfig(data, format)
	if err != nil {
		return nil, err
	}
	return l.finish(config)
}

// finish applies .env files and environment overrides, then validates.
func (l *Loader) finish(config *Config) (*Config, error) {
	if err := l.loadDotEnv(); err != nil {
		return nil, err
	}
	if err := l.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

func (l *Loader) defaultConfig() *Config {
	if l.defaults == nil {
		return DefaultConfig()
	}
	return l.defaults()
}

// findConfigFile searches for configuration files in search paths
func (l *Loader) findConfigFile() (string, error) {
	filenames := []string{
		"nplmini.yaml", "nplmini.yml",
		"config.yaml", "config.yml",
		"nplmini.json", "config.json",
	}

	for _, searchPath := range l.searchPaths {
		for _, filename := range filenames {
			fullPath := filepath.Join(searchPath, filename)
			if _, err := os.Stat(fullPath); err == nil {
				return fullPath, nil
			}
		}
	}

	return "", ErrConfigFileNotFound
}

func formatOf(filename string) (ConfigFormat, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unsupported config file format %q", ErrConfigParseError, ext)
	}
}

// parseConfig decodes data on top of the defaults, so fields missing from
// the file keep their default value.
func (l *Loader) parseConfig(data []byte, format ConfigFormat) (*Config, error) {
	config := l.defaultConfig()

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: yaml: %v", ErrConfigParseError, err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: json: %v", ErrConfigParseError, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported config format %q", ErrConfigParseError, format)
	}

	return config, nil
}

func (l *Loader) loadDotEnv() error {
	for _, file := range l.dotEnvFiles {
		if _, err := os.Stat(file); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrEnvironmentVarError, file, err)
		}
	}
	return nil
}

// loadFromEnv loads configuration overrides from environment variables
func (l *Loader) loadFromEnv(config *Config) error {
	env := func(key string) (string, bool) {
		val := os.Getenv(l.envPrefix + "_" + key)
		return val, val != ""
	}

	// App configuration
	if val, ok := env("APP_NAME"); ok {
		config.App.Name = val
	}
	if val, ok := env("APP_ENVIRONMENT"); ok {
		config.App.Environment = Environment(val)
	}
	if val, ok := env("APP_DEBUG"); ok {
		config.App.Debug = strings.EqualFold(val, "true")
	}

	// Log configuration
	if val, ok := env("LOG_LEVEL"); ok {
		config.Log.Level = LogLevel(strings.ToLower(val))
	}
	if val, ok := env("LOG_FORMAT"); ok {
		config.Log.Format = val
	}
	if val, ok := env("LOG_OUTPUT"); ok {
		config.Log.Output = val
	}

	// Runtime configuration
	if val, ok := env("RUNTIME_TICK_INTERVAL"); ok {
		var d Duration
		if err := d.parse(val); err != nil {
			return fmt.Errorf("%w: %s_RUNTIME_TICK_INTERVAL: %v", ErrEnvironmentVarError, l.envPrefix, err)
		}
		config.Runtime.TickInterval = d
	}
	if val, ok := env("RUNTIME_DRAIN_TO_END"); ok {
		config.Runtime.DrainToEnd = strings.EqualFold(val, "true")
	}
	if val, ok := env("RUNTIME_DEFAULT_CHANNEL"); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w: %s_RUNTIME_DEFAULT_CHANNEL: %v", ErrEnvironmentVarError, l.envPrefix, err)
		}
		config.Runtime.DefaultChannel = n
	}
	if val, ok := env("RUNTIME_STATES"); ok {
		config.Runtime.States = splitList(val)
	}

	// Metrics configuration
	if val, ok := env("METRICS_ENABLED"); ok {
		config.Metrics.Enabled = strings.EqualFold(val, "true")
	}
	if val, ok := env("METRICS_ADDRESS"); ok {
		config.Metrics.Address = val
	}

	return nil
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
