// Package config provides configuration management for the NPL runtime
package config

import (
	"fmt"
	"time"

	"github.com/najoast/nplmini/core"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// String returns the string representation of Environment
func (e Environment) String() string {
	return string(e)
}

// IsValid checks if the environment is valid
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvTesting, EnvStaging, EnvProduction:
		return true
	default:
		return false
	}
}

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	return string(l)
}

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// Config represents the complete runtime configuration
type Config struct {
	// Application configuration
	App AppConfig `yaml:"app" json:"app"`

	// Logging configuration
	Log LogConfig `yaml:"log" json:"log"`

	// Runtime manager configuration
	Runtime RuntimeConfig `yaml:"runtime" json:"runtime"`

	// Prometheus exporter configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string      `yaml:"name" json:"name"`
	Version     string      `yaml:"version" json:"version"`
	Environment Environment `yaml:"environment" json:"environment"`
	Debug       bool        `yaml:"debug" json:"debug"`

	// Shutdown bounds how long services get to stop
	Shutdown Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	// Log level
	Level LogLevel `yaml:"level" json:"level"`

	// Log format (json, text)
	Format string `yaml:"format" json:"format"`

	// Output destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Add source file and line to records
	Source bool `yaml:"source" json:"source"`
}

// RuntimeConfig drives the runtime manager and its settings.
type RuntimeConfig struct {
	// TickInterval is the period between Run calls. Zero makes the driver
	// wait for activations only.
	TickInterval Duration `yaml:"tick_interval" json:"tick_interval"`

	// DrainToEnd makes each tick repeat until no message is left
	DrainToEnd bool `yaml:"drain_to_end" json:"drain_to_end"`

	// MaxDrainPasses bounds a draining tick
	MaxDrainPasses int `yaml:"max_drain_passes" json:"max_drain_passes"`

	// WakeOnActivate runs a tick as soon as a message is queued
	WakeOnActivate bool `yaml:"wake_on_activate" json:"wake_on_activate"`

	// DefaultChannel used when an activation names none
	DefaultChannel int `yaml:"default_channel" json:"default_channel"`

	// Channels overrides entries of the default channel table
	Channels []ChannelConfig `yaml:"channels,omitempty" json:"channels,omitempty"`

	Compression CompressionConfig `yaml:"compression" json:"compression"`
	KeepAlive   KeepAliveConfig   `yaml:"keep_alive" json:"keep_alive"`

	// DNS maps server names to "ip:port"
	DNS map[string]string `yaml:"dns,omitempty" json:"dns,omitempty"`

	// States are named states created at start-up
	States []string `yaml:"states,omitempty" json:"states,omitempty"`
}

// ChannelConfig overrides one channel of the table
type ChannelConfig struct {
	ID          int    `yaml:"id" json:"id"`
	Priority    int    `yaml:"priority" json:"priority"`
	Reliability string `yaml:"reliability" json:"reliability"`
}

// CompressionConfig mirrors core.Compression
type CompressionConfig struct {
	Incoming  bool `yaml:"incoming" json:"incoming"`
	Outgoing  bool `yaml:"outgoing" json:"outgoing"`
	Level     int  `yaml:"level" json:"level"`
	Threshold int  `yaml:"threshold" json:"threshold"`
}

// KeepAliveConfig contains keep-alive settings
type KeepAliveConfig struct {
	TCP         bool     `yaml:"tcp" json:"tcp"`
	Application bool     `yaml:"application" json:"application"`
	IdleTimeout Duration `yaml:"idle_timeout" json:"idle_timeout"`
}

// MetricsConfig contains the Prometheus exporter settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Address   string `yaml:"address" json:"address"`
	Path      string `yaml:"path" json:"path"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "nplmini",
			Version:     "1.0.0",
			Environment: EnvDevelopment,
			Shutdown:    Duration(10 * time.Second),
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: "text",
			Output: "stderr",
		},
		Runtime: RuntimeConfig{
			TickInterval:   Duration(100 * time.Millisecond),
			DrainToEnd:     false,
			MaxDrainPasses: core.DefaultMaxDrainPasses,
			WakeOnActivate: true,
			DefaultChannel: 0,
			Compression: CompressionConfig{
				Level:     0,
				Threshold: 200,
			},
			KeepAlive: KeepAliveConfig{
				TCP:         false,
				Application: false,
				IdleTimeout: Duration(120 * time.Second),
			},
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Address:   ":9090",
			Path:      "/metrics",
			Namespace: "npl",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if !c.App.Environment.IsValid() {
		return ErrInvalidEnvironment
	}
	if !c.Log.Level.IsValid() {
		return ErrInvalidLogLevel
	}
	return c.Runtime.Validate()
}

// Validate validates the runtime section
func (r *RuntimeConfig) Validate() error {
	if r.TickInterval < 0 {
		return ErrInvalidTickInterval
	}
	if r.MaxDrainPasses <= 0 {
		return ErrInvalidDrainPasses
	}
	if r.DefaultChannel < 0 || r.DefaultChannel >= core.ChannelCount {
		return fmt.Errorf("%w: default channel %d", ErrInvalidChannel, r.DefaultChannel)
	}
	for _, ch := range r.Channels {
		if ch.ID < 0 || ch.ID >= core.ChannelCount {
			return fmt.Errorf("%w: %d", ErrInvalidChannel, ch.ID)
		}
		if _, err := core.ParseReliability(ch.Reliability); err != nil {
			return fmt.Errorf("%w: channel %d: %v", ErrInvalidChannel, ch.ID, err)
		}
	}
	if r.Compression.Level < -1 || r.Compression.Level > 9 {
		return ErrInvalidCompression
	}
	if r.TickInterval == 0 && !r.WakeOnActivate {
		return ErrNoRuntimeTrigger
	}
	return nil
}

// Apply copies the runtime section into settings.
func (r *RuntimeConfig) Apply(settings *core.Settings) error {
	if err := settings.SetDefaultChannel(r.DefaultChannel); err != nil {
		return err
	}

	settings.Channels().Reset()
	for _, ch := range r.Channels {
		reliability, err := core.ParseReliability(ch.Reliability)
		if err != nil {
			return err
		}
		if err := settings.Channels().Set(ch.ID, core.Priority(ch.Priority), reliability); err != nil {
			return err
		}
	}

	err := settings.SetCompression(core.Compression{
		Incoming:  r.Compression.Incoming,
		Outgoing:  r.Compression.Outgoing,
		Level:     r.Compression.Level,
		Threshold: r.Compression.Threshold,
	})
	if err != nil {
		return err
	}

	settings.SetKeepAlive(r.KeepAlive.TCP, r.KeepAlive.Application, r.KeepAlive.IdleTimeout.Std())
	for name, addr := range r.DNS {
		settings.AddDNSRecord(name, addr)
	}
	return nil
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsDebugEnabled returns true if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.Log.Level == LogLevelDebug
}
