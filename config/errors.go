// Package config provides error definitions for configuration management
package config

import "errors"

// Configuration validation errors
var (
	ErrInvalidAppName      = errors.New("invalid application name")
	ErrInvalidEnvironment  = errors.New("invalid environment")
	ErrInvalidLogLevel     = errors.New("invalid log level")
	ErrInvalidTickInterval = errors.New("invalid tick interval")
	ErrInvalidDrainPasses  = errors.New("invalid max drain passes")
	ErrInvalidChannel      = errors.New("invalid channel configuration")
	ErrInvalidCompression  = errors.New("invalid compression level")
	ErrNoRuntimeTrigger    = errors.New("runtime needs a tick interval or wake on activate")
)

// Configuration loading errors
var (
	ErrConfigFileNotFound  = errors.New("configuration file not found")
	ErrConfigParseError    = errors.New("configuration parse error")
	ErrEnvironmentVarError = errors.New("environment variable error")
	ErrConfigWatchError    = errors.New("configuration watch error")
)
