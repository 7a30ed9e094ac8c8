package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as "100ms" or "2s" in config files.
// Plain integers are read as nanoseconds.
type Duration time.Duration

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the string representation of Duration
func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: duration must be a scalar at line %d", ErrConfigParseError, value.Line)
	}
	return d.parse(value.Value)
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case string:
		return d.parse(v)
	case float64:
		*d = Duration(int64(v))
		return nil
	default:
		return fmt.Errorf("%w: invalid duration %s", ErrConfigParseError, string(data))
	}
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) parse(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		var ns int64
		if _, scanErr := fmt.Sscanf(s, "%d", &ns); scanErr != nil {
			return fmt.Errorf("%w: invalid duration %q", ErrConfigParseError, s)
		}
		parsed = time.Duration(ns)
	}
	*d = Duration(parsed)
	return nil
}
