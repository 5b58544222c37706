package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Duration decodes "10m"-style strings. A bare number string, as env vars
// carry it, is read as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	parsed, err := time.ParseDuration(s)
	if err != nil {
		secs, aerr := strconv.Atoi(s)
		if aerr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		parsed = time.Duration(secs) * time.Second
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", s)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Secret is a credential (LLM API key) that prints as [REDACTED] in every
// format. Value returns the raw string.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

func (s Secret) GoString() string { return "Secret([REDACTED])" }

func (s Secret) Value() string { return string(s) }

func (s Secret) IsSet() bool { return s != "" }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s Secret) MarshalYAML() (interface{}, error) { return s.String(), nil }

// UnmarshalText accepts the raw value from YAML, JSON or env.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}
