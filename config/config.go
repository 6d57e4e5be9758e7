// Package config loads rescache configuration from the environment or YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "RESCACHE_"

// ParseEnv loads configuration from RESCACHE_* environment variables.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadFile decodes a YAML file into target. Unknown keys are rejected.
func LoadFile(path string, target any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return Decode(bytes.NewReader(b), target)
}

// Decode reads one YAML document into target. Empty input leaves target unchanged.
func Decode(r io.Reader, target any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}
