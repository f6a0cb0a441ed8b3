// Package config loads cflat settings from an optional YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full set of settings.
type Config struct {
	// Validate runs the LIR validator before interpreting. Source input is
	// always checked since lowering depends on it.
	Validate bool `yaml:"validate"`
	Log      Log  `yaml:"log"`
}

// Log selects the log level and handler format.
type Log struct {
	Level  string `yaml:"level"` // debug, info, warn, error or off
	Format string `yaml:"format"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Validate: true,
		Log: Log{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default values; unknown keys are an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML settings over the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}
	return cfg, nil
}
