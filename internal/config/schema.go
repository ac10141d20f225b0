// Package config loads the bridge configuration: YAML with environment
// variable expansion, an optional .env file, and structural validation.
package config

import (
	"github.com/flemzord/tgbridge/internal/core"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Only "1" is supported.
	Version string `yaml:"version"`

	// Driver selects how adapters receive updates: "http-client" pulls them,
	// "server" has them pushed to the embedded HTTP gateway.
	Driver core.DriverType `yaml:"driver"`

	// DataDir holds persistent module data such as the username database.
	// Empty selects the platform default.
	DataDir string `yaml:"data_dir"`

	Log LogConfig `yaml:"log"`

	// Modules maps module IDs to their raw YAML configuration.
	Modules map[string]yaml.Node `yaml:"modules"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

func (c *Config) defaults() {
	if c.Driver == "" {
		c.Driver = core.DriverClient
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}
