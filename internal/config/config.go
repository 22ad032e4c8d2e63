// Package config loads the compositor configuration with Viper. The
// file is optional; defaults plus ARGENT_* environment variables are
// enough to run.
package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// Output is one synthetic output for the headless backend.
type Output struct {
	Name    string `mapstructure:"name"`
	Width   int    `mapstructure:"width"`
	Height  int    `mapstructure:"height"`
	Refresh int    `mapstructure:"refresh"` // mHz
	Scale   int    `mapstructure:"scale"`
	X       int    `mapstructure:"x"`
	Y       int    `mapstructure:"y"`
}

// Config is the compositor configuration.
type Config struct {
	Backend   string   `mapstructure:"backend"`    // auto, headless, drm
	DRMDevice string   `mapstructure:"drm_device"` // empty picks /dev/dri/card0
	Socket    string   `mapstructure:"socket"`     // wayland socket name; empty allocates
	Script    string   `mapstructure:"script"`     // policy script path
	LogLevel  string   `mapstructure:"log_level"`
	Outputs   []Output `mapstructure:"outputs"` // headless backend only
}

// Load reads the config file at path, or the default location when
// path is empty. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("backend", "auto")
	v.SetDefault("log_level", "")
	v.SetEnvPrefix("ARGENT")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, "argent"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// ScriptPath resolves the policy script: explicit setting first, then
// the XDG config directory.
func (c *Config) ScriptPath() string {
	if c.Script != "" {
		return c.Script
	}
	path, err := xdg.SearchConfigFile(filepath.Join("argent", "main.js"))
	if err != nil {
		return ""
	}
	return path
}
