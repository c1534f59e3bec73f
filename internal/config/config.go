// Package config loads settings shared by the demo commands.
//
// Values come from, in increasing priority: built-in defaults, an optional
// YAML config file, RAIL_* environment variables, and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "RAIL"

// Config is the complete settings tree.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	Unity UnityConfig `mapstructure:"unity"`
}

// UnityConfig controls how the simulation process is launched.
type UnityConfig struct {
	// ExePath is the simulation executable. Also read from UNITY_EXE_PATH.
	ExePath string `mapstructure:"exe_path"`

	// Transport is "stdio" or "websocket".
	Transport string `mapstructure:"transport"`

	StartupTimeout time.Duration `mapstructure:"startup_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel: "info",
		Unity: UnityConfig{
			Transport:      "stdio",
			StartupTimeout: 60 * time.Second,
			RequestTimeout: 30 * time.Second,
			StopTimeout:    5 * time.Second,
		},
	}
}

// New returns a viper instance with defaults and environment bindings set.
func New() *viper.Viper {
	v := viper.New()
	d := Default()

	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("unity.exe_path", d.Unity.ExePath)
	v.SetDefault("unity.transport", d.Unity.Transport)
	v.SetDefault("unity.startup_timeout", d.Unity.StartupTimeout)
	v.SetDefault("unity.request_timeout", d.Unity.RequestTimeout)
	v.SetDefault("unity.stop_timeout", d.Unity.StopTimeout)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The integration tests and older scripts export UNITY_EXE_PATH.
	_ = v.BindEnv("unity.exe_path", EnvPrefix+"_UNITY_EXE_PATH", "UNITY_EXE_PATH")

	return v
}

// BindFlags binds flags to config keys. bindings maps key -> flag name.
// Flags that are not defined on fs are an error.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		f := fs.Lookup(name)
		if f == nil {
			return fmt.Errorf("config: flag --%s not defined", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("config: bind --%s: %w", name, err)
		}
	}
	return nil
}

// Load reads the optional config file and decodes the settings.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the decoded settings.
func (c *Config) Validate() error {
	var errs []error

	switch c.Unity.Transport {
	case "stdio", "websocket":
	default:
		errs = append(errs, fmt.Errorf("unity.transport must be 'stdio' or 'websocket', got '%s'", c.Unity.Transport))
	}
	if c.Unity.StartupTimeout <= 0 {
		errs = append(errs, errors.New("unity.startup_timeout must be positive"))
	}
	if c.Unity.RequestTimeout <= 0 {
		errs = append(errs, errors.New("unity.request_timeout must be positive"))
	}
	if c.Unity.StopTimeout <= 0 {
		errs = append(errs, errors.New("unity.stop_timeout must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
