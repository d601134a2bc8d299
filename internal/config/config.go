// SPDX-License-Identifier: MPL-2.0

// Package config loads tool configuration from a CUE config file, environment
// variables, and built-in defaults, in that order of increasing precedence
// for env vars and decreasing for defaults.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/viper"

	"dataform-task/internal/issue"
	"dataform-task/pkg/taskfile"
)

const (
	// AppName is the application name, used for the config directory and the
	// environment variable prefix.
	AppName = "dataform-task"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"

	// envPrefix namespaces environment overrides (DATAFORM_TASK_*).
	envPrefix = "DATAFORM_TASK"

	// maxConfigFileSize bounds config file size before CUE compilation.
	maxConfigFileSize = 1 << 20
)

//go:embed config_schema.cue
var configSchema string

type (
	// Config is the resolved tool configuration.
	Config struct {
		// ContainerEngine selects the container engine: podman, docker, auto.
		ContainerEngine string `mapstructure:"container_engine"`

		// DefaultRunner is the runner kind used when the task file does not
		// name one: container, process, virtual.
		DefaultRunner string `mapstructure:"default_runner"`

		// DefaultImage overrides the built-in container image default.
		// Empty means the task-level default applies.
		DefaultImage string `mapstructure:"default_image"`

		// Log holds logging settings.
		Log LogConfig `mapstructure:"log"`
	}

	// LogConfig holds logging settings.
	LogConfig struct {
		// Level is the minimum log level: debug, info, warn, error.
		Level string `mapstructure:"level"`
	}

	// LoadOptions controls where Load looks for the config file.
	LoadOptions struct {
		// ConfigFilePath, when set, is used exclusively and must exist.
		ConfigFilePath string
		// ConfigDirPath overrides the platform config directory.
		ConfigDirPath string
	}
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		ContainerEngine: "auto",
		DefaultRunner:   string(taskfile.RunnerContainer),
		Log:             LogConfig{Level: "info"},
	}
}

// ConfigDir returns the configuration directory using platform conventions:
// Windows uses %APPDATA%, macOS uses ~/Library/Application Support, and
// Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// Load resolves the configuration: defaults, then the config file (explicit
// path, platform config dir, or current directory), then DATAFORM_TASK_*
// environment variables. Returns the config and the resolved file path
// (empty when running on defaults alone).
func Load(opts LoadOptions) (*Config, string, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("container_engine", defaults.ContainerEngine)
	v.SetDefault("default_runner", defaults.DefaultRunner)
	v.SetDefault("default_image", defaults.DefaultImage)
	v.SetDefault("log.level", defaults.Log.Level)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""

	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Check that the file exists and is readable").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		if err := loadCUEIntoViper(v, opts.ConfigFilePath); err != nil {
			return nil, "", wrapConfigLoadError(opts.ConfigFilePath, err)
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
		if err != nil {
			return nil, "", err
		}

		cuePath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
		localCuePath := ConfigFileName + "." + ConfigFileExt
		switch {
		case fileExists(cuePath):
			if err := loadCUEIntoViper(v, cuePath); err != nil {
				return nil, "", wrapConfigLoadError(cuePath, err)
			}
			resolvedPath = cuePath
		case fileExists(localCuePath):
			if err := loadCUEIntoViper(v, localCuePath); err != nil {
				return nil, "", wrapConfigLoadError(localCuePath, err)
			}
			resolvedPath = localCuePath
		}
		// No config file found: defaults plus env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return &cfg, resolvedPath, nil
}

// Validate checks constraints the CUE schema cannot enforce for values coming
// from environment variables.
func (c *Config) Validate() error {
	switch c.ContainerEngine {
	case "podman", "docker", "auto":
	default:
		return fmt.Errorf("invalid container_engine %q: must be podman, docker, or auto", c.ContainerEngine)
	}
	if !taskfile.RunnerKind(c.DefaultRunner).IsValid() {
		return fmt.Errorf("invalid default_runner %q: must be container, process, or virtual", c.DefaultRunner)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q: must be debug, info, warn, or error", c.Log.Level)
	}
	return nil
}

func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}
	return ConfigDir()
}

func wrapConfigLoadError(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithSuggestion("Check that the file contains valid CUE syntax").
		WithSuggestion("Verify the configuration values match the expected schema").
		Wrap(err).
		BuildError()
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into viper. Validation runs with Concrete(false)
// because every config field is optional.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return fmt.Errorf("config file %s exceeds maximum size of %d bytes", path, maxConfigFileSize)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

func formatCUEError(err error, filename string) error {
	details := cueerrors.Details(err, &cueerrors.Config{Cwd: ""})
	return fmt.Errorf("invalid config file %s:\n%s", filename, details)
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
