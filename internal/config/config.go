// Package config loads the per-machine tool configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level structure parsed from <home>/config.yaml.
type Config struct {
	// DefaultStack is used when no stack is named by env or flag.
	DefaultStack string `yaml:"default_stack"`
	// BuildMode is the configured CLI build mode (auto|always|never). It is
	// validated on load; builds take their mode from
	// HAPPY_STACKS_CLI_BUILD_MODE (default auto), not from this field.
	BuildMode string `yaml:"build_mode"`
	// ComponentDirs maps component names to repository directories. It is
	// loaded and saved only; component resolution does not read it.
	ComponentDirs map[string]string `yaml:"component_dirs"`
	// Menubar configures the macOS menubar integration.
	Menubar MenubarConfig `yaml:"menubar"`
}

// MenubarConfig holds menubar integration settings.
type MenubarConfig struct {
	Mode string `yaml:"mode"` // "swiftbar" or "off"
}

// Load reads and parses a config from the given YAML file path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault loads <homeDir>/config.yaml, returning defaults when the file
// does not exist.
func LoadDefault(homeDir string) (*Config, error) {
	path := filepath.Join(homeDir, "config.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg, nil
	}
	return Load(path)
}

// Save writes the config to <homeDir>/config.yaml.
func Save(homeDir string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", homeDir, err)
	}
	return os.WriteFile(filepath.Join(homeDir, "config.yaml"), data, 0o644)
}

func applyDefaults(cfg *Config) {
	if cfg.DefaultStack == "" {
		cfg.DefaultStack = "default"
	}
	if cfg.BuildMode == "" {
		cfg.BuildMode = "auto"
	}
	if cfg.Menubar.Mode == "" {
		cfg.Menubar.Mode = "off"
	}
}

func validate(cfg *Config) error {
	switch cfg.BuildMode {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("build_mode %q must be auto, always, or never", cfg.BuildMode)
	}
	switch cfg.Menubar.Mode {
	case "swiftbar", "off":
	default:
		return fmt.Errorf("menubar.mode %q must be swiftbar or off", cfg.Menubar.Mode)
	}
	return nil
}
