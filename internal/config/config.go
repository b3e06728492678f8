package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory and in
// the user config directory.
const FileName = ".tally.yaml"

// Notifier types.
const (
	NotifierJUnit     = "junit"
	NotifierCollector = "subtestresultcollector"
)

// Notifier selects one report sink.
type Notifier struct {
	Type string `yaml:"type"`
	Path string `yaml:"path,omitempty"`
}

// AppConfig represents the contents of .tally.yaml. Unset scalar fields are
// left empty (or nil) so resolution can tell them apart from explicit values.
type AppConfig struct {
	RunName   string     `yaml:"run_name,omitempty"`
	OutputDir string     `yaml:"output_dir,omitempty"`
	LogLevel  string     `yaml:"log_level,omitempty"`
	Theme     string     `yaml:"theme,omitempty"`
	NoColor   *bool      `yaml:"no_color,omitempty"`
	Notifiers []Notifier `yaml:"notifiers,omitempty"`
}

// Constants for default values.
const (
	DefaultLogLevel = "info"
	DefaultTheme    = "default"
)

// LoadConfig reads the config file at path. With an empty path it looks for
// FileName in the working directory, then in the user config directory, and
// returns an empty config when neither exists. The returned string is the
// file that was read, if any.
func LoadConfig(path string) (*AppConfig, string, error) {
	explicit := path != ""
	if !explicit {
		path = getConfigPath()
		if path == "" {
			return &AppConfig{}, "", nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return &AppConfig{}, "", nil
		}
		return nil, "", fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, "", fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, path, nil
}

// Parse validates and decodes YAML config data.
func Parse(data []byte) (*AppConfig, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// getConfigPath tries to find the config file. It checks the working
// directory first, then the user config directory.
func getConfigPath() string {
	if _, err := os.Stat(FileName); err == nil {
		return FileName
	}

	configHome, err := os.UserConfigDir()
	if err != nil || configHome == "" || configHome == "/" {
		return ""
	}
	xdgPath := filepath.Join(configHome, "tally", FileName)
	if _, err := os.Stat(xdgPath); err == nil {
		return xdgPath
	}
	return ""
}
