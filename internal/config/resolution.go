package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/dkoosis/tally/pkg/collector"
	"github.com/dkoosis/tally/pkg/junit"
)

// Resolution sources, recorded per field in ResolvedConfig.
const (
	SourceCLI     = "cli"
	SourceEnv     = "env"
	SourceFile    = "file"
	SourceDefault = "default"
)

// CliFlags holds the values of command-line flags. The *Set fields track
// whether a flag was given explicitly.
type CliFlags struct {
	ConfigPath string
	RunName    string
	OutputDir  string
	LogLevel   string
	ThemeName  string
	NoColor    bool
	JUnitPath  string
	NoJUnit    bool
	Collector  bool

	NoColorSet bool
}

// ResolvedConfig holds the final configuration after applying all priority rules.
type ResolvedConfig struct {
	RunName   string
	OutputDir string
	LogLevel  string
	Theme     string
	NoColor   bool
	Notifiers []Notifier // paths are final: output_dir applied, defaults filled

	// ConfigPath is the file that was read, empty if none.
	ConfigPath string

	// Resolution metadata (for debugging)
	RunNameSource   string
	OutputDirSource string
	LogLevelSource  string
	ThemeSource     string
	NoColorSource   string
	NotifiersSource string
}

var (
	validLogLevels = []string{"debug", "info", "warn", "error"}
	validThemes    = collector.ThemeNames()
)

// ResolveConfig loads the config file and resolves every setting with the
// priority CLI > environment > file > default.
func ResolveConfig(cli CliFlags) (*ResolvedConfig, error) {
	appCfg, path, err := LoadConfig(cli.ConfigPath)
	if err != nil {
		return nil, err
	}
	resolved := Resolve(appCfg, cli)
	resolved.ConfigPath = path
	if err := validateResolvedConfig(resolved); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return resolved, nil
}

// Resolve merges an already loaded file config with the environment and CLI flags.
func Resolve(appCfg *AppConfig, cli CliFlags) *ResolvedConfig {
	r := &ResolvedConfig{}
	r.RunName, r.RunNameSource = resolveString(cli.RunName, "TALLY_RUN_NAME", appCfg.RunName, "")
	r.OutputDir, r.OutputDirSource = resolveString(cli.OutputDir, "TALLY_OUTPUT_DIR", appCfg.OutputDir, "")
	r.LogLevel, r.LogLevelSource = resolveString(cli.LogLevel, "TALLY_LOG_LEVEL", appCfg.LogLevel, DefaultLogLevel)
	r.Theme, r.ThemeSource = resolveString(cli.ThemeName, "TALLY_THEME", appCfg.Theme, DefaultTheme)

	// NoColor: CLI > TALLY_NO_COLOR > NO_COLOR (any value) > file > default
	switch {
	case cli.NoColorSet:
		r.NoColor, r.NoColorSource = cli.NoColor, SourceCLI
	case getEnvBool("TALLY_NO_COLOR") != nil:
		r.NoColor, r.NoColorSource = *getEnvBool("TALLY_NO_COLOR"), SourceEnv
	case os.Getenv("NO_COLOR") != "":
		r.NoColor, r.NoColorSource = true, SourceEnv
	case appCfg.NoColor != nil:
		r.NoColor, r.NoColorSource = *appCfg.NoColor, SourceFile
	default:
		r.NoColorSource = SourceDefault
	}

	r.Notifiers, r.NotifiersSource = resolveNotifiers(appCfg.Notifiers, cli)
	for i := range r.Notifiers {
		n := &r.Notifiers[i]
		if n.Type != NotifierJUnit {
			continue
		}
		if n.Path == "" {
			n.Path = junit.DefaultFilename
		}
		if r.OutputDir != "" && !filepath.IsAbs(n.Path) {
			n.Path = filepath.Join(r.OutputDir, n.Path)
		}
	}
	return r
}

// resolveNotifiers starts from the file's notifiers (or the default junit
// notifier) and applies the CLI overrides.
func resolveNotifiers(fromFile []Notifier, cli CliFlags) ([]Notifier, string) {
	notifiers := []Notifier{{Type: NotifierJUnit}}
	source := SourceDefault
	if len(fromFile) > 0 {
		notifiers = slices.Clone(fromFile)
		source = SourceFile
	}

	if cli.NoJUnit {
		notifiers = slices.DeleteFunc(notifiers, func(n Notifier) bool { return n.Type == NotifierJUnit })
		source = SourceCLI
	} else if cli.JUnitPath != "" {
		i := slices.IndexFunc(notifiers, func(n Notifier) bool { return n.Type == NotifierJUnit })
		if i < 0 {
			notifiers = append(notifiers, Notifier{Type: NotifierJUnit})
			i = len(notifiers) - 1
		}
		notifiers[i].Path = cli.JUnitPath
		source = SourceCLI
	}

	if cli.Collector && !slices.ContainsFunc(notifiers, func(n Notifier) bool { return n.Type == NotifierCollector }) {
		notifiers = append(notifiers, Notifier{Type: NotifierCollector})
		source = SourceCLI
	}
	return notifiers, source
}

// resolveString picks the first non-empty value of CLI, environment, file,
// returning the default otherwise.
func resolveString(cli, envKey, file, def string) (string, string) {
	if cli != "" {
		return cli, SourceCLI
	}
	if v := os.Getenv(envKey); v != "" {
		return v, SourceEnv
	}
	if file != "" {
		return file, SourceFile
	}
	return def, SourceDefault
}

// getEnvBool reads a boolean from environment variables, trying multiple keys.
// Returns nil if none are set, or a pointer to the boolean value.
func getEnvBool(keys ...string) *bool {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				return &b
			}
		}
	}
	return nil
}

// validateResolvedConfig rejects values that only CLI flags or the
// environment could have introduced; the file is schema-checked on load.
func validateResolvedConfig(cfg *ResolvedConfig) error {
	if !slices.Contains(validLogLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level %q (must be one of %v)", cfg.LogLevel, validLogLevels)
	}
	if !slices.Contains(validThemes, cfg.Theme) {
		return fmt.Errorf("invalid theme %q (must be one of %v)", cfg.Theme, validThemes)
	}
	return nil
}
