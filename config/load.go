package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when an explicitly named config file is missing
var ErrNotFound = errors.New("config file not found")

// Load reads configuration from a file with ENV interpolation, then applies
// ROLL_* environment overrides. If configPath is empty, it searches default
// locations and falls back to Defaults when none exists.
func Load(configPath string, getenv func(string) string) (*Config, error) {
	cfg, _, err := LoadWithPath(configPath, getenv)
	return cfg, err
}

// LoadWithPath reads configuration and returns both the config and the
// resolved path. The path is empty when no file was found.
func LoadWithPath(configPath string, getenv func(string) string) (*Config, string, error) {
	path, err := resolveConfigPath(configPath, getenv)
	if err != nil {
		return nil, "", err
	}

	cfg := Defaults()
	var absPath string

	if path != "" {
		absPath, err = filepath.Abs(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to resolve config path: %w", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read config: %w", err)
		}

		data = interpolateEnv(data, getenv)

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, "", fmt.Errorf("failed to parse config: %w", err)
		}

		cfg.Path = absPath
		cfg.BaseDir = filepath.Dir(absPath)
		resolvePaths(cfg)
	}

	if err := applyEnv(cfg, getenv); err != nil {
		return nil, "", err
	}

	if err := Validate(cfg); err != nil {
		return nil, "", err
	}

	return cfg, absPath, nil
}

// resolvePaths makes file paths relative to the config file absolute
func resolvePaths(cfg *Config) {
	for i, file := range cfg.Macros.Files {
		if file != "" && !filepath.IsAbs(file) {
			cfg.Macros.Files[i] = filepath.Join(cfg.BaseDir, file)
		}
	}
	if cfg.Macros.Database != "" && !filepath.IsAbs(cfg.Macros.Database) {
		cfg.Macros.Database = filepath.Join(cfg.BaseDir, cfg.Macros.Database)
	}
	if cfg.REPL.HistoryFile != "" && !filepath.IsAbs(cfg.REPL.HistoryFile) {
		cfg.REPL.HistoryFile = filepath.Join(cfg.BaseDir, cfg.REPL.HistoryFile)
	}
}

// envOverrides lists the environment variables that override the file.
// Unset variables leave the file's values alone.
type envOverrides struct {
	MacroFiles  []string `env:"ROLL_MACROS" envSeparator:","`
	Database    *string  `env:"ROLL_DB"`
	Watch       *bool    `env:"ROLL_WATCH"`
	MaxDepth    *int     `env:"ROLL_MAX_DEPTH"`
	MaxDice     *int     `env:"ROLL_MAX_DICE"`
	HistoryFile *string  `env:"ROLL_HISTORY_FILE"`
	Prompt      *string  `env:"ROLL_PROMPT"`
	Color       *bool    `env:"ROLL_COLOR"`
	Trace       *bool    `env:"ROLL_TRACE"`
	Seed        *uint64  `env:"ROLL_SEED"`
	NoColor     string   `env:"NO_COLOR"`
}

// applyEnv applies ROLL_* overrides read through getenv
func applyEnv(cfg *Config, getenv func(string) string) error {
	var o envOverrides

	params, err := env.GetFieldParams(&o)
	if err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	environment := make(map[string]string, len(params))
	for _, p := range params {
		if v := getenv(p.Key); v != "" {
			environment[p.Key] = v
		}
	}

	if err := env.ParseWithOptions(&o, env.Options{Environment: environment}); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}

	if len(o.MacroFiles) > 0 {
		cfg.Macros.Files = o.MacroFiles
	}
	if o.Database != nil {
		cfg.Macros.Database = *o.Database
	}
	if o.Watch != nil {
		cfg.Macros.Watch = *o.Watch
	}
	if o.MaxDepth != nil {
		cfg.Limits.MaxDepth = *o.MaxDepth
	}
	if o.MaxDice != nil {
		cfg.Limits.MaxDice = *o.MaxDice
	}
	if o.HistoryFile != nil {
		cfg.REPL.HistoryFile = *o.HistoryFile
	}
	if o.Prompt != nil {
		cfg.REPL.Prompt = *o.Prompt
	}
	if o.Color != nil {
		cfg.Output.Color = *o.Color
	}
	if o.NoColor != "" {
		cfg.Output.Color = false
	}
	if o.Trace != nil {
		cfg.Output.Trace = *o.Trace
	}
	if o.Seed != nil {
		cfg.Seed = *o.Seed
	}

	return nil
}

// Validate checks the configuration and reports every problem at once.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Limits.MaxDepth < 1 {
		errs = append(errs, fmt.Sprintf("limits.max_depth: %d (must be at least 1)", cfg.Limits.MaxDepth))
	}
	if cfg.Limits.MaxDice < 1 {
		errs = append(errs, fmt.Sprintf("limits.max_dice: %d (must be at least 1)", cfg.Limits.MaxDice))
	}

	for i, file := range cfg.Macros.Files {
		if strings.TrimSpace(file) == "" {
			errs = append(errs, fmt.Sprintf("macros.files[%d]: path is empty", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// resolveConfigPath finds the config file to use.
// Search order: explicit path > ROLL_CONFIG env > ./roll.yaml > ~/.config/roll/roll.yaml
func resolveConfigPath(explicit string, getenv func(string) string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: %s", ErrNotFound, explicit)
		}
		return explicit, nil
	}

	if envPath := getenv("ROLL_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("%w: ROLL_CONFIG=%s", ErrNotFound, envPath)
		}
		return envPath, nil
	}

	if _, err := os.Stat("roll.yaml"); err == nil {
		return "roll.yaml", nil
	}

	home, err := os.UserHomeDir()
	if err == nil {
		xdgPath := filepath.Join(home, ".config", "roll", "roll.yaml")
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath, nil
		}
	}

	// no file anywhere: run on defaults
	return "", nil
}

// envPattern matches ${VAR} or ${VAR:-default}
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// interpolateEnv replaces ${VAR} and ${VAR:-default} patterns with environment values.
func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := string(parts[1])
		value := getenv(varName)

		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}

		return []byte(value)
	})
}
