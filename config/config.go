package config

import (
	"os"
	"path/filepath"
)

// Config represents the complete roll configuration
type Config struct {
	BaseDir string       `yaml:"-"` // Directory containing config file, for resolving relative paths
	Path    string       `yaml:"-"` // Config file that was loaded, empty when running on defaults
	Macros  MacrosConfig `yaml:"macros"`
	Limits  LimitsConfig `yaml:"limits"`
	REPL    REPLConfig   `yaml:"repl"`
	Output  OutputConfig `yaml:"output"`
	Seed    uint64       `yaml:"seed"` // Non-zero makes rolls repeatable
}

// MacrosConfig holds macro sources
type MacrosConfig struct {
	Files    []string `yaml:"files"`    // YAML macro files, later files win
	Database string   `yaml:"database"` // SQLite macro store; its macros are overridden by files
	Watch    bool     `yaml:"watch"`    // Reload files in the REPL when they change
}

// LimitsConfig bounds a single interpretation
type LimitsConfig struct {
	MaxDepth int `yaml:"max_depth"` // Macro and inline roll nesting
	MaxDice  int `yaml:"max_dice"`  // Dice in one NdX term
}

// REPLConfig holds interactive settings
type REPLConfig struct {
	HistoryFile string `yaml:"history_file"` // default: $TMPDIR/.roll_history
	Prompt      string `yaml:"prompt"`
}

// OutputConfig holds display settings
type OutputConfig struct {
	Color bool `yaml:"color"`
	Trace bool `yaml:"trace"` // Log macro expansions, queries and dice
}

// Defaults returns a Config with sensible defaults
func Defaults() *Config {
	return &Config{
		Macros: MacrosConfig{
			Watch: true,
		},
		Limits: LimitsConfig{
			MaxDepth: 32,
			MaxDice:  1000,
		},
		REPL: REPLConfig{
			Prompt: "🎲 ",
		},
		Output: OutputConfig{
			Color: true,
		},
	}
}

// HistoryPath returns the REPL history file
func (c *Config) HistoryPath() string {
	if c.REPL.HistoryFile != "" {
		return c.REPL.HistoryFile
	}
	return filepath.Join(os.TempDir(), ".roll_history")
}
