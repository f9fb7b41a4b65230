// Package config handles lox.toml interpreter configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "lox.toml"

// Config represents a lox.toml file.
type Config struct {
	VM    VM    `toml:"vm"`
	GC    GC    `toml:"gc"`
	Debug Debug `toml:"debug"`
	REPL  REPL  `toml:"repl"`
	Log   Log   `toml:"log"`

	// Path is the file the configuration was read from (set at load time).
	Path string `toml:"-"`
}

// VM sizes the interpreter.
type VM struct {
	MaxFrames        int `toml:"max_frames"`
	StackSlots       int `toml:"stack_slots"`
	InstructionLimit int `toml:"instruction_limit"`
}

// GC configures collection scheduling.
type GC struct {
	InitialThreshold int     `toml:"initial_threshold"`
	GrowthFactor     float64 `toml:"growth_factor"`
	Stress           bool    `toml:"stress"`
}

// Debug toggles execution tracing and disassembly output.
type Debug struct {
	Trace       bool `toml:"trace"`
	Disassemble bool `toml:"disassemble"`
}

// REPL configures the interactive prompt.
type REPL struct {
	Prompt  string `toml:"prompt"`
	History string `toml:"history"`
}

// Log sets the commonlog verbosity.
type Log struct {
	Verbosity int `toml:"verbosity"`
}

// Default returns the configuration used when no lox.toml is present.
func Default() *Config {
	return &Config{
		VM: VM{
			MaxFrames:  64,
			StackSlots: 64 * 256,
		},
		GC: GC{
			InitialThreshold: 1024 * 1024,
			GrowthFactor:     2,
		},
		REPL: REPL{
			Prompt:  "> ",
			History: ".lox_history",
		},
	}
}

// Load parses the configuration file at path. Keys missing from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if _, err := toml.Decode(string(data), c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a lox.toml file, then loads it.
// Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Validate rejects settings the interpreter cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.VM.MaxFrames < 1:
		return fmt.Errorf("vm.max_frames must be at least 1, got %d", c.VM.MaxFrames)
	case c.VM.StackSlots < 0:
		return fmt.Errorf("vm.stack_slots must not be negative, got %d", c.VM.StackSlots)
	case c.VM.InstructionLimit < 0:
		return fmt.Errorf("vm.instruction_limit must not be negative, got %d", c.VM.InstructionLimit)
	case c.GC.InitialThreshold < 1:
		return fmt.Errorf("gc.initial_threshold must be positive, got %d", c.GC.InitialThreshold)
	case c.GC.GrowthFactor <= 1:
		return fmt.Errorf("gc.growth_factor must be greater than 1, got %g", c.GC.GrowthFactor)
	case c.Log.Verbosity < 0:
		return fmt.Errorf("log.verbosity must not be negative, got %d", c.Log.Verbosity)
	}
	return nil
}

// HistoryPath resolves the REPL history file. Relative names are placed in
// the user's home directory. An empty name disables history.
func (c *Config) HistoryPath() string {
	if c.REPL.History == "" || filepath.IsAbs(c.REPL.History) {
		return c.REPL.History
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return c.REPL.History
	}
	return filepath.Join(home, c.REPL.History)
}
