// Package config handles retro.toml configuration.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked for in the working directory.
const FileName = "retro.toml"

// Error definitions
var (
	ErrBadNameOffset  = errors.New("name-offset must be 3 or 4")
	ErrMemoryTooSmall = errors.New("memory smaller than image-cells")
	ErrBadPrecision   = errors.New("decimal precision must be positive")
)

// Config represents a retro.toml file.
type Config struct {
	VM        VMConfig        `toml:"vm"`
	Assembler AssemblerConfig `toml:"assembler"`
	Decimal   DecimalConfig   `toml:"decimal"`
	Log       LogConfig       `toml:"log"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `toml:"-"`
}

// VMConfig configures the virtual machine.
type VMConfig struct {
	Memory        int   `toml:"memory"`
	NameOffset    int   `toml:"name-offset"`
	LegacyConsole bool  `toml:"legacy-console"`
	MaxSteps      int64 `toml:"max-steps"`
	SaveShrink    bool  `toml:"save-shrink"`
	Grow          bool  `toml:"grow"` // enlarge memory to fit a bigger image
}

// AssemblerConfig configures the assembler.
type AssemblerConfig struct {
	Fence      string `toml:"fence"`
	ImageCells int    `toml:"image-cells"`
}

// DecimalConfig configures the decimal device.
type DecimalConfig struct {
	Precision uint32 `toml:"precision"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		VM: VMConfig{
			Memory:        1000000,
			NameOffset:    4,
			LegacyConsole: true,
			SaveShrink:    true,
		},
		Assembler: AssemblerConfig{
			Fence:      "~~~",
			ImageCells: 1024,
		},
		Decimal: DecimalConfig{Precision: 34},
		Log:     LogConfig{Level: "warn"},
	}
}

// Load parses the file at path over the defaults. Keys missing from the
// file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Path = path

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Find loads path when it is set, else ./retro.toml when it exists, else
// the defaults.
func Find(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if _, err := os.Stat(FileName); err == nil {
		return Load(FileName)
	}
	return Default(), nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.VM.NameOffset != 3 && c.VM.NameOffset != 4 {
		return fmt.Errorf("%w: got %d", ErrBadNameOffset, c.VM.NameOffset)
	}
	if c.VM.Memory < c.Assembler.ImageCells {
		return fmt.Errorf("%w: %d < %d", ErrMemoryTooSmall, c.VM.Memory, c.Assembler.ImageCells)
	}
	if c.Decimal.Precision == 0 {
		return ErrBadPrecision
	}
	return nil
}
