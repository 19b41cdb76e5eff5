// Package config holds the options of a dmerg run.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"dmerg/internal/kernel"
)

// Config is the configuration of one run. Zero values are valid defaults.
type Config struct {
	Dmesg        bool          `yaml:"dmesg"`         // poll the ring buffer instead of the journal
	Kmsg         bool          `yaml:"kmsg"`          // read /dev/kmsg instead of the journal
	ConsoleOff   bool          `yaml:"console_off"`   // do not echo entries to stdout
	Full         bool          `yaml:"full"`          // include kernel messages older than the start
	Output       string        `yaml:"output"`        // output path, generated when empty
	PollInterval time.Duration `yaml:"poll_interval"` // ring buffer poll interval
	Verbose      bool          `yaml:"verbose"`
}

// Default returns the configuration used when nothing is configured.
func Default() Config {
	return Config{PollInterval: kernel.DefaultPollInterval}
}

// Load reads a YAML configuration file on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks for contradicting or out of range options.
func (c Config) Validate() error {
	if c.Dmesg && c.Kmsg {
		return errors.New("dmesg and kmsg are mutually exclusive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	return nil
}

// SourceKind returns the kernel log strategy selected by the configuration.
func (c Config) SourceKind() kernel.Kind {
	switch {
	case c.Dmesg:
		return kernel.KindDmesg
	case c.Kmsg:
		return kernel.KindKmsg
	default:
		return kernel.KindJournal
	}
}
