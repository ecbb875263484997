// Package config loads procwalk settings from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srodi/procwalk/pkg/graph/procfs"
	"github.com/srodi/procwalk/pkg/types"
)

// Process graph backends.
const (
	BackendProcfs = "procfs"
	BackendPsutil = "psutil"
)

// Caller memory backends the calls run against.
const (
	MemoryArena     = "arena"
	MemoryProcessVM = "processvm"
	MemoryBPFMap    = "bpfmap"
)

// Config holds settings shared by every subcommand. Flags given on the
// command line override values read from the file.
type Config struct {
	Size       int64         `yaml:"size"`
	Backend    string        `yaml:"backend"`
	Memory     string        `yaml:"memory"`
	ProcRoot   string        `yaml:"proc_root"`
	HideKernel *bool         `yaml:"hide_kernel"`
	LogLevel   string        `yaml:"log_level"`
	Watch      time.Duration `yaml:"watch"`
}

// Default returns a normalized zero config.
func Default() Config {
	var cfg Config
	_ = cfg.Normalize()
	return cfg
}

// Load reads path. An empty path returns Default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and normalizes a YAML document. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse the config: %w", err)
	}
	if err := cfg.Normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Normalize fills defaults and clamps out-of-range values, then validates.
func (c *Config) Normalize() error {
	if c.Size <= 0 {
		c.Size = types.DefaultDepth
	}
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = BackendProcfs
	}
	c.Memory = strings.ToLower(strings.TrimSpace(c.Memory))
	if c.Memory == "" {
		c.Memory = MemoryArena
	}
	if c.ProcRoot == "" {
		c.ProcRoot = procfs.DefaultRoot
	}
	if c.LogLevel == "" {
		c.LogLevel = logrus.InfoLevel.String()
	}
	if c.Watch < 0 {
		c.Watch = 0
	}

	return c.Validate()
}

// Validate reports values that cannot be interpreted.
func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendProcfs, BackendPsutil:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendProcfs, BackendPsutil))
	}
	switch c.Memory {
	case MemoryArena, MemoryProcessVM, MemoryBPFMap:
	default:
		errs = append(errs, fmt.Errorf("unknown memory %q (want %s, %s or %s)", c.Memory, MemoryArena, MemoryProcessVM, MemoryBPFMap))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
