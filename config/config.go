package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brettbedarf/devfs/internal/util"
	"gopkg.in/yaml.v3"
)

// Verbosity levels accepted by LogLvl overrides (CLI style, 1..5)
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultFsName = "devfs"
	DefaultName   = "devfs"

	DefaultLogLvl = util.InfoLevel

	// DefaultMaxVnodes of 0 means the node store is unbounded
	DefaultMaxVnodes = 0

	// DefaultMaxPathLen mirrors the kernel's maximum path length
	DefaultMaxPathLen = 1024

	// DefaultAttrTimeout is the attribute cache timeout in seconds
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the directory entry cache timeout in seconds
	DefaultEntryTimeout = 1.0
)

// DeviceConfig describes a device published at start-up
type DeviceConfig struct {
	Path    string            `yaml:"path" json:"path"`       // namespace path, e.g. "net/loop/0"
	Driver  string            `yaml:"driver" json:"driver"`   // registered driver type
	Options map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
}

// MountOptions are the FUSE mount settings; no go-fuse types leak out of here
type MountOptions struct {
	Debug  bool   // go-fuse wire debug logging
	FsName string // source column shown by mount(8)
	Name   string // subtype, shown as fuse.<Name>
}

// Config contains runtime configuration values for the device filesystem.
type Config struct {
	MountOptions
	LogLvl       util.LogLevel
	MaxVnodes    int     // Maximum live nodes, root included; 0 is unbounded (Default 0)
	MaxPathLen   int     // Publish paths are truncated to this many bytes (Default 1024)
	AttrTimeout  float64 // FUSE attribute cache timeout in seconds (Default 1.0)
	EntryTimeout float64 // FUSE directory entry cache timeout in seconds (Default 1.0)
	Devices      []DeviceConfig
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	Debug        *bool          `yaml:"debug,omitempty" json:"debug,omitempty"`
	FsName       *string        `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name         *string        `yaml:"name,omitempty" json:"name,omitempty"`
	LogLvl       *int           `yaml:"log_level,omitempty" json:"log_level,omitempty"` // verbosity 1 (error) to 5 (trace)
	MaxVnodes    *int           `yaml:"max_vnodes,omitempty" json:"max_vnodes,omitempty"`
	MaxPathLen   *int           `yaml:"max_path_len,omitempty" json:"max_path_len,omitempty"`
	AttrTimeout  *float64       `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty"`
	EntryTimeout *float64       `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty"`
	Devices      []DeviceConfig `yaml:"devices,omitempty" json:"devices,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		LogLvl:       DefaultLogLvl,
		MaxVnodes:    DefaultMaxVnodes,
		MaxPathLen:   DefaultMaxPathLen,
		AttrTimeout:  DefaultAttrTimeout,
		EntryTimeout: DefaultEntryTimeout,
	}
}

// NewConfig returns the defaults with override applied; override may be nil
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
// Devices are appended rather than replaced so several sources can contribute.
func (c *Config) Merge(override *ConfigOverride) {
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
	if override.LogLvl != nil {
		c.LogLvl = util.LevelFromVerbosity(*override.LogLvl)
	}
	if override.MaxVnodes != nil {
		c.MaxVnodes = *override.MaxVnodes
	}
	if override.MaxPathLen != nil {
		c.MaxPathLen = *override.MaxPathLen
	}
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
	c.Devices = append(c.Devices, override.Devices...)
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
func NewConfigFromFile(path string) (*Config, error) {
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	return NewConfig(override), nil
}
