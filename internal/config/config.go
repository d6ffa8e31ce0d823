// Package config provides configuration management for Cadence.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (CADENCE_*)
// 3. Project config (.cadence/config.yaml in cwd)
// 4. Home config (~/.cadence/config.yaml)
// 5. Defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/boshu2/cadence/internal/types"
)

// Config holds all Cadence configuration.
type Config struct {
	// Output controls the default output format (table, json, yaml).
	Output string `yaml:"output" json:"output"`

	// Verbose enables verbose output.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// Paths settings for data locations (configurable, not hardcoded).
	Paths PathsConfig `yaml:"paths" json:"paths"`

	// Gate settings.
	Gate GateConfig `yaml:"gate" json:"gate"`

	// Cooldown settings.
	Cooldown CooldownConfig `yaml:"cooldown" json:"cooldown"`
}

// PathsConfig holds configurable data locations.
type PathsConfig struct {
	// RunsRoot is where run trees are stored.
	// Default: .cadence/runs
	RunsRoot string `yaml:"runs_root" json:"runs_root"`

	// CyclesRoot is where cycle documents are stored.
	// Default: .cadence/cycles
	CyclesRoot string `yaml:"cycles_root" json:"cycles_root"`

	// SynthesisRoot is where synthesis inputs and results are exchanged.
	// Empty disables synthesis snapshot persistence.
	// Default: .cadence/synthesis
	SynthesisRoot string `yaml:"synthesis_root" json:"synthesis_root"`

	// LearningsFile is the learning log.
	// Default: .cadence/learnings.jsonl
	LearningsFile string `yaml:"learnings_file" json:"learnings_file"`

	// CitationsFile is the learning citation graph.
	// Default: .cadence/citations.jsonl
	CitationsFile string `yaml:"citations_file" json:"citations_file"`

	// TokensFile is the token usage ledger.
	// Default: .cadence/tokens.jsonl
	TokensFile string `yaml:"tokens_file" json:"tokens_file"`

	// RegistryFile holds katas, flavors, and step definitions.
	// Default: .cadence/registry.yaml
	RegistryFile string `yaml:"registry_file" json:"registry_file"`
}

// GateConfig holds gate evaluation settings.
type GateConfig struct {
	// CommandTimeoutSeconds bounds command-passes conditions.
	// Default: 30.
	CommandTimeoutSeconds int `yaml:"command_timeout_seconds" json:"command_timeout_seconds"`
}

// CooldownConfig holds cooldown session settings.
type CooldownConfig struct {
	// ReservePercent is the default cooldown reserve for new cycles.
	// Default: 10.
	ReservePercent float64 `yaml:"reserve_percent" json:"reserve_percent"`

	// Depth is the default synthesis depth (quick, standard, thorough).
	// Default: standard.
	Depth string `yaml:"depth" json:"depth"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput = "table"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Output:  defaultOutput,
		Verbose: false,
		Paths: PathsConfig{
			RunsRoot:      ".cadence/runs",
			CyclesRoot:    ".cadence/cycles",
			SynthesisRoot: ".cadence/synthesis",
			LearningsFile: ".cadence/learnings.jsonl",
			CitationsFile: ".cadence/citations.jsonl",
			TokensFile:    ".cadence/tokens.jsonl",
			RegistryFile:  ".cadence/registry.yaml",
		},
		Gate: GateConfig{
			CommandTimeoutSeconds: 30,
		},
		Cooldown: CooldownConfig{
			ReservePercent: types.DefaultCooldownReserve,
			Depth:          string(types.SynthesisStandard),
		},
	}
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	homeConfig, _ := loadFromPath(homeConfigPath())
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	projectConfig, _ := loadFromPath(projectConfigPath())
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	cfg = applyEnv(cfg)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values outside their domains.
func (c *Config) Validate() error {
	switch c.Output {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("invalid output %q (valid: table|json|yaml)", c.Output)
	}
	if c.Gate.CommandTimeoutSeconds <= 0 {
		return fmt.Errorf("gate command timeout must be positive, got %d", c.Gate.CommandTimeoutSeconds)
	}
	if c.Cooldown.ReservePercent < 0 || c.Cooldown.ReservePercent > 100 {
		return fmt.Errorf("cooldown reserve %.1f outside [0,100]", c.Cooldown.ReservePercent)
	}
	if !types.ValidSynthesisDepth(types.SynthesisDepth(c.Cooldown.Depth)) {
		return fmt.Errorf("invalid cooldown depth %q (valid: quick|standard|thorough)", c.Cooldown.Depth)
	}
	return nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cadence", "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("CADENCE_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".cadence", "config.yaml")
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("CADENCE_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if os.Getenv("CADENCE_VERBOSE") == "true" || os.Getenv("CADENCE_VERBOSE") == "1" {
		cfg.Verbose = true
	}
	if v := os.Getenv("CADENCE_RUNS_ROOT"); v != "" {
		cfg.Paths.RunsRoot = v
	}
	if v := os.Getenv("CADENCE_CYCLES_ROOT"); v != "" {
		cfg.Paths.CyclesRoot = v
	}
	if v := os.Getenv("CADENCE_SYNTHESIS_ROOT"); v != "" {
		cfg.Paths.SynthesisRoot = v
	}
	if v := os.Getenv("CADENCE_LEARNINGS_FILE"); v != "" {
		cfg.Paths.LearningsFile = v
	}
	if v := os.Getenv("CADENCE_TOKENS_FILE"); v != "" {
		cfg.Paths.TokensFile = v
	}
	if v := os.Getenv("CADENCE_REGISTRY_FILE"); v != "" {
		cfg.Paths.RegistryFile = v
	}
	if v := os.Getenv("CADENCE_COOLDOWN_DEPTH"); v != "" {
		cfg.Cooldown.Depth = v
	}
	return cfg
}

// mergeStr overwrites dst with src when src is non-empty.
func mergeStr(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// mergeInt overwrites dst with src when src is non-zero.
func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

// mergeFloat overwrites dst with src when src is non-zero.
func mergeFloat(dst *float64, src float64) {
	if src != 0 {
		*dst = src
	}
}

// merge merges src into dst, with src values taking precedence.
func merge(dst, src *Config) *Config {
	mergeStr(&dst.Output, src.Output)
	if src.Verbose {
		dst.Verbose = true
	}

	mergeStr(&dst.Paths.RunsRoot, src.Paths.RunsRoot)
	mergeStr(&dst.Paths.CyclesRoot, src.Paths.CyclesRoot)
	mergeStr(&dst.Paths.SynthesisRoot, src.Paths.SynthesisRoot)
	mergeStr(&dst.Paths.LearningsFile, src.Paths.LearningsFile)
	mergeStr(&dst.Paths.CitationsFile, src.Paths.CitationsFile)
	mergeStr(&dst.Paths.TokensFile, src.Paths.TokensFile)
	mergeStr(&dst.Paths.RegistryFile, src.Paths.RegistryFile)

	mergeInt(&dst.Gate.CommandTimeoutSeconds, src.Gate.CommandTimeoutSeconds)

	mergeFloat(&dst.Cooldown.ReservePercent, src.Cooldown.ReservePercent)
	mergeStr(&dst.Cooldown.Depth, src.Cooldown.Depth)

	return dst
}
