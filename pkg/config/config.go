package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/sirupsen/logrus"

	"github.com/panbanda/defectmine/internal/logging"
)

// Environment variables overlaid on the loaded configuration.
const (
	EnvPMDHome       = "PMD_HOME"
	EnvCutPercentage = "DEFECTMINE_CUT_PERCENTAGE"
)

// DefaultCutPercentage is used when the configured cut is missing or invalid.
const DefaultCutPercentage = 0.5

// ErrMissingPMDHome is returned by Validate when no PMD installation is set.
var ErrMissingPMDHome = errors.New("pmd home is not configured (set pmd.home or PMD_HOME)")

// Config holds all configuration options for defectmine.
type Config struct {
	PMD     PMDConfig     `koanf:"pmd" toml:"pmd"`
	Dataset DatasetConfig `koanf:"dataset" toml:"dataset"`
	Jira    JiraConfig    `koanf:"jira" toml:"jira"`
	Mining  MiningConfig  `koanf:"mining" toml:"mining"`
	Cache   CacheConfig   `koanf:"cache" toml:"cache"`
	Output  OutputConfig  `koanf:"output" toml:"output"`
	Log     LogConfig     `koanf:"log" toml:"log"`
}

// PMDConfig locates the PMD installation.
type PMDConfig struct {
	Home    string `koanf:"home" toml:"home"`
	Ruleset string `koanf:"ruleset" toml:"ruleset"` // empty uses the bundled ruleset
	Timeout int    `koanf:"timeout" toml:"timeout"` // seconds per run
	Enabled bool   `koanf:"enabled" toml:"enabled"`
}

// DatasetConfig controls windowing and dataset files.
type DatasetConfig struct {
	CutPercentage float64 `koanf:"cut_percentage" toml:"cut_percentage"`
	Parquet       bool    `koanf:"parquet" toml:"parquet"`
}

// JiraConfig points at the issue tracker.
type JiraConfig struct {
	BaseURL string  `koanf:"base_url" toml:"base_url"`
	Rate    float64 `koanf:"rate" toml:"rate"` // requests per second, <= 0 is unlimited
	// ReferenceProjects feed the cold-start proportion; empty uses the
	// built-in Apache panel.
	ReferenceProjects []string `koanf:"reference_projects" toml:"reference_projects"`
}

// MiningConfig controls the per-project pipeline.
type MiningConfig struct {
	Workers  int    `koanf:"workers" toml:"workers"` // 0 uses the CPU count
	Workdir  string `koanf:"workdir" toml:"workdir"` // clone directory
	Evaluate bool   `koanf:"evaluate" toml:"evaluate"`
	Seed     uint64 `koanf:"seed" toml:"seed"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled" toml:"enabled"`
	Dir     string `koanf:"dir" toml:"dir"`
	TTL     int    `koanf:"ttl" toml:"ttl"` // TTL in hours
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Dir     string `koanf:"dir" toml:"dir"`
	Format  string `koanf:"format" toml:"format"` // text, json, toon, markdown, csv
	Color   bool   `koanf:"color" toml:"color"`
	Verbose bool   `koanf:"verbose" toml:"verbose"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `koanf:"level" toml:"level"`
	Format string `koanf:"format" toml:"format"` // text or json
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PMD: PMDConfig{
			Timeout: 300,
			Enabled: true,
		},
		Dataset: DatasetConfig{
			CutPercentage: DefaultCutPercentage,
		},
		Jira: JiraConfig{
			BaseURL: "https://issues.apache.org/jira",
			Rate:    5,
		},
		Mining: MiningConfig{
			Workdir:  ".defectmine/repos",
			Evaluate: true,
			Seed:     1,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".defectmine/cache",
			TTL:     24,
		},
		Output: OutputConfig{
			Dir:    "output",
			Format: "text",
			Color:  true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a file and applies the environment overlay.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// Locate returns the first config file found in the standard locations, or
// "" when there is none.
func Locate() string {
	configNames := []string{
		"defectmine.toml",
		"defectmine.yaml",
		"defectmine.yml",
		"defectmine.json",
	}

	for _, dir := range []string{".", ".defectmine"} {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// LoadOrDefault tries to load config from standard locations or returns
// defaults. The environment overlay is applied either way.
func LoadOrDefault() *Config {
	if path := Locate(); path != "" {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}

	cfg := DefaultConfig()
	cfg.ApplyEnv(os.LookupEnv)
	return cfg
}

// ApplyEnv overlays PMD_HOME and DEFECTMINE_CUT_PERCENTAGE. An unparsable
// cut percentage is stored as -1 so Validate reports and replaces it.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvPMDHome); ok && v != "" {
		c.PMD.Home = v
	}
	if v, ok := lookup(EnvCutPercentage); ok && v != "" {
		pct, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			c.Dataset.CutPercentage = -1
			return
		}
		c.Dataset.CutPercentage = pct
	}
}

// Validate checks the configuration. A cut percentage outside (0, 1] is
// replaced by DefaultCutPercentage with a warning. A missing PMD home is
// fatal only while PMD is enabled.
func (c *Config) Validate(logger logrus.FieldLogger) error {
	if !(c.Dataset.CutPercentage > 0 && c.Dataset.CutPercentage <= 1) {
		logging.OrDiscard(logger).Warnf("cut percentage %v is not in (0, 1], using %v",
			c.Dataset.CutPercentage, DefaultCutPercentage)
		c.Dataset.CutPercentage = DefaultCutPercentage
	}
	if c.PMD.Enabled && c.PMD.Home == "" {
		return ErrMissingPMDHome
	}
	if c.Mining.Workers < 0 {
		return fmt.Errorf("mining.workers must not be negative, got %d", c.Mining.Workers)
	}
	return nil
}

// PMDTimeout returns the per-run PMD timeout.
func (c *Config) PMDTimeout() time.Duration {
	if c.PMD.Timeout <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.PMD.Timeout) * time.Second
}

// CacheTTL returns the cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTL) * time.Hour
}
