package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/srodi/memtop/pkg/aggregate"
	"github.com/srodi/memtop/pkg/chart"
	"github.com/srodi/memtop/pkg/report"
	"github.com/srodi/memtop/pkg/types"
)

const (
	DefaultInterval = time.Second
	DefaultLogPath  = "docker_mem_log.csv"
	DefaultRuntime  = "docker"
)

// Config is the sampler configuration. MaxTicks of zero samples until interrupted.
type Config struct {
	Interval    time.Duration    `yaml:"interval"`
	ExecTimeout time.Duration    `yaml:"exec_timeout"`
	TopN        int              `yaml:"top_n"`
	Policy      aggregate.Policy `yaml:"policy"`
	Runtime     string           `yaml:"runtime"`
	LogPath     string           `yaml:"log_path"`
	SummaryPath string           `yaml:"summary_path"`
	ReportUnit  string           `yaml:"report_unit"`
	MetricsAddr string           `yaml:"metrics_addr"`
	LogLevel    string           `yaml:"log_level"`
	MaxTicks    int              `yaml:"max_ticks"`
	Chart       ChartConfig      `yaml:"chart"`
}

type ChartConfig struct {
	chart.Exclusion `yaml:",inline"`
	Width           int `yaml:"width"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{Chart: ChartConfig{Exclusion: chart.DefaultExclusion()}}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML file, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{Chart: ChartConfig{Exclusion: chart.DefaultExclusion()}}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.ExecTimeout == 0 {
		c.ExecTimeout = c.Interval
	}
	if c.TopN == 0 {
		c.TopN = types.DefaultTopK
	}
	if c.Runtime == "" {
		c.Runtime = DefaultRuntime
	}
	if c.LogPath == "" {
		c.LogPath = DefaultLogPath
	}
	if c.ReportUnit == "" {
		c.ReportUnit = string(report.MiB)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Chart.Width == 0 {
		c.Chart.Width = 50
	}
}

// Validate rejects settings the sampler cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %s", c.Interval))
	}
	if c.ExecTimeout <= 0 {
		errs = append(errs, fmt.Errorf("exec_timeout must be positive, got %s", c.ExecTimeout))
	}
	if c.TopN <= 0 {
		errs = append(errs, fmt.Errorf("top_n must be positive, got %d", c.TopN))
	}
	if c.MaxTicks < 0 {
		errs = append(errs, fmt.Errorf("max_ticks must not be negative, got %d", c.MaxTicks))
	}
	if strings.TrimSpace(c.Runtime) == "" {
		errs = append(errs, errors.New("runtime is required"))
	}
	if strings.TrimSpace(c.LogPath) == "" {
		errs = append(errs, errors.New("log_path is required"))
	}
	if _, err := report.ParseUnit(c.ReportUnit); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Unit returns the parsed report unit.
func (c *Config) Unit() report.Unit {
	u, _ := report.ParseUnit(c.ReportUnit)
	return u
}

// ParseLogLevel maps debug/info/warn/error to slog levels.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}
