// Package config loads the YAML server configuration: listen address,
// storage paths, buffer pool sizing, and the cron schedule for periodic
// maintenance.
//
// Grounded on teacher internal/testhelper/examples_test.go's struct-tag
// yaml.Unmarshal usage (gopkg.in/yaml.v3), generalized from a test
// fixture decoder to the server's own configuration file.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/crustylabs/crustydb/internal/dberr"
)

// Config is the top-level server configuration document.
type Config struct {
	Listen      string      `yaml:"listen"`
	DataDir     string      `yaml:"data_dir"`
	BufferPool  BufferPool  `yaml:"buffer_pool"`
	PlanCache   PlanCache   `yaml:"plan_cache"`
	StringPool  StringPool  `yaml:"string_pool"`
	Maintenance Maintenance `yaml:"maintenance"`
	Quiet       bool        `yaml:"quiet"`
}

// BufferPool sizes the shared page cache.
type BufferPool struct {
	Capacity int `yaml:"capacity"`
}

// PlanCache sizes the plan-hash LRU cache.
type PlanCache struct {
	Capacity int `yaml:"capacity"`
}

// StringPool sizes the small-string interning pool.
type StringPool struct {
	Capacity int `yaml:"capacity"`
}

// Maintenance configures the periodic checkpoint/reservoir-persist
// schedule run via github.com/robfig/cron/v3.
type Maintenance struct {
	// CronSpec is a schedule in the syntax of robfig/cron/v3's default
	// parser: a 5-field cron expression or a descriptor such as
	// "@every 5m". Empty disables scheduled maintenance entirely.
	CronSpec string `yaml:"cron_spec"`
	// StatsFile is where the reservoir sample manager persists on each
	// maintenance tick and on shutdown.
	StatsFile string `yaml:"stats_file"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Listen:      "127.0.0.1:7432",
		DataDir:     "./crustydata",
		BufferPool:  BufferPool{Capacity: 256},
		PlanCache:   PlanCache{Capacity: 128},
		StringPool:  StringPool{Capacity: 1024},
		Maintenance: Maintenance{CronSpec: "@every 5m", StatsFile: "./crustydata/stats.json"},
	}
}

// Load reads and parses a YAML configuration file at path, filling any
// zero-valued fields from Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, dberr.Wrap(dberr.KindValidation, "read config file", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, dberr.Wrap(dberr.KindValidation, "parse config file", err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(c *Config) {
	d := Default()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.BufferPool.Capacity <= 0 {
		c.BufferPool.Capacity = d.BufferPool.Capacity
	}
	if c.PlanCache.Capacity <= 0 {
		c.PlanCache.Capacity = d.PlanCache.Capacity
	}
	if c.StringPool.Capacity <= 0 {
		c.StringPool.Capacity = d.StringPool.Capacity
	}
	if c.Maintenance.StatsFile == "" {
		c.Maintenance.StatsFile = d.Maintenance.StatsFile
	}
}
