// Package config loads the application configuration from the config
// file, environment variables and defaults.
package config

import (
	"path/filepath"
	"time"
)

// Config holds the resolved application configuration.
type Config struct {
	// Host is the address the API server binds to.
	Host string `mapstructure:"host"`
	// Port is the port the API server listens on.
	Port int `mapstructure:"port"`

	// DataDir is the base directory for persisted state.
	DataDir string `mapstructure:"dataDir"`
	// RunsDir is the directory holding one JSON record per run.
	RunsDir string `mapstructure:"runsDir"`
	// SchedulesFile is the snapshot file holding every schedule record.
	SchedulesFile string `mapstructure:"schedulesFile"`

	// SchedulerTick is the poll interval of the schedule runner.
	SchedulerTick time.Duration `mapstructure:"schedulerTick"`

	Debug     bool   `mapstructure:"debug"`
	Quiet     bool   `mapstructure:"quiet"`
	LogFormat string `mapstructure:"logFormat"`
}

// setDerivedPaths fills in paths that default relative to DataDir.
func (c *Config) setDerivedPaths() {
	if c.RunsDir == "" {
		c.RunsDir = filepath.Join(c.DataDir, "runs")
	}
	if c.SchedulesFile == "" {
		c.SchedulesFile = filepath.Join(c.DataDir, "schedules.json")
	}
}
