package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

var (
	ErrInvalidAPIURL       = errors.New("node API URL must be set")
	ErrInvalidPollInterval = errors.New("poll interval must be greater than 0")
	ErrInvalidSyncWait     = errors.New("sync wait must not be negative")
)

// Config holds all application configuration
type Config struct {
	// API is the node's local HTTP endpoint.
	API string `mapstructure:"api"`
	// AllocationID is the storage allocation credential the node
	// requires before accepting a payload.
	AllocationID string `mapstructure:"allocation_id"`
	// PollInterval is the fixed cadence of transfer status polling.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// SyncWait bounds how long a session keeps polling for full network
	// sync after the payload transfer itself has finished. Reaching the
	// bound is a soft success: the content address exists, propagation
	// is simply still in progress.
	SyncWait time.Duration `mapstructure:"sync_wait"`
	// DataDir holds the transfer metadata table.
	DataDir string `mapstructure:"data_dir"`
	// TempDir is where packed directory artifacts are staged.
	TempDir string `mapstructure:"temp_dir"`
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		API:          "http://127.0.0.1:6710",
		PollInterval: time.Second,
		SyncWait:     2 * time.Minute,
		DataDir:      filepath.Join(home, ".porter"),
		TempDir:      "",
	}
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	if c.API == "" {
		return ErrInvalidAPIURL
	}
	if c.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	if c.SyncWait < 0 {
		return ErrInvalidSyncWait
	}
	return nil
}

// StorePath is the location of the transfer metadata table.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "transfers.json")
}

// LegacyStorePaths are older table locations consulted once when the
// current table is empty.
func (c *Config) LegacyStorePaths() []string {
	return []string{filepath.Join(c.DataDir, "uploads.json")}
}
