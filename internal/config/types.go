package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the daemon configuration, decoded strictly: unknown fields are
// rejected so typos surface at load time instead of silently defaulting.
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Cycle   CycleConfig   `json:"cycle"`
	Engine  EngineConfig  `json:"engine,omitempty"`
	Notify  *NotifyConfig `json:"notify,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./planwork.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// CycleConfig controls the periodic generation cycle.
type CycleConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule is a crontab spec for when the cycle runs (default "@daily").
	Schedule string `json:"schedule,omitempty"`
	// HorizonDays is how far ahead recurring tasks are generated (default 14).
	HorizonDays int `json:"horizon_days,omitempty"`
	// Timezone is the IANA zone the schedule is evaluated in (default UTC).
	Timezone string `json:"timezone,omitempty"`
}

// EngineConfig tunes engine limits.
type EngineConfig struct {
	// MaxRangeDays caps a single recurring generation range (default 90).
	MaxRangeDays int `json:"max_range_days,omitempty"`
}

// NotifyConfig controls Telegram delivery of notifications. Omitting the
// whole section disables it.
type NotifyConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token,omitempty"`
	ChatID     int64  `json:"chat_id,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
}

// Validate rejects configs that cannot produce a working daemon.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if _, err := c.StorageBusyTimeout(); err != nil {
		return err
	}
	if c.Engine.MaxRangeDays < 0 {
		return fmt.Errorf("engine.max_range_days must not be negative")
	}
	if c.Cycle.HorizonDays < 0 {
		return fmt.Errorf("cycle.horizon_days must not be negative")
	}
	if c.Notify != nil && c.Notify.Enabled {
		if strings.TrimSpace(c.Notify.Token) == "" {
			return fmt.Errorf("notify.token is required when notify.enabled")
		}
		if c.Notify.ChatID == 0 {
			return fmt.Errorf("notify.chat_id is required when notify.enabled")
		}
	}
	return nil
}

// StorageBusyTimeout parses the sqlite busy timeout duration string.
func (c *Config) StorageBusyTimeout() (time.Duration, error) {
	raw := strings.TrimSpace(c.Storage.BusyTimeout)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("storage.busy_timeout: %w", err)
	}
	return d, nil
}
