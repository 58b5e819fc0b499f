// Package config handles configuration loading and validation for pickup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hay-kot/pickup/internal/core/schedule"
	"github.com/hay-kot/pickup/internal/core/styles"
)

// Storage backend names.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
	BackendMemory   = "memory"
)

// Config holds the application configuration.
type Config struct {
	Tenant   string         `yaml:"tenant"`
	Buyer    string         `yaml:"buyer"`
	Timezone string         `yaml:"timezone"`
	Theme    string         `yaml:"theme"`
	Cycle    CycleConfig    `yaml:"cycle"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Remote   RemoteConfig   `yaml:"remote"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	DataDir  string         `yaml:"-"` // set by caller, not from config file
}

// CycleConfig is the tenant's weekly pickup cycle.
type CycleConfig struct {
	PickupDay    string `yaml:"pickup_day"`    // weekday name, e.g. "thursday"
	DeadlineDay  string `yaml:"deadline_day"`  // weekday name, e.g. "tuesday"
	DeadlineTime string `yaml:"deadline_time"` // HH:MM in the configured timezone
}

// ScheduleConfig controls how far ahead pickup dates are offered.
type ScheduleConfig struct {
	Lookahead int `yaml:"lookahead"`
}

// RemoteConfig bounds calls to the order, draft and profile stores.
type RemoteConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig selects the backends for orders and drafts.
type StorageConfig struct {
	Orders      string   `yaml:"orders"` // sqlite, postgres or memory
	Drafts      string   `yaml:"drafts"` // sqlite, s3 or memory
	PostgresDSN string   `yaml:"postgres_dsn"`
	S3          S3Config `yaml:"s3"`
}

// S3Config locates the bucket drafts are stored in.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
	PathStyle bool   `yaml:"path_style"`
}

// DatabaseConfig tunes the SQLite connection pool.
type DatabaseConfig struct {
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
}

// SweepConfig controls the background lock sweeper.
type SweepConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// MetricsConfig controls metrics export. An empty Textfile disables export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Tenant:   "default",
		Timezone: "UTC",
		Theme:    styles.DefaultTheme,
		Cycle: CycleConfig{
			PickupDay:    "thursday",
			DeadlineDay:  "tuesday",
			DeadlineTime: "23:59",
		},
		Schedule: ScheduleConfig{Lookahead: 4},
		Remote:   RemoteConfig{Timeout: 10 * time.Second},
		Storage: StorageConfig{
			Orders: BackendSQLite,
			Drafts: BackendSQLite,
			S3:     S3Config{Prefix: "drafts/"},
		},
		Database: DatabaseConfig{
			MaxOpenConns: 4,
			MaxIdleConns: 2,
			BusyTimeout:  5 * time.Second,
		},
		Sweep: SweepConfig{Interval: time.Minute},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	cfg.DataDir = dataDir
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Tenant == "" {
		c.Tenant = defaults.Tenant
	}
	if c.Timezone == "" {
		c.Timezone = defaults.Timezone
	}
	if c.Theme == "" {
		c.Theme = defaults.Theme
	}
	if c.Cycle.PickupDay == "" {
		c.Cycle.PickupDay = defaults.Cycle.PickupDay
	}
	if c.Cycle.DeadlineDay == "" {
		c.Cycle.DeadlineDay = defaults.Cycle.DeadlineDay
	}
	if c.Cycle.DeadlineTime == "" {
		c.Cycle.DeadlineTime = defaults.Cycle.DeadlineTime
	}
	if c.Schedule.Lookahead == 0 {
		c.Schedule.Lookahead = defaults.Schedule.Lookahead
	}
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = defaults.Remote.Timeout
	}
	if c.Storage.Orders == "" {
		c.Storage.Orders = defaults.Storage.Orders
	}
	if c.Storage.Drafts == "" {
		c.Storage.Drafts = defaults.Storage.Drafts
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = defaults.Database.MaxOpenConns
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = defaults.Database.MaxIdleConns
	}
	if c.Database.BusyTimeout == 0 {
		c.Database.BusyTimeout = defaults.Database.BusyTimeout
	}
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = defaults.Sweep.Interval
	}
}

// Validate checks that the configuration is structurally valid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	if c.Tenant == "" {
		return fmt.Errorf("tenant cannot be empty")
	}

	if _, err := c.ScheduleCycle(); err != nil {
		return err
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	if _, ok := styles.GetPalette(c.Theme); !ok {
		return fmt.Errorf("theme %q is unknown, want one of %v", c.Theme, styles.ThemeNames())
	}

	if c.Schedule.Lookahead < 1 {
		return fmt.Errorf("schedule.lookahead must be at least 1")
	}

	if c.Remote.Timeout < 0 {
		return fmt.Errorf("remote.timeout cannot be negative")
	}

	if c.Sweep.Interval < 0 {
		return fmt.Errorf("sweep.interval cannot be negative")
	}

	switch c.Storage.Orders {
	case BackendSQLite, BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("storage.orders has invalid backend %q", c.Storage.Orders)
	}

	switch c.Storage.Drafts {
	case BackendSQLite, BackendS3, BackendMemory:
	default:
		return fmt.Errorf("storage.drafts has invalid backend %q", c.Storage.Drafts)
	}

	return nil
}

// Location loads the configured IANA zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ScheduleCycle parses the cycle section.
func (c *Config) ScheduleCycle() (schedule.Cycle, error) {
	pickup, err := schedule.ParseWeekday(c.Cycle.PickupDay)
	if err != nil {
		return schedule.Cycle{}, fmt.Errorf("cycle.pickup_day: %w", err)
	}
	dl, err := schedule.ParseWeekday(c.Cycle.DeadlineDay)
	if err != nil {
		return schedule.Cycle{}, fmt.Errorf("cycle.deadline_day: %w", err)
	}
	hour, minute, err := schedule.ParseClock(c.Cycle.DeadlineTime)
	if err != nil {
		return schedule.Cycle{}, fmt.Errorf("cycle.deadline_time: %w", err)
	}
	return schedule.Cycle{
		PickupWeekday:   pickup,
		DeadlineWeekday: dl,
		DeadlineHour:    hour,
		DeadlineMinute:  minute,
	}, nil
}

// Calculator builds the schedule calculator for the configured cycle and zone.
func (c *Config) Calculator() (*schedule.Calculator, error) {
	cycle, err := c.ScheduleCycle()
	if err != nil {
		return nil, err
	}
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	return schedule.NewCalculator(cycle, loc)
}

// DatabaseFile returns the path to the SQLite database.
func (c *Config) DatabaseFile() string {
	return filepath.Join(c.DataDir, "pickup.db")
}

// UsesSQLite reports whether any store needs the local database. Buyer
// profiles live there whenever orders are not kept in memory.
func (c *Config) UsesSQLite() bool {
	return c.Storage.Orders != BackendMemory || c.Storage.Drafts == BackendSQLite
}
