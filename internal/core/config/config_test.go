package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dataDir := t.TempDir()

	cfg, err := Load("", dataDir)
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, "default", cfg.Tenant)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, "tokyo-night", cfg.Theme)
	assert.Equal(t, 4, cfg.Schedule.Lookahead)
	assert.Equal(t, 10*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, BackendSQLite, cfg.Storage.Orders)
	assert.Equal(t, filepath.Join(dataDir, "pickup.db"), cfg.DatabaseFile())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "thursday", cfg.Cycle.PickupDay)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
tenant: farm-42
buyer: alice
timezone: Europe/Berlin
theme: gruvbox
cycle:
  pickup_day: friday
  deadline_day: wed
  deadline_time: "18:30"
schedule:
  lookahead: 6
remote:
  timeout: 3s
storage:
  orders: memory
  drafts: s3
  s3:
    bucket: carts
    region: eu-central-1
sweep:
  interval: 30s
`)

	cfg, err := Load(path, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "farm-42", cfg.Tenant)
	assert.Equal(t, "alice", cfg.Buyer)
	assert.Equal(t, "gruvbox", cfg.Theme)
	assert.Equal(t, 6, cfg.Schedule.Lookahead)
	assert.Equal(t, 3*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Sweep.Interval)
	assert.Equal(t, "carts", cfg.Storage.S3.Bucket)
	assert.Equal(t, "drafts/", cfg.Storage.S3.Prefix, "unset nested keys keep defaults")
	assert.False(t, cfg.UsesSQLite())

	cycle, err := cfg.ScheduleCycle()
	require.NoError(t, err)
	assert.Equal(t, time.Friday, cycle.PickupWeekday)
	assert.Equal(t, time.Wednesday, cycle.DeadlineWeekday)
	assert.Equal(t, 18, cycle.DeadlineHour)
	assert.Equal(t, 30, cycle.DeadlineMinute)

	calc, err := cfg.Calculator()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", calc.Zone().String())
}

func TestLoad_ParseError(t *testing.T) {
	path := writeConfig(t, "tenant: [unterminated")
	_, err := Load(path, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestLoad_NegativeSweepInterval(t *testing.T) {
	path := writeConfig(t, "sweep:\n  interval: -1m\n")
	_, err := Load(path, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep.interval")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing data dir", mutate: func(c *Config) { c.DataDir = "" }, wantErr: "data directory"},
		{name: "bad pickup day", mutate: func(c *Config) { c.Cycle.PickupDay = "someday" }, wantErr: "cycle.pickup_day"},
		{name: "bad deadline time", mutate: func(c *Config) { c.Cycle.DeadlineTime = "25:00" }, wantErr: "cycle.deadline_time"},
		{name: "bad timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }, wantErr: "timezone"},
		{name: "theme", mutate: func(c *Config) { c.Theme = "neon" }, wantErr: "theme"},
		{name: "lookahead", mutate: func(c *Config) { c.Schedule.Lookahead = -1 }, wantErr: "lookahead"},
		{name: "orders backend", mutate: func(c *Config) { c.Storage.Orders = "s3" }, wantErr: "storage.orders"},
		{name: "drafts backend", mutate: func(c *Config) { c.Storage.Drafts = "postgres" }, wantErr: "storage.drafts"},
		{name: "sweep interval", mutate: func(c *Config) { c.Sweep.Interval = -time.Minute }, wantErr: "sweep.interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.DataDir = t.TempDir()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
