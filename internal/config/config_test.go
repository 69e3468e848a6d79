package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"reservation-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("ENGINE_DB_PATH", "data/engine.db")

	path := writeConfig(t, `
database:
  path: "${ENGINE_DB_PATH}"
engine:
  conflict_policy: approved_only
  waitlist_grace: 45m
notifications:
  delivery_timeout: 2s
principals:
  - id: 1
    role: approver
    display_name: "Olga"
    telegram_id: 5551
  - id: 2
    display_name: "Ivan"
groups:
  - id: 100
    name: "lab"
    members: [1]
resources:
  - id: 10
    name: "Room A"
    owner_type: group
    owner_id: 100
    availability_mode: rules
    time_zone: "Europe/Moscow"
    rules:
      - kind: available
        weekday: 1
        start_minute: 540
        end_minute: 1080
    blackouts:
      - start: 2030-03-04T12:00:00Z
        end: 2030-03-04T13:00:00Z
        reason: "inspection"
    policy:
      min_duration: 30m
      max_duration: 4h
      advance_days: 30
      buffer: 15m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "data/engine.db", cfg.Database.Path)
	assert.Equal(t, models.PolicyApprovedOnly, cfg.Engine.ConflictPolicy)
	assert.Equal(t, 45*time.Minute, cfg.Engine.WaitlistGrace)
	assert.Equal(t, models.DefaultSweepInterval, cfg.Engine.SweepInterval)
	assert.Equal(t, 2*time.Second, cfg.Notifications.DeliveryTimeout)
	assert.Equal(t, models.NotificationQueueSize, cfg.Notifications.QueueSize)

	require.Len(t, cfg.Principals, 2)
	assert.Equal(t, models.RoleRequester, cfg.Principals[1].Role)
	assert.Equal(t, int64(5551), cfg.Principals[0].TelegramID)

	require.Len(t, cfg.Resources, 1)
	res := cfg.Resources[0]
	assert.Equal(t, models.ResourcePublished, res.Status)
	assert.Equal(t, models.OwnerGroup, res.OwnerType)
	require.Len(t, res.Rules, 1)
	assert.Equal(t, time.Monday, res.Rules[0].Weekday)
	require.Len(t, res.Blackouts, 1)
	assert.Equal(t, time.Date(2030, 3, 4, 12, 0, 0, 0, time.UTC), res.Blackouts[0].Start.UTC())
	assert.Equal(t, 15*time.Minute, res.Policy.Buffer)
	assert.Equal(t, 30, res.Policy.AdvanceDays)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	base := func() Config {
		c := Config{Database: DatabaseConfig{Path: "path"}}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"missing database", func(c *Config) { c.Database.Path = "" }, true},
		{"bad policy", func(c *Config) { c.Engine.ConflictPolicy = "first_come" }, true},
		{"telegram without token", func(c *Config) { c.Notifications.Telegram.Enabled = true }, true},
		{"amqp without url", func(c *Config) { c.Notifications.AMQP.Enabled = true }, true},
		{"redis without address", func(c *Config) { c.Redis.Enabled = true }, true},
		{"duplicate principal", func(c *Config) {
			c.Principals = []models.Principal{{ID: 1, Role: models.RoleRequester}, {ID: 1, Role: models.RoleApprover}}
		}, true},
		{"unknown role", func(c *Config) {
			c.Principals = []models.Principal{{ID: 1, Role: "owner"}}
		}, true},
		{"duplicate resource", func(c *Config) {
			c.Resources = []models.Resource{
				{ID: 1, OwnerType: models.OwnerUser, Mode: models.ModeOpen},
				{ID: 1, OwnerType: models.OwnerUser, Mode: models.ModeOpen},
			}
		}, true},
		{"bad time zone", func(c *Config) {
			c.Resources = []models.Resource{{ID: 1, OwnerType: models.OwnerUser, Mode: models.ModeOpen, TimeZone: "Mars/Olympus"}}
		}, true},
		{"bad rule", func(c *Config) {
			c.Resources = []models.Resource{{ID: 1, OwnerType: models.OwnerUser, Mode: models.ModeRules,
				Rules: []models.WeeklyRule{{Kind: models.RuleAvailable, Weekday: time.Monday, StartMinute: 600, EndMinute: 540}}}}
		}, true},
		{"blackout beyond nanosecond range", func(c *Config) {
			far := time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC)
			c.Resources = []models.Resource{{ID: 1, OwnerType: models.OwnerUser, Mode: models.ModeOpen,
				Blackouts: []models.Blackout{{Start: far, End: far.Add(time.Hour)}}}}
		}, true},
		{"min over max", func(c *Config) {
			c.Resources = []models.Resource{{ID: 1, OwnerType: models.OwnerUser, Mode: models.ModeOpen,
				Policy: models.BookingPolicy{MinDuration: 2 * time.Hour, MaxDuration: time.Hour}}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
