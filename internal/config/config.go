package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"reservation-engine/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Backup        BackupConfig        `yaml:"backup"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Logging       LoggingConfig       `yaml:"logging"`
	Engine        EngineConfig        `yaml:"engine"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Exports       ExportConfig        `yaml:"exports"`
	Resources     []models.Resource   `yaml:"resources"`
	Principals    []models.Principal  `yaml:"principals"`
	Groups        []GroupConfig       `yaml:"groups"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type EngineConfig struct {
	ConflictPolicy    models.ConflictPolicy `yaml:"conflict_policy"`
	SweepInterval     time.Duration         `yaml:"sweep_interval"`
	SweepBatch        int                   `yaml:"sweep_batch"`
	WaitlistGrace     time.Duration         `yaml:"waitlist_grace"`
	ContentionRetries int                   `yaml:"contention_retries"`
	LockTimeout       time.Duration         `yaml:"lock_timeout"`
	LockTTL           time.Duration         `yaml:"lock_ttl"`
	RequestsPerMinute int                   `yaml:"requests_per_minute"`
	RequestBurst      int                   `yaml:"request_burst"`
}

type NotificationsConfig struct {
	QueueSize       int            `yaml:"queue_size"`
	Workers         int            `yaml:"workers"`
	DeliveryTimeout time.Duration  `yaml:"delivery_timeout"`
	AMQP            AMQPConfig     `yaml:"amqp"`
	Telegram        TelegramConfig `yaml:"telegram"`
}

type AMQPConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	MaxRetries int    `yaml:"max_retries"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
	Days int    `yaml:"days"`
}

// GroupConfig seeds the owner groups used for group-owned resources.
type GroupConfig struct {
	ID      int64   `yaml:"id"`
	Name    string  `yaml:"name"`
	Members []int64 `yaml:"members"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if !c.Engine.ConflictPolicy.Valid() {
		return fmt.Errorf("unknown conflict policy %q", c.Engine.ConflictPolicy)
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("redis address is required when redis is enabled")
	}
	if c.Notifications.AMQP.Enabled && c.Notifications.AMQP.URL == "" {
		return errors.New("amqp url is required when amqp notifications are enabled")
	}
	if c.Notifications.Telegram.Enabled &&
		(c.Notifications.Telegram.BotToken == "" || c.Notifications.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE") {
		return errors.New("telegram bot token is required when telegram notifications are enabled")
	}

	if err := ValidatePrincipals(c.Principals); err != nil {
		return err
	}
	return ValidateResources(c.Resources)
}

func ValidatePrincipals(principals []models.Principal) error {
	ids := make(map[int64]bool)
	for _, p := range principals {
		if p.ID == 0 {
			return fmt.Errorf("principal '%s' has invalid ID 0", p.DisplayName)
		}
		if ids[p.ID] {
			return fmt.Errorf("duplicate principal ID found: %d", p.ID)
		}
		ids[p.ID] = true

		switch p.Role {
		case models.RoleRequester, models.RoleApprover, models.RoleAdministrator:
		default:
			return fmt.Errorf("principal %d has unknown role %q", p.ID, p.Role)
		}
	}
	return nil
}

func ValidateResources(resources []models.Resource) error {
	ids := make(map[int64]bool)
	for _, r := range resources {
		if r.ID == 0 {
			return fmt.Errorf("resource '%s' has invalid ID 0", r.Name)
		}
		if ids[r.ID] {
			return fmt.Errorf("duplicate resource ID found: %d", r.ID)
		}
		ids[r.ID] = true

		switch r.OwnerType {
		case models.OwnerUser, models.OwnerGroup:
		default:
			return fmt.Errorf("resource %d has unknown owner type %q", r.ID, r.OwnerType)
		}
		switch r.Mode {
		case models.ModeOpen, models.ModeRules, models.ModeByRequest:
		default:
			return fmt.Errorf("resource %d has unknown availability mode %q", r.ID, r.Mode)
		}
		if r.TimeZone != "" {
			if _, err := time.LoadLocation(r.TimeZone); err != nil {
				return fmt.Errorf("resource %d has invalid time zone: %w", r.ID, err)
			}
		}
		for i, rule := range r.Rules {
			if err := rule.Validate(); err != nil {
				return fmt.Errorf("resource %d rule %d: %w", r.ID, i, err)
			}
		}
		for i, b := range r.Blackouts {
			if !b.End.After(b.Start) {
				return fmt.Errorf("resource %d blackout %d: end must be after start", r.ID, i)
			}
			if !b.Interval().Representable() {
				return fmt.Errorf("resource %d blackout %d: outside the supported date range", r.ID, i)
			}
		}
		p := r.Policy
		if p.MinDuration < 0 || p.MaxDuration < 0 || p.AdvanceDays < 0 || p.Buffer < 0 {
			return fmt.Errorf("resource %d has negative booking policy values", r.ID)
		}
		if p.MaxDuration > 0 && p.MinDuration > p.MaxDuration {
			return fmt.Errorf("resource %d: min_duration exceeds max_duration", r.ID)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "reservation-engine"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}

	// Engine defaults
	if c.Engine.ConflictPolicy == "" {
		c.Engine.ConflictPolicy = models.PolicyPendingAndApproved
	}
	if c.Engine.SweepInterval == 0 {
		c.Engine.SweepInterval = models.DefaultSweepInterval
	}
	if c.Engine.SweepBatch == 0 {
		c.Engine.SweepBatch = models.DefaultSweepBatch
	}
	if c.Engine.WaitlistGrace == 0 {
		c.Engine.WaitlistGrace = models.DefaultWaitlistGrace
	}
	if c.Engine.ContentionRetries == 0 {
		c.Engine.ContentionRetries = models.DefaultContentionRetries
	}
	if c.Engine.LockTimeout == 0 {
		c.Engine.LockTimeout = models.DefaultLockTimeout
	}
	if c.Engine.LockTTL == 0 {
		c.Engine.LockTTL = models.DefaultLockTTL
	}
	if c.Engine.RequestsPerMinute == 0 {
		c.Engine.RequestsPerMinute = models.DefaultRequestsPerMinute
	}
	if c.Engine.RequestBurst == 0 {
		c.Engine.RequestBurst = models.DefaultRequestBurst
	}

	// Notification defaults
	if c.Notifications.QueueSize == 0 {
		c.Notifications.QueueSize = models.NotificationQueueSize
	}
	if c.Notifications.Workers == 0 {
		c.Notifications.Workers = models.DefaultNotificationWorkers
	}
	if c.Notifications.DeliveryTimeout == 0 {
		c.Notifications.DeliveryTimeout = models.DefaultDeliveryTimeout
	}
	if c.Notifications.AMQP.Exchange == "" {
		c.Notifications.AMQP.Exchange = "reservations"
	}
	if c.Notifications.AMQP.MaxRetries == 0 {
		c.Notifications.AMQP.MaxRetries = 3
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.Exports.Days == 0 {
		c.Exports.Days = models.DefaultExportDays
	}

	for i := range c.Resources {
		r := &c.Resources[i]
		if r.Mode == "" {
			r.Mode = models.ModeOpen
		}
		if r.Status == "" {
			r.Status = models.ResourcePublished
		}
		if r.OwnerType == "" {
			r.OwnerType = models.OwnerUser
		}
	}
	for i := range c.Principals {
		if c.Principals[i].Role == "" {
			c.Principals[i].Role = models.RoleRequester
		}
	}
}
