package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata" // shop timezone must resolve on minimal images

	"github.com/spf13/viper"
)

// Closure report policies.
const (
	ClosurePolicySingleRow = "single_row"
	ClosurePolicyLiveRows  = "live_rows"
)

// Config global configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Business BusinessConfig `mapstructure:"business"`
}

type AppConfig struct {
	Env        string `mapstructure:"env"`
	Port       int    `mapstructure:"port"`
	Timezone   string `mapstructure:"timezone"`
	PublicURL  string `mapstructure:"public_url"`
	AdminToken string `mapstructure:"admin_token"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	LedgerEvents string `mapstructure:"ledger_events"`
}

type TelegramConfig struct {
	Token             string  `mapstructure:"token"`
	WebhookPath       string  `mapstructure:"webhook_path"`
	OwnerID           int64   `mapstructure:"owner_id"`
	DeveloperID       int64   `mapstructure:"developer_id"`
	AllowedUsers      []int64 `mapstructure:"allowed_users"`
	LiveNotifications bool    `mapstructure:"live_notifications"`
}

type OpenAIConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	Temperature    float32 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

type BusinessConfig struct {
	ClosurePolicy          string `mapstructure:"closure_policy"`
	ClosureReportHour      int    `mapstructure:"closure_report_hour"`
	UpdateDedupeTTLMinutes int    `mapstructure:"update_dedupe_ttl_minutes"`
	LockTTLSeconds         int    `mapstructure:"lock_ttl_seconds"`
	OutboxMaxRetry         int    `mapstructure:"outbox_max_retry"`
	InventoryKeyPrefix     string `mapstructure:"inventory_key_prefix"`
}

// LoadConfig reads the YAML file at configPath and applies environment overrides.
// A missing file is tolerated so the service can run from environment alone.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// secrets usually come from the environment under their conventional names
	_ = v.BindEnv("telegram.token", "TELEGRAM_TOKEN")
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("mysql.password", "MYSQL_PASSWORD")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("app.admin_token", "ADMIN_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.timezone", "America/El_Salvador")

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.database", "floraledger")
	v.SetDefault("mysql.max_open_conns", 20)
	v.SetDefault("mysql.max_idle_conns", 5)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.ledger_events", "ledger_events")

	v.SetDefault("telegram.webhook_path", "/telegram_bot")

	v.SetDefault("openai.model", "gpt-3.5-turbo")
	v.SetDefault("openai.temperature", 0.2)
	v.SetDefault("openai.timeout_seconds", 30)

	v.SetDefault("business.closure_policy", ClosurePolicySingleRow)
	v.SetDefault("business.closure_report_hour", -1)
	v.SetDefault("business.update_dedupe_ttl_minutes", 24*60)
	v.SetDefault("business.lock_ttl_seconds", 30)
	v.SetDefault("business.outbox_max_retry", 5)
	v.SetDefault("business.inventory_key_prefix", "flora")
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.App.Port <= 0 {
		return fmt.Errorf("app.port must be positive, got %d", c.App.Port)
	}
	switch c.Business.ClosurePolicy {
	case ClosurePolicySingleRow, ClosurePolicyLiveRows:
	default:
		return fmt.Errorf("unknown business.closure_policy %q", c.Business.ClosurePolicy)
	}
	if c.Business.ClosureReportHour < -1 || c.Business.ClosureReportHour > 23 {
		return fmt.Errorf("business.closure_report_hour must be -1..23, got %d", c.Business.ClosureReportHour)
	}
	// a zero TTL would leave a lock without expiry after a crash
	if c.Business.LockTTLSeconds <= 0 {
		return fmt.Errorf("business.lock_ttl_seconds must be positive, got %d", c.Business.LockTTLSeconds)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid app.timezone %q: %w", c.App.Timezone, err)
	}
	return nil
}

// Location returns the shop-local time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.App.Timezone)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Business.LockTTLSeconds) * time.Second
}

func (c *Config) UpdateDedupeTTL() time.Duration {
	return time.Duration(c.Business.UpdateDedupeTTLMinutes) * time.Minute
}
