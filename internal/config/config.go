package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Sweeper    SweeperConfig    `yaml:"sweeper"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Storage    StorageConfig    `yaml:"storage"`
	Onboarding OnboardingConfig `yaml:"onboarding"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr is host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds the Postgres connection. An empty URL runs every
// store in memory.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the Redis connection. An empty URL disables Redis.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SweeperConfig tunes the periodic planning sweep.
type SweeperConfig struct {
	IntervalSeconds     int `yaml:"interval_seconds"`
	Concurrency         int `yaml:"concurrency"`
	BatchSize           int `yaml:"batch_size"`
	LockTTLSeconds      int `yaml:"lock_ttl_seconds"`
	SweepTimeoutSeconds int `yaml:"sweep_timeout_seconds"`
}

func (c SweeperConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c SweeperConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c SweeperConfig) SweepTimeout() time.Duration {
	return time.Duration(c.SweepTimeoutSeconds) * time.Second
}

// TierConfig is one account tier's ceilings.
type TierConfig struct {
	DailyMax  int `yaml:"daily_max"`
	WeeklyMax int `yaml:"weekly_max"`
}

// RateLimitConfig selects the limiter backend and account tiers.
type RateLimitConfig struct {
	// Backend is redis, postgres or memory.
	Backend     string                `yaml:"backend"`
	Timezone    string                `yaml:"timezone"`
	DefaultTier string                `yaml:"default_tier"`
	Tiers       map[string]TierConfig `yaml:"tiers"`
	// Accounts maps an account id to its tier name.
	Accounts map[string]string `yaml:"accounts"`
}

// Location resolves Timezone, defaulting to UTC.
func (c RateLimitConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// TierLimits converts the configured tiers to domain limits.
func (c RateLimitConfig) TierLimits() map[string]domain.AccountLimits {
	out := make(map[string]domain.AccountLimits, len(c.Tiers))
	for name, t := range c.Tiers {
		out[name] = domain.AccountLimits{DailyMax: t.DailyMax, WeeklyMax: t.WeeklyMax}
	}
	return out
}

// DispatchConfig configures the work-item transport.
type DispatchConfig struct {
	// Transport is redis, http or memory.
	Transport       string `yaml:"transport"`
	QueueKey        string `yaml:"queue_key"`
	WebhookURL      string `yaml:"webhook_url"`
	WebhookToken    string `yaml:"webhook_token"`
	MaxRetries      int    `yaml:"max_retries"`
	StaleAfterMins  int    `yaml:"stale_after_minutes"`
	ReaperSchedule  string `yaml:"reaper_schedule"`
	ArchiveSchedule string `yaml:"archive_schedule"`
}

func (c DispatchConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMins) * time.Minute
}

// StorageConfig selects where campaign snapshots are kept.
type StorageConfig struct {
	Type          string `yaml:"type"`
	LocalPath     string `yaml:"local_path"`
	S3Bucket      string `yaml:"s3_bucket"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	// Static keys, normally only set from the environment.
	AWSAccessKeyID     string `yaml:"aws_access_key_id"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// OnboardingConfig bounds the conversational campaign setup.
type OnboardingConfig struct {
	SessionTTLMinutes int `yaml:"session_ttl_minutes"`
	MaxLeadsPerDay    int `yaml:"max_leads_per_day"`
	MaxCampaignDays   int `yaml:"max_campaign_days"`
}

func (c OnboardingConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact defaults to true.
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads a YAML config file and fills in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Sweeper.IntervalSeconds == 0 {
		cfg.Sweeper.IntervalSeconds = 60
	}
	if cfg.Sweeper.Concurrency == 0 {
		cfg.Sweeper.Concurrency = 4
	}
	if cfg.Sweeper.BatchSize == 0 {
		cfg.Sweeper.BatchSize = 500
	}
	if cfg.Sweeper.LockTTLSeconds == 0 {
		cfg.Sweeper.LockTTLSeconds = 300
	}
	if cfg.Sweeper.SweepTimeoutSeconds == 0 {
		cfg.Sweeper.SweepTimeoutSeconds = 240
	}
	if cfg.RateLimit.Backend == "" {
		cfg.RateLimit.Backend = "memory"
	}
	if cfg.Dispatch.Transport == "" {
		cfg.Dispatch.Transport = "memory"
	}
	if cfg.Dispatch.QueueKey == "" {
		cfg.Dispatch.QueueKey = "outreach:dispatch"
	}
	if cfg.Dispatch.MaxRetries == 0 {
		cfg.Dispatch.MaxRetries = 3
	}
	if cfg.Dispatch.StaleAfterMins == 0 {
		cfg.Dispatch.StaleAfterMins = 60
	}
	if cfg.Dispatch.ReaperSchedule == "" {
		cfg.Dispatch.ReaperSchedule = "*/5 * * * *"
	}
	if cfg.Dispatch.ArchiveSchedule == "" {
		cfg.Dispatch.ArchiveSchedule = "15 0 * * *"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./data"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-west-2"
	}
	if cfg.Onboarding.SessionTTLMinutes == 0 {
		cfg.Onboarding.SessionTTLMinutes = 24 * 60
	}
	if cfg.Onboarding.MaxLeadsPerDay == 0 {
		cfg.Onboarding.MaxLeadsPerDay = 500
	}
	if cfg.Onboarding.MaxCampaignDays == 0 {
		cfg.Onboarding.MaxCampaignDays = 365
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads .env (if present), then path, then applies environment
// overrides.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("RATE_LIMIT_BACKEND"); v != "" {
		cfg.RateLimit.Backend = v
	}
	if v := os.Getenv("DISPATCH_TRANSPORT"); v != "" {
		cfg.Dispatch.Transport = v
	}
	if v := os.Getenv("DISPATCH_WEBHOOK_TOKEN"); v != "" {
		cfg.Dispatch.WebhookToken = v
	}
	if v := os.Getenv("STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("SNAPSHOT_S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
	}
	if v := os.Getenv("SNAPSHOT_AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Storage.AWSAccessKeyID = v
	}
	if v := os.Getenv("SNAPSHOT_AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Storage.AWSSecretAccessKey = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}
