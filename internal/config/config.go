// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type WebConfig struct {
	Port           int    `yaml:"port"`
	CronSecret     string `yaml:"cron_secret"`      // shared secret for the renewal trigger endpoint
	AdminJWTSecret string `yaml:"admin_jwt_secret"` // HMAC secret for admin session tokens
	AdminAPIKey    string `yaml:"admin_api_key"`    // exchanged for a session token at login
}

type PaymentConfig struct {
	TapPay struct {
		MerchantID string        `yaml:"merchant_id"`
		PartnerKey string        `yaml:"partner_key"`
		BaseURL    string        `yaml:"base_url"`
		Timeout    time.Duration `yaml:"timeout"` // per-charge deadline
	} `yaml:"tappay"`
}

type SchedulerConfig struct {
	RenewalHour   int           `yaml:"renewal_hour"` // local hour of day for the renewal pass
	GraceDays     int           `yaml:"grace_days"`   // lookback for missed renewals
	Timezone      string        `yaml:"timezone"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type TrialConfig struct {
	QuotaSeconds int64 `yaml:"quota_seconds"`
}

type QuotaConfig struct {
	DefaultMonthlySeconds int64 `yaml:"default_monthly_seconds"` // fallback when a plan is unknown
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Web       WebConfig       `yaml:"web"`
	Payment   PaymentConfig   `yaml:"payment"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Trial     TrialConfig     `yaml:"trial"`
	Quota     QuotaConfig     `yaml:"quota"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Payment.TapPay.BaseURL == "" {
		cfg.Payment.TapPay.BaseURL = "https://sandbox.tappaysdk.com"
	}
	if cfg.Payment.TapPay.Timeout <= 0 {
		cfg.Payment.TapPay.Timeout = 15 * time.Second
	}
	if cfg.Scheduler.RenewalHour <= 0 {
		cfg.Scheduler.RenewalHour = 2
	}
	if cfg.Scheduler.GraceDays <= 0 {
		cfg.Scheduler.GraceDays = 3
	}
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "Asia/Taipei"
	}
	if cfg.Scheduler.SweepInterval <= 0 {
		cfg.Scheduler.SweepInterval = time.Hour
	}
	if cfg.Trial.QuotaSeconds <= 0 {
		cfg.Trial.QuotaSeconds = 1800
	}
	if cfg.Quota.DefaultMonthlySeconds <= 0 {
		cfg.Quota.DefaultMonthlySeconds = 18000
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if !dev && cfg.Web.CronSecret == "" {
		return nil, errors.New("web.cron_secret is required outside dev mode")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}
