// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// CRMConfig provides settings for the Remonline API client and order payloads.
type CRMConfig interface {
	GetCRMBaseURL() string
	GetCRMAPIKey() string
	GetCRMSeedToken() string
	GetCRMBranchID() int64
	GetCRMOrderTypeID() int64
	GetCRMInitialStatusID() int64
	GetCRMManagerID() int64
	GetCRMAdCampaignID() int64
	GetAutoRefreshToken() bool
}

// WebhookConfig provides settings for the inbound webhook endpoints.
type WebhookConfig interface {
	GetWebhookSecret() string
}

// SyncConfig provides settings for the outbound synchronization workflow.
type SyncConfig interface {
	IsIntegrationEnabled() bool
	GetSweepBatchSize() int
	GetSweepMinAge() time.Duration
	GetLockTTL() time.Duration
}

// SchedulerConfig provides settings for the asynq task runner.
type SchedulerConfig interface {
	GetRedisURL() string
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env              string
	LogLevel         string
	HTTPAddr         string
	DatabaseURL      string
	RedisURL         string
	CORSAllowAll     bool
	CORSOrigins      []string
	CRMBaseURL       string
	CRMAPIKey        string
	CRMSeedToken     string
	CRMBranchID      int64
	CRMOrderTypeID   int64
	CRMStatusID      int64
	CRMManagerID     int64
	CRMAdCampaignID  int64
	WebhookSecret    string
	Enabled          bool
	AutoRefreshToken bool
	SweepBatchSize   int
	SweepMinAge      time.Duration
	LockTTL          time.Duration
	AsynqQueueName   string
	AsynqConcurrency int
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// CRMConfig implementation
func (c *Config) GetCRMBaseURL() string        { return c.CRMBaseURL }
func (c *Config) GetCRMAPIKey() string         { return c.CRMAPIKey }
func (c *Config) GetCRMSeedToken() string      { return c.CRMSeedToken }
func (c *Config) GetCRMBranchID() int64        { return c.CRMBranchID }
func (c *Config) GetCRMOrderTypeID() int64     { return c.CRMOrderTypeID }
func (c *Config) GetCRMInitialStatusID() int64 { return c.CRMStatusID }
func (c *Config) GetCRMManagerID() int64       { return c.CRMManagerID }
func (c *Config) GetCRMAdCampaignID() int64    { return c.CRMAdCampaignID }
func (c *Config) GetAutoRefreshToken() bool    { return c.AutoRefreshToken }

// WebhookConfig implementation
func (c *Config) GetWebhookSecret() string { return c.WebhookSecret }

// SyncConfig implementation
func (c *Config) IsIntegrationEnabled() bool     { return c.Enabled }
func (c *Config) GetSweepBatchSize() int         { return c.SweepBatchSize }
func (c *Config) GetSweepMinAge() time.Duration  { return c.SweepMinAge }
func (c *Config) GetLockTTL() time.Duration      { return c.LockTTL }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:              getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		CORSAllowAll:     strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true"),
		CORSOrigins:      splitCSV(getEnv("CORS_ORIGINS", "")),
		CRMBaseURL:       getEnv("REMONLINE_BASE_URL", "https://api.remonline.app"),
		CRMAPIKey:        getEnv("REMONLINE_API_KEY", ""),
		CRMSeedToken:     getEnv("REMONLINE_API_TOKEN", ""),
		CRMBranchID:      mustInt64(getEnv("REMONLINE_BRANCH_ID", "134397")),
		CRMOrderTypeID:   mustInt64(getEnv("REMONLINE_ORDER_TYPE", "240552")),
		CRMStatusID:      mustInt64(getEnv("REMONLINE_STATUS_ID", "1642511")),
		CRMManagerID:     mustInt64(getEnv("REMONLINE_MANAGER_ID", "268918")),
		CRMAdCampaignID:  mustInt64(getEnv("REMONLINE_AD_CAMPAIGN_ID", "301120")),
		WebhookSecret:    getEnv("REMONLINE_WEBHOOK_SECRET", ""),
		Enabled:          strings.EqualFold(getEnv("REMONLINE_ENABLE_INTEGRATION", "true"), "true"),
		AutoRefreshToken: strings.EqualFold(getEnv("REMONLINE_AUTO_REFRESH_TOKEN", "true"), "true"),
		SweepBatchSize:   mustInt(getEnv("SYNC_SWEEP_BATCH_SIZE", "10")),
		SweepMinAge:      mustDuration(getEnv("SYNC_SWEEP_MIN_AGE", "1m")),
		LockTTL:          mustDuration(getEnv("SYNC_LOCK_TTL", "5m")),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "sync"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SweepBatchSize < 1 {
		cfg.SweepBatchSize = 10
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
