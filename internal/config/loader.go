package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POOLHOUSE_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POOLHOUSE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// Postgres
	setStr(&cfg.Postgres.DSN, "POOLHOUSE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POOLHOUSE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POOLHOUSE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POOLHOUSE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POOLHOUSE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POOLHOUSE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POOLHOUSE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POOLHOUSE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POOLHOUSE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POOLHOUSE_POSTGRES_RUN_MIGRATIONS")

	// Redis
	setStr(&cfg.Redis.Addr, "POOLHOUSE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POOLHOUSE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POOLHOUSE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POOLHOUSE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POOLHOUSE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POOLHOUSE_REDIS_TLS_ENABLED")

	// S3
	setStr(&cfg.S3.Endpoint, "POOLHOUSE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POOLHOUSE_S3_REGION")
	setStr(&cfg.S3.Bucket, "POOLHOUSE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POOLHOUSE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POOLHOUSE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POOLHOUSE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POOLHOUSE_S3_FORCE_PATH_STYLE")

	// Balance service
	setStr(&cfg.Balance.BaseURL, "POOLHOUSE_BALANCE_BASE_URL")
	setStr(&cfg.Balance.APIKey, "POOLHOUSE_BALANCE_API_KEY")
	setDuration(&cfg.Balance.Timeout, "POOLHOUSE_BALANCE_TIMEOUT")

	// Engine
	setFloat64(&cfg.Engine.CostTolerance, "POOLHOUSE_ENGINE_COST_TOLERANCE")
	setInt(&cfg.Engine.MaxAttempts, "POOLHOUSE_ENGINE_MAX_ATTEMPTS")
	setBool(&cfg.Engine.SettleFromOpen, "POOLHOUSE_ENGINE_SETTLE_FROM_OPEN")
	setDuration(&cfg.Engine.SettleLockTTL, "POOLHOUSE_ENGINE_SETTLE_LOCK_TTL")

	// Server
	setInt(&cfg.Server.Port, "POOLHOUSE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POOLHOUSE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POOLHOUSE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "POOLHOUSE_SERVER_RATE_LIMIT")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "POOLHOUSE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POOLHOUSE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POOLHOUSE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POOLHOUSE_NOTIFY_EVENTS")

	// Top-level
	setStr(&cfg.Mode, "POOLHOUSE_MODE")
	setStr(&cfg.LogLevel, "POOLHOUSE_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
