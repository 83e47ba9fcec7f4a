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
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 0.01, cfg.Engine.CostTolerance)
	assert.Equal(t, 3, cfg.Engine.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Engine.SettleLockTTL.Duration)
	assert.Empty(t, cfg.S3.Bucket, "archival is off by default")
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "demo"
log_level = "debug"

[engine]
cost_tolerance = 0.05
settle_lock_ttl = "45s"

[server]
port = 9100
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.05, cfg.Engine.CostTolerance)
	assert.Equal(t, 45*time.Second, cfg.Engine.SettleLockTTL.Duration)
	assert.Equal(t, 9100, cfg.Server.Port)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Engine.MaxAttempts)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `mode = "server"`)

	t.Setenv("POOLHOUSE_POSTGRES_DSN", "postgres://env:secret@db:5432/poolhouse")
	t.Setenv("POOLHOUSE_REDIS_ADDR", "redis-env:6379")
	t.Setenv("POOLHOUSE_SERVER_PORT", "9200")
	t.Setenv("POOLHOUSE_ENGINE_MAX_ATTEMPTS", "5")
	t.Setenv("POOLHOUSE_ENGINE_SETTLE_LOCK_TTL", "1m")
	t.Setenv("POOLHOUSE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("POOLHOUSE_POSTGRES_RUN_MIGRATIONS", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env:secret@db:5432/poolhouse", cfg.Postgres.DSN)
	assert.Equal(t, "redis-env:6379", cfg.Redis.Addr)
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Engine.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Engine.SettleLockTTL.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.False(t, cfg.Postgres.RunMigrations)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Mode = "batch" }, "unknown mode"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "unknown log_level"},
		{"no redis addr", func(c *Config) { c.Redis.Addr = "" }, "redis: addr"},
		{"no balance url", func(c *Config) { c.Balance.BaseURL = "" }, "balance: base_url"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server: port"},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }, "rate_limit"},
		{"zero cost tolerance", func(c *Config) { c.Engine.CostTolerance = 0 }, "cost_tolerance"},
		{"pool misordered", func(c *Config) { c.Postgres.PoolMinConns = 99 }, "pool_min_conns"},
		{"s3 bucket without region", func(c *Config) { c.S3.Bucket = "archives"; c.S3.Region = "" }, "s3: region"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDemoModeSkipsExternalServices(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "demo"
	cfg.Postgres = PostgresConfig{}
	cfg.Redis = RedisConfig{}
	cfg.Balance = BalanceConfig{}
	require.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pg-secret"
	cfg.Postgres.DSN = "postgres://user:pg-secret@db/poolhouse"
	cfg.Redis.Password = "redis-secret"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Balance.APIKey = "balance-secret"
	cfg.Server.APIKey = "server-secret"
	cfg.Notify.TelegramToken = "tg-secret"

	red := RedactedConfig(&cfg)
	out := []string{
		red.Postgres.Password, red.Postgres.DSN, red.Redis.Password,
		red.S3.SecretKey, red.Balance.APIKey, red.Server.APIKey,
		red.Notify.TelegramToken,
	}
	for _, v := range out {
		assert.NotContains(t, v, "secret")
	}

	// Redaction must not mutate the original.
	assert.Equal(t, "pg-secret", cfg.Postgres.Password)
}
