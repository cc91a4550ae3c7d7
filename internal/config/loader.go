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
// built-in defaults, applies ECONOMY_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known ECONOMY_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ECONOMY_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ECONOMY_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ECONOMY_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ECONOMY_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ECONOMY_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ECONOMY_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ECONOMY_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.RunMigrations, "ECONOMY_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ECONOMY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ECONOMY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ECONOMY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ECONOMY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ECONOMY_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ECONOMY_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ECONOMY_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ECONOMY_S3_REGION")
	setStr(&cfg.S3.Bucket, "ECONOMY_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ECONOMY_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ECONOMY_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ECONOMY_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ECONOMY_S3_FORCE_PATH_STYLE")

	// ── Auction ──
	setInt(&cfg.Auction.BidRateLimit, "ECONOMY_AUCTION_BID_RATE_LIMIT")
	setDuration(&cfg.Auction.BidRateWindow, "ECONOMY_AUCTION_BID_RATE_WINDOW")

	// ── Settlement ──
	setDuration(&cfg.Settlement.Interval, "ECONOMY_SETTLEMENT_INTERVAL")
	setInt(&cfg.Settlement.BatchSize, "ECONOMY_SETTLEMENT_BATCH_SIZE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ECONOMY_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "ECONOMY_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "ECONOMY_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setInt(&cfg.Server.Port, "ECONOMY_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ECONOMY_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ECONOMY_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ECONOMY_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "ECONOMY_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ECONOMY_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ECONOMY_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ECONOMY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ECONOMY_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ECONOMY_MODE")
	setStr(&cfg.LogLevel, "ECONOMY_LOG_LEVEL")
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
