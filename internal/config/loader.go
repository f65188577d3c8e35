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
// built-in defaults, applies PARITYBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known PARITYBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// Feed
	setStr(&cfg.Feed.WsURL, "PARITYBOT_FEED_WS_URL")
	setDuration(&cfg.Feed.StaleAfter, "PARITYBOT_FEED_STALE_AFTER")
	setInt(&cfg.Feed.QueueSize, "PARITYBOT_FEED_QUEUE_SIZE")
	setDuration(&cfg.Feed.ReconnectBase, "PARITYBOT_FEED_RECONNECT_BASE")
	setDuration(&cfg.Feed.ReconnectMax, "PARITYBOT_FEED_RECONNECT_MAX")
	setFloat64(&cfg.Feed.ReconnectJitter, "PARITYBOT_FEED_RECONNECT_JITTER")

	// Arbitrage
	setFloat64(&cfg.Arbitrage.Threshold, "PARITYBOT_ARBITRAGE_THRESHOLD")
	setFloat64(&cfg.Arbitrage.DebounceEpsilon, "PARITYBOT_ARBITRAGE_DEBOUNCE_EPSILON")

	// Rebalance
	setBool(&cfg.Rebalance.Enabled, "PARITYBOT_REBALANCE_ENABLED")
	setFloat64(&cfg.Rebalance.MinRatio, "PARITYBOT_REBALANCE_MIN_RATIO")
	setFloat64(&cfg.Rebalance.TargetRatio, "PARITYBOT_REBALANCE_TARGET_RATIO")
	setFloat64(&cfg.Rebalance.MaxRatio, "PARITYBOT_REBALANCE_MAX_RATIO")
	setFloat64(&cfg.Rebalance.ImbalanceThreshold, "PARITYBOT_REBALANCE_IMBALANCE_THRESHOLD")
	setFloat64(&cfg.Rebalance.MinTradeSize, "PARITYBOT_REBALANCE_MIN_TRADE_SIZE")
	setDuration(&cfg.Rebalance.Interval, "PARITYBOT_REBALANCE_INTERVAL")
	setDuration(&cfg.Rebalance.Cooldown, "PARITYBOT_REBALANCE_COOLDOWN")
	setStr(&cfg.Rebalance.MarketID, "PARITYBOT_REBALANCE_MARKET_ID")

	// Account
	setStr(&cfg.Account.URL, "PARITYBOT_ACCOUNT_URL")
	setDuration(&cfg.Account.Timeout, "PARITYBOT_ACCOUNT_TIMEOUT")

	// Postgres
	setBool(&cfg.Postgres.Enabled, "PARITYBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "PARITYBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PARITYBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PARITYBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PARITYBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PARITYBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PARITYBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PARITYBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PARITYBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PARITYBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PARITYBOT_POSTGRES_RUN_MIGRATIONS")

	// Redis
	setBool(&cfg.Redis.Enabled, "PARITYBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PARITYBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PARITYBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PARITYBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PARITYBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PARITYBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PARITYBOT_REDIS_TLS_ENABLED")

	// S3
	setBool(&cfg.S3.Enabled, "PARITYBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PARITYBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PARITYBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "PARITYBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PARITYBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PARITYBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PARITYBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PARITYBOT_S3_FORCE_PATH_STYLE")

	// Archive
	setBool(&cfg.Archive.Enabled, "PARITYBOT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "PARITYBOT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "PARITYBOT_ARCHIVE_INTERVAL")

	// Server
	setBool(&cfg.Server.Enabled, "PARITYBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PARITYBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PARITYBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PARITYBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PARITYBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "PARITYBOT_SERVER_RATE_LIMIT_WINDOW")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "PARITYBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PARITYBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PARITYBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PARITYBOT_NOTIFY_EVENTS")

	// Top-level
	setStr(&cfg.Mode, "PARITYBOT_MODE")
	setStr(&cfg.LogLevel, "PARITYBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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
