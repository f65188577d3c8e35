// Package config defines the top-level configuration for the parity bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PARITYBOT_* environment variables.
type Config struct {
	Feed      FeedConfig      `toml:"feed"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	Rebalance RebalanceConfig `toml:"rebalance"`
	Account   AccountConfig   `toml:"account"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// MarketConfig names one binary market and its YES/NO token IDs.
type MarketConfig struct {
	ID         string `toml:"id"`
	YesTokenID string `toml:"yes_token_id"`
	NoTokenID  string `toml:"no_token_id"`
}

// FeedConfig holds the real-time data feed parameters.
type FeedConfig struct {
	WsURL string `toml:"ws_url"`

	// StaleAfter is how long a quote stays usable without a refresh.
	StaleAfter duration `toml:"stale_after"`

	// QueueSize bounds the detection dispatch queue.
	QueueSize int `toml:"queue_size"`

	ReconnectBase   duration `toml:"reconnect_base"`
	ReconnectMax    duration `toml:"reconnect_max"`
	ReconnectJitter float64  `toml:"reconnect_jitter"`

	Markets []MarketConfig `toml:"markets"`
}

// ArbitrageConfig holds the detector's tunables.
type ArbitrageConfig struct {
	// Threshold is the minimum deviation from $1 parity before an
	// opportunity fires.
	Threshold float64 `toml:"threshold"`

	// DebounceEpsilon suppresses re-emission while profit moves less than
	// this; 0 disables debouncing.
	DebounceEpsilon float64 `toml:"debounce_epsilon"`
}

// RebalanceConfig holds the inventory rebalancer's tunables.
type RebalanceConfig struct {
	Enabled bool `toml:"enabled"`

	MinRatio    float64 `toml:"min_ratio"`
	TargetRatio float64 `toml:"target_ratio"`
	MaxRatio    float64 `toml:"max_ratio"`

	// ImbalanceThreshold is the YES/NO token divergence (in tokens) that
	// triggers the imbalance pre-check; 0 disables it.
	ImbalanceThreshold float64 `toml:"imbalance_threshold"`

	MinTradeSize float64  `toml:"min_trade_size"`
	Interval     duration `toml:"interval"`
	Cooldown     duration `toml:"cooldown"`

	// MarketID selects the book pair used to value inventory.
	MarketID string `toml:"market_id"`
}

// AccountConfig selects the account-state source. When URL is empty the bot
// runs against a paper account seeded with the balances below.
type AccountConfig struct {
	URL       string   `toml:"url"`
	Timeout   duration `toml:"timeout"`
	PaperUSDC float64  `toml:"paper_usdc"`
	PaperYes  float64  `toml:"paper_yes"`
	PaperNo   float64  `toml:"paper_no"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds the opportunity archival job parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// ServerConfig holds the status API parameters. When Enabled, detect and full
// modes serve read-only HTTP endpoints plus a WebSocket event stream.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`

	// APIKey guards the API when set; empty disables authentication.
	APIKey string `toml:"api_key"`

	// RateLimit caps requests per client IP per RateLimitWindow. Zero
	// disables limiting; it also requires Redis to be enabled.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding, e.g. stale_after = "5s".
type duration struct {
	time.Duration
}

// UnmarshalText lets the TOML decoder parse duration strings like "5m".
func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText renders the duration back to its string form.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			WsURL:           "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			StaleAfter:      duration{30 * time.Second},
			QueueSize:       1024,
			ReconnectBase:   duration{2 * time.Second},
			ReconnectMax:    duration{60 * time.Second},
			ReconnectJitter: 0.2,
		},
		Arbitrage: ArbitrageConfig{
			Threshold:       0.003,
			DebounceEpsilon: 0.0005,
		},
		Rebalance: RebalanceConfig{
			Enabled:            false,
			MinRatio:           0.3,
			TargetRatio:        0.5,
			MaxRatio:           0.7,
			ImbalanceThreshold: 0,
			MinTradeSize:       1.0,
			Interval:           duration{time.Minute},
			Cooldown:           duration{5 * time.Minute},
		},
		Account: AccountConfig{
			Timeout:   duration{10 * time.Second},
			PaperUSDC: 100,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "paritybot",
			User:          "paritybot",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "paritybot-data",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:         false,
			Port:            8080,
			RateLimit:       100,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"arb_detected", "rebalance_action", "error"},
		},
		Mode:     "detect",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"detect":    true,
	"rebalance": true,
	"archive":   true,
	"full":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: detect, rebalance, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed
	needsFeed := c.Mode == "detect" || c.Mode == "full"
	if needsFeed {
		if c.Feed.WsURL == "" {
			errs = append(errs, "feed: ws_url must not be empty")
		}
		if len(c.Feed.Markets) == 0 {
			errs = append(errs, "feed: at least one market must be configured for mode "+c.Mode)
		}
	}
	for i, m := range c.Feed.Markets {
		if m.ID == "" || m.YesTokenID == "" || m.NoTokenID == "" {
			errs = append(errs, fmt.Sprintf("feed: markets[%d] needs id, yes_token_id and no_token_id", i))
		}
	}
	if c.Feed.StaleAfter.Duration <= 0 {
		errs = append(errs, "feed: stale_after must be positive")
	}
	if c.Feed.QueueSize < 1 {
		errs = append(errs, "feed: queue_size must be >= 1")
	}
	if c.Feed.ReconnectBase.Duration <= 0 || c.Feed.ReconnectMax.Duration < c.Feed.ReconnectBase.Duration {
		errs = append(errs, "feed: reconnect_base must be positive and <= reconnect_max")
	}
	if c.Feed.ReconnectJitter < 0 || c.Feed.ReconnectJitter > 1 {
		errs = append(errs, "feed: reconnect_jitter must be in [0, 1]")
	}

	// Arbitrage
	if c.Arbitrage.Threshold <= 0 || c.Arbitrage.Threshold >= 1 {
		errs = append(errs, fmt.Sprintf("arbitrage: threshold must be in (0, 1), got %v", c.Arbitrage.Threshold))
	}
	if c.Arbitrage.DebounceEpsilon < 0 {
		errs = append(errs, "arbitrage: debounce_epsilon must be >= 0")
	}

	// Rebalance
	needsRebalance := c.Mode == "rebalance" || (c.Mode == "full" && c.Rebalance.Enabled)
	if needsRebalance {
		b := c.Rebalance
		if !(0 <= b.MinRatio && b.MinRatio <= b.TargetRatio && b.TargetRatio <= b.MaxRatio && b.MaxRatio <= 1) {
			errs = append(errs, fmt.Sprintf("rebalance: need 0 <= min <= target <= max <= 1, got min=%v target=%v max=%v",
				b.MinRatio, b.TargetRatio, b.MaxRatio))
		}
		if b.MinTradeSize < 0 {
			errs = append(errs, "rebalance: min_trade_size must be >= 0")
		}
		if b.Interval.Duration <= 0 {
			errs = append(errs, "rebalance: interval must be positive")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be in [0, pool_max_conns]")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 / archive
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}
	if c.Archive.Enabled || c.Mode == "archive" {
		if !c.S3.Enabled {
			errs = append(errs, "archive: s3 must be enabled for archival")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "archive: postgres must be enabled for archival")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, fmt.Sprintf("server: rate_limit must be >= 0, got %d", c.Server.RateLimit))
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be positive when rate_limit is set")
		}
	}

	// Notify channels need complete credentials.
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
