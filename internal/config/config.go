// Package config provides configuration management using viper.
// It supports loading from YAML files, a .env file and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Polymarket PolymarketConfig `mapstructure:"polymarket"`
	Stripe     StripeConfig     `mapstructure:"stripe"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Whale      WhaleConfig      `mapstructure:"whale"`
	Smart      SmartConfig      `mapstructure:"smart"`
	Briefing   BriefingConfig   `mapstructure:"briefing"`
	Drip       DripConfig       `mapstructure:"drip"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token       string        `mapstructure:"token"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	Username    string        `mapstructure:"username"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
// URL takes precedence over the individual fields when set.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds the dedup store connection. An empty Addr selects the
// in-memory store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PolymarketConfig holds the market data and trade feed endpoints.
type PolymarketConfig struct {
	GammaURL string        `mapstructure:"gamma_url"`
	DataURL  string        `mapstructure:"data_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	PageSize int           `mapstructure:"page_size"`
	MaxPages int           `mapstructure:"max_pages"`
	SiteURL  string        `mapstructure:"site_url"`
}

// StripeConfig holds billing credentials.
type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	PriceID       string `mapstructure:"price_id"`
	SuccessURL    string `mapstructure:"success_url"`
	CancelURL     string `mapstructure:"cancel_url"`
}

// ServerConfig holds the HTTP server used for webhooks and probes.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AlertsConfig holds price alert settings.
type AlertsConfig struct {
	FreeLimit    int           `mapstructure:"free_limit"`
	RequestDelay time.Duration `mapstructure:"request_delay"`
}

// WhaleConfig holds whale monitor settings.
type WhaleConfig struct {
	MinUSD    float64       `mapstructure:"min_usd"`
	FeedLimit int           `mapstructure:"feed_limit"`
	SeenTTL   time.Duration `mapstructure:"seen_ttl"`
	SeenCap   int           `mapstructure:"seen_cap"`
	DailyCap  int           `mapstructure:"daily_cap"`
	SendDelay time.Duration `mapstructure:"send_delay"`
}

// SmartConfig holds smart-alert monitor settings.
type SmartConfig struct {
	MarketLimit       int           `mapstructure:"market_limit"`
	SpikeMultiplier   float64       `mapstructure:"spike_multiplier"`
	NoiseFloorUSD     float64       `mapstructure:"noise_floor_usd"`
	MomentumDelta     float64       `mapstructure:"momentum_delta"`
	MomentumWindow    time.Duration `mapstructure:"momentum_window"`
	PerTickCap        int           `mapstructure:"per_tick_cap"`
	Cooldown          time.Duration `mapstructure:"cooldown"`
	SnapshotRetention time.Duration `mapstructure:"snapshot_retention"`
}

// BriefingConfig holds briefing settings.
type BriefingConfig struct {
	DefaultHour     int    `mapstructure:"default_hour"`
	DefaultTimezone string `mapstructure:"default_timezone"`
}

// DripConfig holds onboarding sequence settings.
type DripConfig struct {
	TrialDays int `mapstructure:"trial_days"`
}

// JobsConfig holds cron specs for the background jobs. Specs include a
// seconds field.
type JobsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	AlertEngine string `mapstructure:"alert_engine"`
	Whale       string `mapstructure:"whale"`
	Smart       string `mapstructure:"smart"`
	Briefing    string `mapstructure:"briefing"`
	Drip        string `mapstructure:"drip"`
	Prune       string `mapstructure:"prune"`
	Resolve     string `mapstructure:"resolve"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslMode,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. BOT_TOKEN, DATABASE_URL, STRIPE_WEBHOOK_SECRET
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindSecrets(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// bindSecrets binds keys that have no default so AutomaticEnv picks them up
// during Unmarshal.
func bindSecrets(v *viper.Viper) {
	for _, key := range []string{
		"bot.token",
		"bot.username",
		"database.url",
		"database.password",
		"redis.addr",
		"redis.password",
		"stripe.secret_key",
		"stripe.webhook_secret",
		"stripe.price_id",
	} {
		_ = v.BindEnv(key)
	}
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.poll_timeout", "10s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "polypulse")
	v.SetDefault("database.name", "polypulse")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("redis.db", 0)

	v.SetDefault("polymarket.gamma_url", "https://gamma-api.polymarket.com")
	v.SetDefault("polymarket.data_url", "https://data-api.polymarket.com")
	v.SetDefault("polymarket.timeout", "15s")
	v.SetDefault("polymarket.cache_ttl", "5m")
	v.SetDefault("polymarket.page_size", 100)
	v.SetDefault("polymarket.max_pages", 5)
	v.SetDefault("polymarket.site_url", "https://polymarket.com")

	v.SetDefault("stripe.success_url", "https://t.me")
	v.SetDefault("stripe.cancel_url", "https://t.me")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("alerts.free_limit", 3)
	v.SetDefault("alerts.request_delay", "100ms")

	v.SetDefault("whale.min_usd", 10000)
	v.SetDefault("whale.feed_limit", 100)
	v.SetDefault("whale.seen_ttl", "48h")
	v.SetDefault("whale.seen_cap", 10000)
	v.SetDefault("whale.daily_cap", 50)
	v.SetDefault("whale.send_delay", "50ms")

	v.SetDefault("smart.market_limit", 50)
	v.SetDefault("smart.spike_multiplier", 3.0)
	v.SetDefault("smart.noise_floor_usd", 500)
	v.SetDefault("smart.momentum_delta", 0.10)
	v.SetDefault("smart.momentum_window", "1h")
	v.SetDefault("smart.per_tick_cap", 5)
	v.SetDefault("smart.cooldown", "6h")
	v.SetDefault("smart.snapshot_retention", "168h")

	v.SetDefault("briefing.default_hour", 8)
	v.SetDefault("briefing.default_timezone", "UTC")

	v.SetDefault("drip.trial_days", 7)

	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.alert_engine", "0 * * * * *")
	v.SetDefault("jobs.whale", "30 */2 * * * *")
	v.SetDefault("jobs.smart", "0 */15 * * * *")
	v.SetDefault("jobs.briefing", "0 0 * * * *")
	v.SetDefault("jobs.drip", "0 30 * * * *")
	v.SetDefault("jobs.prune", "0 15 3 * * *")
	v.SetDefault("jobs.resolve", "0 5 * * * *")
}

// Validate checks that required values are present and thresholds are sane.
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return errors.New("bot token is required")
	}
	if c.Whale.MinUSD <= 0 {
		return errors.New("whale.min_usd must be positive")
	}
	if c.Smart.SpikeMultiplier <= 1 {
		return errors.New("smart.spike_multiplier must be greater than 1")
	}
	if c.Smart.MomentumDelta <= 0 || c.Smart.MomentumDelta >= 1 {
		return errors.New("smart.momentum_delta must be in (0, 1)")
	}
	if c.Polymarket.MaxPages < 1 {
		return errors.New("polymarket.max_pages must be at least 1")
	}
	if c.Briefing.DefaultHour < 0 || c.Briefing.DefaultHour > 23 {
		return errors.New("briefing.default_hour must be in [0, 23]")
	}
	return nil
}

// BillingEnabled reports whether Stripe is configured.
func (c *Config) BillingEnabled() bool {
	return c.Stripe.SecretKey != "" && c.Stripe.PriceID != ""
}
