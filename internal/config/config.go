// Package config carries every tunable of the options bot: defaults, TOML
// loading, environment overrides, and validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root of the TOML file. Values land here in three layers:
// Defaults, the file itself, then OPTBOT_* environment overrides.
type Config struct {
	Broker   BrokerConfig   `toml:"broker"`
	Risk     RiskConfig     `toml:"risk"`
	Signals  SignalsConfig  `toml:"signals"`
	Session  SessionConfig  `toml:"session"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// BrokerConfig holds broker endpoints and account credentials.
type BrokerConfig struct {
	WsURL   string `toml:"ws_url"`
	RestURL string `toml:"rest_url"`

	Email    string `toml:"email"`
	Password string `toml:"password"`
	// EncryptedSecretPath points at a JSON blob produced by `optbot encrypt-secret`;
	// it is decrypted with SecretPassphrase when Password is empty.
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassphrase    string `toml:"secret_passphrase"`

	// ApiKey/ApiSecret sign REST requests (candle backfill, account history).
	ApiKey    string `toml:"api_key"`
	ApiSecret string `toml:"api_secret"`

	AccountType  string   `toml:"account_type"` // "practice" or "real"
	OrderTimeout duration `toml:"order_timeout"`
	MinStake     float64  `toml:"min_stake"`
	// OrdersPerSecond caps submission rate against the broker API.
	OrdersPerSecond int `toml:"orders_per_second"`
}

// RiskConfig holds the account-wide capital limits.
type RiskConfig struct {
	BankSeed float64 `toml:"bank_seed"`
	// MaxExposureFrac caps the sum of concurrently open stakes as a fraction
	// of the daily start balance.
	MaxExposureFrac float64 `toml:"max_exposure_frac"`
	StopLossFrac    float64 `toml:"stop_loss_frac"`
	StopGainFrac    float64 `toml:"stop_gain_frac"`
	// ResetCron is a 5-field cron expression for the daily boundary, UTC.
	ResetCron string `toml:"reset_cron"`
}

// SignalsConfig holds the indicator weight table and evaluation parameters.
type SignalsConfig struct {
	ConfidenceThreshold float64            `toml:"confidence_threshold"`
	Weights             map[string]float64 `toml:"weights"`

	RSIPeriod     int     `toml:"rsi_period"`
	RSIOverbought float64 `toml:"rsi_overbought"`
	RSIOversold   float64 `toml:"rsi_oversold"`

	MACDFast   int `toml:"macd_fast"`
	MACDSlow   int `toml:"macd_slow"`
	MACDSignal int `toml:"macd_signal"`

	VolumeRatio    float64 `toml:"volume_ratio"`
	VolumeLookback int     `toml:"volume_lookback"`

	PriceActionLookback int `toml:"price_action_lookback"`

	// WindowSize is the number of candles kept per asset for evaluation.
	WindowSize     int      `toml:"window_size"`
	CandleInterval duration `toml:"candle_interval"`
}

// SessionConfig holds tick loop and asset parameters.
type SessionConfig struct {
	Assets       []string `toml:"assets"`
	TickInterval duration `toml:"tick_interval"`
	Expiration   duration `toml:"expiration"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig locates the Redis instance backing the caches and the bus.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	CandleLimit  int    `toml:"candle_limit"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// ArchiveConfig holds S3-compatible cold-storage parameters.
type ArchiveConfig struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
	Cron           string `toml:"cron"`
}

// duration lets TOML carry human-readable durations ("1m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText parses the TOML string form.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText renders the same string form back out.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig controls the dashboard API listener.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig selects the delivery channels and which events go out.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// MinNotifyPnL suppresses settlement notifications below this absolute PnL.
	MinNotifyPnL float64 `toml:"min_notify_pnl"`
}

// Defaults is the baseline configuration. It matches config.example.toml.
func Defaults() Config {
	return Config{
		Broker: BrokerConfig{
			WsURL:           "wss://iqoption.com/echo/websocket",
			RestURL:         "https://api.iqoption.com/api/v2",
			AccountType:     "practice",
			OrderTimeout:    duration{10 * time.Second},
			MinStake:        1.0,
			OrdersPerSecond: 5,
		},
		Risk: RiskConfig{
			BankSeed:        1000.0,
			MaxExposureFrac: 0.20,
			StopLossFrac:    0.40,
			StopGainFrac:    1.00,
			ResetCron:       "0 0 * * *",
		},
		Signals: SignalsConfig{
			ConfidenceThreshold: 0.60,
			Weights: map[string]float64{
				"price_action":   1.0,
				"volume":         1.0,
				"rsi":            1.5,
				"macd":           1.5,
				"candle_pattern": 1.0,
				"news":           2.0,
			},
			RSIPeriod:           14,
			RSIOverbought:       70,
			RSIOversold:         30,
			MACDFast:            12,
			MACDSlow:            26,
			MACDSignal:          9,
			VolumeRatio:         1.5,
			VolumeLookback:      10,
			PriceActionLookback: 5,
			WindowSize:          40,
			CandleInterval:      duration{time.Minute},
		},
		Session: SessionConfig{
			Assets:       []string{"EURUSD", "GBPUSD", "USDJPY", "AUDUSD", "EURJPY"},
			TickInterval: duration{time.Minute},
			Expiration:   duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "optbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			TLSEnabled:   false,
			CandleLimit:  500,
			StreamMaxLen: 10000,
		},
		Archive: ArchiveConfig{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "optbot-data",
			UseSSL:         false,
			ForcePathStyle: true,
			RetentionDays:  90,
			Cron:           "0 3 1 * *",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events:       []string{"halt", "daily_reset", "settlement", "broker_disconnect"},
			MinNotifyPnL: 0,
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes lists every runnable mode.
var validModes = map[string]bool{
	"trade":    true,
	"server":   true,
	"archive":  true,
	"backfill": true,
	"all":      true,
}

// validLogLevels lists the slog levels the CLI accepts.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validAccountTypes enumerates the accepted broker account types.
var validAccountTypes = map[string]bool{
	"practice": true,
	"real":     true,
}

// Validate inspects the whole Config and reports every problem it finds,
// joined into a single error.
func (c *Config) Validate() error {
	var errs []string

	// Operating mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, server, archive, backfill, all)", c.Mode))
	}

	// Log level
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Broker credentials must resolve for trading modes.
	needsBroker := c.Mode == "trade" || c.Mode == "backfill" || c.Mode == "all"
	if needsBroker {
		if c.Broker.WsURL == "" {
			errs = append(errs, "broker: ws_url must not be empty for mode "+c.Mode)
		}
		if c.Broker.Email == "" {
			errs = append(errs, "broker: email must not be empty for mode "+c.Mode)
		}
		if c.Broker.Password == "" && c.Broker.EncryptedSecretPath == "" {
			errs = append(errs, "broker: either password or encrypted_secret_path must be set for mode "+c.Mode)
		}
		if c.Broker.EncryptedSecretPath != "" && c.Broker.SecretPassphrase == "" {
			errs = append(errs, "broker: secret_passphrase is required when encrypted_secret_path is set")
		}
	}
	if !validAccountTypes[strings.ToLower(c.Broker.AccountType)] {
		errs = append(errs, fmt.Sprintf("broker: account_type must be practice or real, got %q", c.Broker.AccountType))
	}
	if c.Broker.OrderTimeout.Duration <= 0 {
		errs = append(errs, "broker: order_timeout must be > 0")
	}
	if c.Broker.MinStake <= 0 {
		errs = append(errs, "broker: min_stake must be > 0")
	}

	// The risk fractions are the engine's hard limits.
	if c.Risk.BankSeed <= 0 {
		errs = append(errs, "risk: bank_seed must be > 0")
	}
	if c.Risk.MaxExposureFrac <= 0 || c.Risk.MaxExposureFrac > 1 {
		errs = append(errs, fmt.Sprintf("risk: max_exposure_frac must be in (0,1], got %g", c.Risk.MaxExposureFrac))
	}
	if c.Risk.StopLossFrac <= 0 || c.Risk.StopLossFrac > 1 {
		errs = append(errs, fmt.Sprintf("risk: stop_loss_frac must be in (0,1], got %g", c.Risk.StopLossFrac))
	}
	if c.Risk.StopGainFrac <= 0 {
		errs = append(errs, "risk: stop_gain_frac must be > 0")
	}

	// Signals
	if c.Signals.ConfidenceThreshold < 0 || c.Signals.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Sprintf("signals: confidence_threshold must be in [0,1], got %g", c.Signals.ConfidenceThreshold))
	}
	if len(c.Signals.Weights) == 0 {
		errs = append(errs, "signals: weights must not be empty")
	}
	for name, w := range c.Signals.Weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("signals: weight for %q must be >= 0, got %g", name, w))
		}
	}
	if c.Signals.RSIPeriod < 2 {
		errs = append(errs, "signals: rsi_period must be >= 2")
	}
	if c.Signals.MACDFast >= c.Signals.MACDSlow {
		errs = append(errs, "signals: macd_fast must be less than macd_slow")
	}
	if c.Signals.WindowSize < c.Signals.MACDSlow+c.Signals.MACDSignal {
		errs = append(errs, fmt.Sprintf("signals: window_size %d is too small for macd_slow %d + macd_signal %d",
			c.Signals.WindowSize, c.Signals.MACDSlow, c.Signals.MACDSignal))
	}

	// Session
	if len(c.Session.Assets) == 0 {
		errs = append(errs, "session: assets must not be empty")
	}
	if c.Session.TickInterval.Duration <= 0 {
		errs = append(errs, "session: tick_interval must be > 0")
	}
	if c.Session.Expiration.Duration <= 0 {
		errs = append(errs, "session: expiration must be > 0")
	}

	// Postgres
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
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis connection
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.CandleLimit < 1 {
		errs = append(errs, "redis: candle_limit must be >= 1")
	}

	// Archive
	if c.Archive.Enabled || c.Mode == "archive" {
		if c.Archive.Endpoint == "" {
			errs = append(errs, "archive: endpoint must not be empty")
		}
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Dashboard listener
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
