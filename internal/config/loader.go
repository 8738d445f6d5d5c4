package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load builds the effective Config: compiled-in defaults, overlaid with the
// TOML file at path, overlaid with OPTBOT_* environment variables. Nothing
// is validated here; callers run Config.Validate once they hold the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// A .env file is optional; a missing one is not an error.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides maps OPTBOT_* variables onto Config fields. Only set,
// non-empty variables override, which is how deployments inject credentials
// without editing the TOML file.
func applyEnvOverrides(cfg *Config) {
	// --- Broker ---
	setStr(&cfg.Broker.WsURL, "OPTBOT_BROKER_WS_URL")
	setStr(&cfg.Broker.RestURL, "OPTBOT_BROKER_REST_URL")
	setStr(&cfg.Broker.Email, "OPTBOT_BROKER_EMAIL")
	setStr(&cfg.Broker.Password, "OPTBOT_BROKER_PASSWORD")
	setStr(&cfg.Broker.EncryptedSecretPath, "OPTBOT_BROKER_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Broker.SecretPassphrase, "OPTBOT_BROKER_SECRET_PASSPHRASE")
	setStr(&cfg.Broker.ApiKey, "OPTBOT_BROKER_API_KEY")
	setStr(&cfg.Broker.ApiSecret, "OPTBOT_BROKER_API_SECRET")
	setStr(&cfg.Broker.AccountType, "OPTBOT_BROKER_ACCOUNT_TYPE")
	setDuration(&cfg.Broker.OrderTimeout, "OPTBOT_BROKER_ORDER_TIMEOUT")
	setFloat64(&cfg.Broker.MinStake, "OPTBOT_BROKER_MIN_STAKE")
	setInt(&cfg.Broker.OrdersPerSecond, "OPTBOT_BROKER_ORDERS_PER_SECOND")

	// --- Risk ---
	setFloat64(&cfg.Risk.BankSeed, "OPTBOT_RISK_BANK_SEED")
	setFloat64(&cfg.Risk.MaxExposureFrac, "OPTBOT_RISK_MAX_EXPOSURE_FRAC")
	setFloat64(&cfg.Risk.StopLossFrac, "OPTBOT_RISK_STOP_LOSS_FRAC")
	setFloat64(&cfg.Risk.StopGainFrac, "OPTBOT_RISK_STOP_GAIN_FRAC")
	setStr(&cfg.Risk.ResetCron, "OPTBOT_RISK_RESET_CRON")

	// --- Signals ---
	setFloat64(&cfg.Signals.ConfidenceThreshold, "OPTBOT_SIGNALS_CONFIDENCE_THRESHOLD")
	setInt(&cfg.Signals.RSIPeriod, "OPTBOT_SIGNALS_RSI_PERIOD")
	setFloat64(&cfg.Signals.RSIOverbought, "OPTBOT_SIGNALS_RSI_OVERBOUGHT")
	setFloat64(&cfg.Signals.RSIOversold, "OPTBOT_SIGNALS_RSI_OVERSOLD")
	setInt(&cfg.Signals.MACDFast, "OPTBOT_SIGNALS_MACD_FAST")
	setInt(&cfg.Signals.MACDSlow, "OPTBOT_SIGNALS_MACD_SLOW")
	setInt(&cfg.Signals.MACDSignal, "OPTBOT_SIGNALS_MACD_SIGNAL")
	setFloat64(&cfg.Signals.VolumeRatio, "OPTBOT_SIGNALS_VOLUME_RATIO")
	setInt(&cfg.Signals.VolumeLookback, "OPTBOT_SIGNALS_VOLUME_LOOKBACK")
	setInt(&cfg.Signals.PriceActionLookback, "OPTBOT_SIGNALS_PRICE_ACTION_LOOKBACK")
	setInt(&cfg.Signals.WindowSize, "OPTBOT_SIGNALS_WINDOW_SIZE")
	setDuration(&cfg.Signals.CandleInterval, "OPTBOT_SIGNALS_CANDLE_INTERVAL")

	// --- Session ---
	setStringSlice(&cfg.Session.Assets, "OPTBOT_SESSION_ASSETS")
	setDuration(&cfg.Session.TickInterval, "OPTBOT_SESSION_TICK_INTERVAL")
	setDuration(&cfg.Session.Expiration, "OPTBOT_SESSION_EXPIRATION")

	// --- Postgres ---
	setStr(&cfg.Postgres.DSN, "OPTBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "OPTBOT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "OPTBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "OPTBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "OPTBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "OPTBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "OPTBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "OPTBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "OPTBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "OPTBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "OPTBOT_POSTGRES_RUN_MIGRATIONS")

	// --- Redis ---
	setStr(&cfg.Redis.Addr, "OPTBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "OPTBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "OPTBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "OPTBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "OPTBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "OPTBOT_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.CandleLimit, "OPTBOT_REDIS_CANDLE_LIMIT")
	setInt64(&cfg.Redis.StreamMaxLen, "OPTBOT_REDIS_STREAM_MAX_LEN")

	// --- Archive ---
	setBool(&cfg.Archive.Enabled, "OPTBOT_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "OPTBOT_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "OPTBOT_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "OPTBOT_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "OPTBOT_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "OPTBOT_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.UseSSL, "OPTBOT_ARCHIVE_USE_SSL")
	setBool(&cfg.Archive.ForcePathStyle, "OPTBOT_ARCHIVE_FORCE_PATH_STYLE")
	setInt(&cfg.Archive.RetentionDays, "OPTBOT_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "OPTBOT_ARCHIVE_CRON")

	// --- Server ---
	setBool(&cfg.Server.Enabled, "OPTBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "OPTBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "OPTBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "OPTBOT_SERVER_API_KEY")

	// --- Notify ---
	setStr(&cfg.Notify.TelegramToken, "OPTBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "OPTBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "OPTBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "OPTBOT_NOTIFY_EVENTS")
	setFloat64(&cfg.Notify.MinNotifyPnL, "OPTBOT_NOTIFY_MIN_NOTIFY_PNL")

	// --- Top-level ---
	setStr(&cfg.Mode, "OPTBOT_MODE")
	setStr(&cfg.LogLevel, "OPTBOT_LOG_LEVEL")
}

// setFromEnv stores the parsed value of an environment variable. Unset,
// empty, and malformed values leave the target untouched.
func setFromEnv[T any](dst *T, key string, parse func(string) (T, error)) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if parsed, err := parse(v); err == nil {
		*dst = parsed
	}
}

func setStr(dst *string, key string) {
	setFromEnv(dst, key, func(v string) (string, error) { return v, nil })
}

func setInt(dst *int, key string) { setFromEnv(dst, key, strconv.Atoi) }

func setInt64(dst *int64, key string) {
	setFromEnv(dst, key, func(v string) (int64, error) { return strconv.ParseInt(v, 10, 64) })
}

func setFloat64(dst *float64, key string) {
	setFromEnv(dst, key, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func setBool(dst *bool, key string) { setFromEnv(dst, key, strconv.ParseBool) }

func setDuration(dst *duration, key string) {
	setFromEnv(&dst.Duration, key, time.ParseDuration)
}

// setStringSlice splits a comma-separated variable, dropping empty items.
func setStringSlice(dst *[]string, key string) {
	setFromEnv(dst, key, func(v string) ([]string, error) {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			return nil, errors.New("empty list")
		}
		return out, nil
	})
}
