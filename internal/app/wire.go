package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/optionbot/internal/blob/s3"
	"github.com/alanyoungcy/optionbot/internal/cache/redis"
	"github.com/alanyoungcy/optionbot/internal/config"
	"github.com/alanyoungcy/optionbot/internal/domain"
	"github.com/alanyoungcy/optionbot/internal/notify"
	"github.com/alanyoungcy/optionbot/internal/pipeline"
	"github.com/alanyoungcy/optionbot/internal/store/postgres"
)

// Dependencies is the wired object graph the modes run on. Wire builds
// it; the returned cleanup tears it down.
type Dependencies struct {
	// Postgres-backed stores
	Positions domain.PositionStore
	TradeLog  domain.TradeLogStore
	Settings  domain.SettingsStore
	Audit     domain.AuditStore

	// Row cleanup surfaces for the archive pipeline. The concrete postgres
	// stores satisfy these; deletion is deliberately kept off the domain
	// store interfaces so nothing else can remove rows.
	PositionCleaner pipeline.PositionCleaner
	TradeLogCleaner pipeline.TradeLogCleaner

	// Caches and coordination
	Quotes      domain.QuoteCache
	Candles     domain.CandleCache
	RateLimiter domain.RateLimiter
	Locks       domain.LockManager
	Bus         domain.SignalBus

	// Cold storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Outbound alerting
	Notifier *notify.Notifier
	Alerts   *notify.Alerts

	// Raw clients, kept so the health endpoint can ping each backend.
	Postgres *postgres.Client
	Redis    *redis.Client
	S3       *s3blob.Client
}

// needsPostgres reports whether a mode opens the database. Backfill only
// warms the Redis candle cache.
func needsPostgres(mode string) bool {
	switch mode {
	case "trade", "server", "archive", "all":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that move rows into cold storage.
func needsS3(mode string) bool {
	switch mode {
	case "archive", "all":
		return true
	default:
		return false
	}
}

// Wire turns the configuration into concrete clients, stores, and
// services. Call the returned cleanup on shutdown to release every
// connection it opened.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	if needsPostgres(mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		positions := postgres.NewPositionStore(pool)
		tradeLog := postgres.NewTradeLogStore(pool)
		deps.Positions = positions
		deps.TradeLog = tradeLog
		deps.Settings = postgres.NewSettingsStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.PositionCleaner = positions
		deps.TradeLogCleaner = tradeLog
		deps.Postgres = pgClient
	}

	// --- Redis (every mode) ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	candleLimit := cfg.Redis.CandleLimit
	if candleLimit <= 0 {
		candleLimit = 500
	}
	streamMaxLen := cfg.Redis.StreamMaxLen
	if streamMaxLen <= 0 {
		streamMaxLen = 10000
	}

	deps.Quotes = redis.NewQuoteCache(redisClient)
	deps.Candles = redis.NewCandleCache(redisClient, candleLimit)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.Bus = redis.NewSignalBus(redisClient, streamMaxLen)
	deps.Redis = redisClient

	// --- S3 cold storage ---
	// Archive mode implies cold storage even when the cron flag is off.
	if needsS3(mode) && (cfg.Archive.Enabled || mode == "archive") {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			UseSSL:         cfg.Archive.UseSSL,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		blobs := s3blob.NewStore(s3Client)
		deps.BlobWriter = blobs
		deps.BlobReader = blobs
		deps.S3 = s3Client

		// The archiver needs the stores to drain and the reader to verify
		// each upload before the pipeline deletes anything.
		if deps.Positions != nil && deps.TradeLog != nil && deps.Audit != nil {
			deps.Archiver = s3blob.NewArchiver(blobs, blobs, deps.Positions, deps.TradeLog, deps.Audit)
		}
	}

	// --- Alerting ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Alerts = notify.NewAlerts(deps.Notifier, cfg.Notify.MinNotifyPnL)

	return deps, cleanup, nil
}
