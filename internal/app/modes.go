package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/optionbot/internal/aggregator"
	"github.com/alanyoungcy/optionbot/internal/allocator"
	"github.com/alanyoungcy/optionbot/internal/broker"
	"github.com/alanyoungcy/optionbot/internal/config"
	"github.com/alanyoungcy/optionbot/internal/crypto"
	"github.com/alanyoungcy/optionbot/internal/domain"
	"github.com/alanyoungcy/optionbot/internal/executor"
	"github.com/alanyoungcy/optionbot/internal/feed"
	"github.com/alanyoungcy/optionbot/internal/indicator"
	"github.com/alanyoungcy/optionbot/internal/pipeline"
	"github.com/alanyoungcy/optionbot/internal/risk"
	"github.com/alanyoungcy/optionbot/internal/server"
	"github.com/alanyoungcy/optionbot/internal/server/handler"
	"github.com/alanyoungcy/optionbot/internal/server/ws"
	"github.com/alanyoungcy/optionbot/internal/service"
	"github.com/alanyoungcy/optionbot/internal/session"
)

// Dashboard request cap per client, enforced via the Redis rate limiter.
const (
	apiRateLimit  = 20
	apiRateWindow = time.Second
)

// TradeMode runs the full engine: broker stream, tick pipeline, execution
// coordinator, and (when enabled) the dashboard server.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	return a.runEngine(ctx, deps, false)
}

// ServerMode runs the dashboard API alone, reading positions, candles, and
// signal history produced by a trade process elsewhere. No broker connection
// and no risk ledger exist in this mode.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	cfg := a.cfg

	// The aggregator only serves as the tuning surface here; nothing
	// evaluates windows in server mode.
	registry := indicator.Defaults(indicatorParams(cfg.Signals))
	agg := aggregator.New(registry, cfg.Signals.Weights, cfg.Signals.ConfidenceThreshold, a.logger)

	stats := service.NewStatsService(a.logger)
	if deps.TradeLog != nil {
		if err := stats.Warm(ctx, deps.TradeLog, startOfDayUTC(time.Now())); err != nil {
			a.logger.WarnContext(ctx, "stats warm-up failed",
				slog.String("error", err.Error()),
			)
		}
	}

	positionSvc := service.NewPositionService(
		deps.Positions, deps.TradeLog, deps.Bus, deps.Audit, nil, stats, a.logger,
	)
	settingsSvc := service.NewSettingsService(deps.Settings, agg, deps.Audit, a.logger)
	if err := settingsSvc.Load(ctx); err != nil {
		a.logger.WarnContext(ctx, "signal settings load failed, using config defaults",
			slog.String("error", err.Error()),
		)
	}
	quoteSvc := service.NewQuoteService(deps.Quotes, deps.Candles, nil, a.logger)
	signalSrc := newBusSignalSource(deps.Bus, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	handlers := server.Handlers{
		Health:    a.healthHandler(deps),
		Status:    handler.NewStatusHandler(nil, nil, nil, signalSrc, stats, cfg.Mode, cfg.Broker.AccountType),
		Positions: handler.NewPositionHandler(positionSvc, a.logger),
		Signals:   handler.NewSignalHandler(signalSrc, nil, nil, a.logger),
		Settings:  handler.NewSettingsHandler(settingsSvc, a.logger),
		Candles:   handler.NewCandleHandler(quoteSvc, a.logger),
	}
	a.startHTTPServer(gctx, g, deps, handlers)

	return g.Wait()
}

// ArchiveMode runs a single archive pass and exits: settled positions and
// trade log rows past the retention window are uploaded to cold storage and
// then deleted from Postgres.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires s3 configuration")
	}

	archiver := pipeline.NewArchiver(
		deps.Archiver, deps.PositionCleaner, deps.TradeLogCleaner,
		a.cfg.Archive.RetentionDays, a.logger,
	)
	if err := archiver.Run(ctx); err != nil {
		return fmt.Errorf("app: archive: %w", err)
	}
	return nil
}

// BackfillMode seeds the candle cache from broker REST history and exits.
// Useful before the first trade run so the engine does not wait a full
// window of live bars before producing signals.
func (a *App) BackfillMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting backfill mode",
		slog.Any("assets", a.cfg.Session.Assets),
	)

	cfg := a.cfg
	auth, err := buildBrokerAuth(cfg.Broker)
	if err != nil {
		return err
	}
	restClient := broker.NewClient(cfg.Broker.RestURL, auth, accountType(cfg.Broker.AccountType))
	restClient.SetRateLimiter(deps.RateLimiter, cfg.Broker.OrdersPerSecond)

	windows := feed.NewWindows(feed.WindowsConfig{
		Interval: cfg.Signals.CandleInterval.Duration,
		Size:     cfg.Signals.WindowSize,
		Params:   indicatorParams(cfg.Signals),
	}, deps.Candles, a.logger)

	seed := pipeline.NewBackfill(pipeline.BackfillConfig{
		Assets:   cfg.Session.Assets,
		Interval: cfg.Signals.CandleInterval.Duration,
		Bars:     cfg.Signals.WindowSize + 10,
	}, restClient, windows, deps.Candles, a.logger)

	if err := seed.Run(ctx); err != nil {
		return fmt.Errorf("app: backfill: %w", err)
	}
	return nil
}

// AllMode runs the trade engine plus the monthly archive cron in one
// process.
func (a *App) AllMode(ctx context.Context, deps *Dependencies) error {
	return a.runEngine(ctx, deps, true)
}

// runEngine builds and runs the trading pipeline: broker clients, risk
// ledger, evaluation windows, signal aggregator, allocator, execution
// coordinator, and session controller, plus the dashboard server when
// enabled. withArchiver additionally schedules the archive cron.
func (a *App) runEngine(ctx context.Context, deps *Dependencies, withArchiver bool) error {
	a.logger.InfoContext(ctx, "starting trade engine",
		slog.Any("assets", a.cfg.Session.Assets),
		slog.Bool("archiver", withArchiver),
	)

	cfg := a.cfg

	auth, err := buildBrokerAuth(cfg.Broker)
	if err != nil {
		return err
	}
	restClient := broker.NewClient(cfg.Broker.RestURL, auth, accountType(cfg.Broker.AccountType))
	restClient.SetRateLimiter(deps.RateLimiter, cfg.Broker.OrdersPerSecond)

	bankSeed := a.resolveBankSeed(ctx, restClient)

	ledger := risk.NewLedger(risk.Config{
		BankSeed:        bankSeed,
		MaxExposureFrac: cfg.Risk.MaxExposureFrac,
		StopLossFrac:    cfg.Risk.StopLossFrac,
		StopGainFrac:    cfg.Risk.StopGainFrac,
	}, a.logger)

	windows := feed.NewWindows(feed.WindowsConfig{
		Interval: cfg.Signals.CandleInterval.Duration,
		Size:     cfg.Signals.WindowSize,
		Params:   indicatorParams(cfg.Signals),
	}, deps.Candles, a.logger)

	registry := indicator.Defaults(indicatorParams(cfg.Signals))
	agg := aggregator.New(registry, cfg.Signals.Weights, cfg.Signals.ConfidenceThreshold, a.logger)

	stats := service.NewStatsService(a.logger)
	if deps.TradeLog != nil {
		if err := stats.Warm(ctx, deps.TradeLog, startOfDayUTC(time.Now())); err != nil {
			a.logger.WarnContext(ctx, "stats warm-up failed",
				slog.String("error", err.Error()),
			)
		}
	}

	positionSvc := service.NewPositionService(
		deps.Positions, deps.TradeLog, deps.Bus, deps.Audit, ledger, stats, a.logger,
	)
	if deps.Alerts != nil {
		positionSvc.SetAlerts(deps.Alerts)
	}
	settingsSvc := service.NewSettingsService(deps.Settings, agg, deps.Audit, a.logger)
	if err := settingsSvc.Load(ctx); err != nil {
		a.logger.WarnContext(ctx, "signal settings load failed, using config defaults",
			slog.String("error", err.Error()),
		)
	}
	quoteSvc := service.NewQuoteService(deps.Quotes, deps.Candles, windows, a.logger)

	alloc := allocator.New(allocator.Config{
		MinStake:        cfg.Broker.MinStake,
		MaxExposureFrac: cfg.Risk.MaxExposureFrac,
		Expiration:      cfg.Session.Expiration.Duration,
	}, ledger, a.logger)

	coord := executor.NewCoordinator(executor.Config{
		OrderTimeout: cfg.Broker.OrderTimeout.Duration,
	}, restClient, ledger, positionSvc, a.logger)

	evaluator := &publishingEvaluator{inner: agg, bus: deps.Bus, logger: a.logger}

	controller := session.NewController(session.Config{
		Assets:       cfg.Session.Assets,
		TickInterval: cfg.Session.TickInterval.Duration,
		ResetCron:    cfg.Risk.ResetCron,
	}, windows, evaluator, alloc, coord, ledger, deps.Locks, a.logger)

	ledger.SetHaltHook(func(reason domain.HaltReason, state domain.RiskState) {
		a.publishStatus(deps.Bus, "halt", state)
		if deps.Alerts != nil {
			alertCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := deps.Alerts.Halt(alertCtx, reason, state); err != nil {
				a.logger.Warn("halt alert failed", slog.String("error", err.Error()))
			}
		}
	})
	controller.SetResetHook(func(before, after domain.RiskState) {
		stats.Reset()
		a.publishStatus(deps.Bus, "daily_reset", after)
		if deps.Alerts != nil {
			alertCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := deps.Alerts.DailyReset(alertCtx, before, after); err != nil {
				a.logger.Warn("daily reset alert failed", slog.String("error", err.Error()))
			}
		}
	})

	stream := broker.NewStream(cfg.Broker.WsURL, auth, a.logger)
	streamFeed := feed.NewStreamFeed(feed.StreamFeedConfig{
		Assets:       cfg.Session.Assets,
		Stream:       stream,
		Windows:      windows,
		Quotes:       deps.Quotes,
		Bus:          deps.Bus,
		OnSettlement: coord.SubmitSettlement,
		OnDisconnect: func(cause error) {
			if deps.Alerts == nil {
				return
			}
			alertCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := deps.Alerts.BrokerDisconnect(alertCtx, cause); err != nil {
				a.logger.Warn("disconnect alert failed", slog.String("error", err.Error()))
			}
		},
		Logger: a.logger,
	})

	// Seed the evaluation windows from REST history so the first ticks have
	// a full window. Live quotes fill the windows regardless, so a failed
	// backfill only delays the first signals.
	seed := pipeline.NewBackfill(pipeline.BackfillConfig{
		Assets:   cfg.Session.Assets,
		Interval: cfg.Signals.CandleInterval.Duration,
		Bars:     cfg.Signals.WindowSize + 10,
	}, restClient, windows, deps.Candles, a.logger)
	if err := seed.Run(ctx); err != nil {
		a.logger.WarnContext(ctx, "candle backfill failed, windows will fill from live quotes",
			slog.String("error", err.Error()),
		)
	}

	var archiver *pipeline.Archiver
	archiveCron := ""
	if withArchiver {
		if deps.Archiver != nil {
			archiver = pipeline.NewArchiver(
				deps.Archiver, deps.PositionCleaner, deps.TradeLogCleaner,
				cfg.Archive.RetentionDays, a.logger,
			)
			archiveCron = cfg.Archive.Cron
		} else {
			a.logger.InfoContext(ctx, "archiving disabled, running without cold storage loop")
		}
	}

	orch := pipeline.NewOrchestrator(streamFeed, controller, archiver, archiveCron, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := coord.Run(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("app: coordinator: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := orch.Run(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("app: orchestrator: %w", err)
		}
		return nil
	})

	if cfg.Server.Enabled {
		handlers := server.Handlers{
			Health:    a.healthHandler(deps),
			Status:    handler.NewStatusHandler(ledger, controller, coord, agg, stats, cfg.Mode, cfg.Broker.AccountType),
			Positions: handler.NewPositionHandler(positionSvc, a.logger),
			Signals:   handler.NewSignalHandler(agg, agg, windows, a.logger),
			Assets:    handler.NewAssetHandler(controller, quoteSvc, a.logger),
			Control:   handler.NewControlHandler(controller, a.logger),
			Settings:  handler.NewSettingsHandler(settingsSvc, a.logger),
			Candles:   handler.NewCandleHandler(quoteSvc, a.logger),
		}
		a.startHTTPServer(gctx, g, deps, handlers)
	}

	return g.Wait()
}

// signalEvent is the JSON shape signals take on the bus, both on the live
// channel and in the durable history stream.
type signalEvent struct {
	Event        string    `json:"event"`
	AssetID      string    `json:"asset_id"`
	Direction    string    `json:"direction"`
	Confidence   float64   `json:"confidence"`
	Contributing []string  `json:"contributing,omitempty"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// publishingEvaluator wraps the signal aggregator so every actionable signal
// is also pushed to the dashboard channel and appended to the history
// stream. Publish failures never block the tick.
type publishingEvaluator struct {
	inner  *aggregator.Aggregator
	bus    domain.SignalBus
	logger *slog.Logger
}

func (p *publishingEvaluator) Evaluate(win domain.MarketWindow) domain.Signal {
	sig := p.inner.Evaluate(win)
	if !sig.Actionable() || p.bus == nil {
		return sig
	}

	payload, err := json.Marshal(signalEvent{
		Event:        "signal",
		AssetID:      sig.AssetID,
		Direction:    string(sig.Direction),
		Confidence:   sig.Confidence,
		Contributing: sig.Contributing,
		GeneratedAt:  sig.GeneratedAt,
	})
	if err != nil {
		return sig
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.bus.Publish(ctx, "signals", payload); err != nil {
		p.logger.Warn("signal publish failed",
			slog.String("asset_id", sig.AssetID),
			slog.String("error", err.Error()),
		)
	}
	if err := p.bus.StreamAppend(ctx, "stream:signals", payload); err != nil {
		p.logger.Warn("signal stream append failed",
			slog.String("asset_id", sig.AssetID),
			slog.String("error", err.Error()),
		)
	}
	return sig
}

// signalHistoryCap bounds how many replayed signals server mode keeps in
// memory.
const signalHistoryCap = 100

// busSignalSource rebuilds recent signal history from the durable stream a
// trade process appends to. Server mode has no live aggregator, so this is
// how its dashboard sees signals produced elsewhere.
type busSignalSource struct {
	bus    domain.SignalBus
	logger *slog.Logger

	mu     sync.Mutex
	lastID string
	ring   []domain.Signal
}

func newBusSignalSource(bus domain.SignalBus, logger *slog.Logger) *busSignalSource {
	return &busSignalSource{
		bus:    bus,
		logger: logger.With(slog.String("component", "signal_source")),
		lastID: "0",
	}
}

// RecentSignals returns up to limit signals, newest first.
func (b *busSignalSource) RecentSignals(limit int) []domain.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.catchUp()

	n := len(b.ring)
	if limit > n {
		limit = n
	}
	out := make([]domain.Signal, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, b.ring[i])
	}
	return out
}

// catchUp drains stream entries appended since the previous call into the
// ring. Caller holds b.mu.
func (b *busSignalSource) catchUp() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for {
		msgs, err := b.bus.StreamRead(ctx, "stream:signals", b.lastID, 256)
		if err != nil {
			b.logger.Warn("signal stream read failed", slog.String("error", err.Error()))
			return
		}
		if len(msgs) == 0 {
			return
		}
		for _, msg := range msgs {
			b.lastID = msg.ID
			var evt signalEvent
			if err := json.Unmarshal(msg.Payload, &evt); err != nil {
				continue
			}
			b.ring = append(b.ring, domain.Signal{
				AssetID:      evt.AssetID,
				Direction:    domain.Direction(evt.Direction),
				Confidence:   evt.Confidence,
				Contributing: evt.Contributing,
				GeneratedAt:  evt.GeneratedAt,
			})
		}
		if len(b.ring) > signalHistoryCap {
			b.ring = b.ring[len(b.ring)-signalHistoryCap:]
		}
		if len(msgs) < 256 {
			return
		}
	}
}

// publishStatus pushes a risk state change onto the dashboard status
// channel. Status events are advisory; failures are logged and swallowed.
func (a *App) publishStatus(bus domain.SignalBus, event string, state domain.RiskState) {
	if bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"event":               event,
		"bank_balance":        state.BankBalance,
		"daily_start_balance": state.DailyStartBalance,
		"daily_pnl":           state.DailyRealizedPnL,
		"open_exposure":       state.OpenExposureTotal,
		"trading_halted":      state.TradingHalted,
		"halt_reason":         string(state.HaltReason),
	})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := bus.Publish(ctx, "status", payload); err != nil {
		a.logger.Warn("status publish failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// buildBrokerAuth assembles the HMAC credentials for the broker API. The
// API key pair wins when set; otherwise the account email keys the signature
// and the secret comes from the password or the encrypted secret file.
func buildBrokerAuth(cfg config.BrokerConfig) (*crypto.HMACAuth, error) {
	key := cfg.ApiKey
	if key == "" {
		key = cfg.Email
	}

	secret := cfg.ApiSecret
	if secret == "" {
		s, err := crypto.LoadSecret(crypto.SecretConfig{
			RawSecret:           cfg.Password,
			EncryptedSecretPath: cfg.EncryptedSecretPath,
			Passphrase:          cfg.SecretPassphrase,
		})
		if err != nil {
			return nil, fmt.Errorf("app: load broker secret: %w", err)
		}
		secret = s
	}

	return &crypto.HMACAuth{Key: key, Secret: secret}, nil
}

func accountType(s string) domain.AccountType {
	if strings.EqualFold(s, string(domain.AccountTypeReal)) {
		return domain.AccountTypeReal
	}
	return domain.AccountTypePractice
}

func indicatorParams(cfg config.SignalsConfig) indicator.Params {
	return indicator.Params{
		RSIPeriod:           cfg.RSIPeriod,
		RSIOverbought:       cfg.RSIOverbought,
		RSIOversold:         cfg.RSIOversold,
		MACDFast:            cfg.MACDFast,
		MACDSlow:            cfg.MACDSlow,
		MACDSignal:          cfg.MACDSignal,
		VolumeRatio:         cfg.VolumeRatio,
		VolumeLookback:      cfg.VolumeLookback,
		PriceActionLookback: cfg.PriceActionLookback,
	}
}

// resolveBankSeed asks the broker for the live account balance to seed the
// risk ledger. The configured seed is the fallback, so the engine can still
// start through a broker REST outage.
func (a *App) resolveBankSeed(ctx context.Context, client *broker.Client) float64 {
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	balance, err := client.GetBalance(fetchCtx)
	if err != nil {
		a.logger.WarnContext(ctx, "balance fetch failed, using configured bank seed",
			slog.Float64("bank_seed", a.cfg.Risk.BankSeed),
			slog.String("error", err.Error()),
		)
		return a.cfg.Risk.BankSeed
	}
	if balance <= 0 {
		a.logger.WarnContext(ctx, "broker reported non-positive balance, using configured bank seed",
			slog.Float64("balance", balance),
			slog.Float64("bank_seed", a.cfg.Risk.BankSeed),
		)
		return a.cfg.Risk.BankSeed
	}

	a.logger.InfoContext(ctx, "bank seeded from broker balance",
		slog.Float64("balance", balance),
	)
	return balance
}

func startOfDayUTC(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// healthHandler registers a pinger for every backend that was wired.
func (a *App) healthHandler(deps *Dependencies) *handler.HealthHandler {
	health := handler.NewHealthHandler(a.logger)
	if deps.Postgres != nil {
		health.Register("postgres", deps.Postgres)
	}
	if deps.Redis != nil {
		health.Register("redis", deps.Redis)
	}
	if deps.S3 != nil {
		health.Register("s3", deps.S3)
	}
	return health
}

// startHTTPServer adds the dashboard server and its WebSocket hub to the
// given errgroup. The server stops when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, handlers server.Handlers) {
	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		Limiter:     deps.RateLimiter,
		RateLimit:   apiRateLimit,
		RateWindow:  apiRateWindow,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("app: ws hub: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := srv.Start(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
