// Package session drives the trading day: the minute tick that turns market
// windows into signals and signals into submitted orders, the halt state
// machine, and the scheduled daily risk reset.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/optionbot/internal/cron"
	"github.com/alanyoungcy/optionbot/internal/domain"
	"github.com/alanyoungcy/optionbot/internal/risk"
)

// State is the controller's lifecycle state. Halted means the ledger vetoes
// new positions; settlements keep flowing through the executor regardless.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateHalted  State = "halted"
)

const (
	resetLockKey = "daily_reset"
	resetLockTTL = time.Minute
)

// Evaluator produces one signal from one market window.
type Evaluator interface {
	Evaluate(win domain.MarketWindow) domain.Signal
}

// Allocator sizes and reserves stakes for a tick's signals.
type Allocator interface {
	Allocate(signals []domain.Signal, now time.Time) []domain.Order
}

// Submitter places a reserved order with the broker, compensating the
// reservation itself when placement fails.
type Submitter interface {
	Submit(ctx context.Context, order domain.Order) (domain.Position, error)
}

// WindowSource hands out evaluation windows per asset.
type WindowSource interface {
	Ready(assetID string) bool
	Window(assetID string, at time.Time) (domain.MarketWindow, error)
}

// ResetHook is called after each daily reset with the risk state closed out
// and the freshly rebased one.
type ResetHook func(before, after domain.RiskState)

// Config carries the session parameters.
type Config struct {
	// Assets is the tradable universe. Per-asset enablement starts true and
	// can be toggled at runtime.
	Assets []string
	// TickInterval is the evaluation cadence, one minute for this product.
	TickInterval time.Duration
	// ResetCron schedules the daily reset, 5-field cron in UTC.
	ResetCron string
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Minute
	}
	if c.ResetCron == "" {
		c.ResetCron = "0 0 * * *"
	}
	return c
}

// AssetStatus is one asset's runtime view for the dashboard.
type AssetStatus struct {
	ID          string `json:"id"`
	Enabled     bool   `json:"enabled"`
	WindowReady bool   `json:"window_ready"`
}

// Controller owns the tick loop. One controller runs per process; ticks are
// strictly sequential, only the per-asset evaluation inside a tick fans out.
type Controller struct {
	cfg       Config
	windows   WindowSource
	evaluator Evaluator
	allocator Allocator
	submitter Submitter
	ledger    *risk.Ledger
	locks     domain.LockManager
	logger    *slog.Logger

	resetHook ResetHook

	mu       sync.Mutex
	state    State
	enabled  map[string]bool
	lastTick time.Time
}

// NewController wires the tick pipeline. locks may be nil, in which case the
// daily reset runs unguarded (single-instance deployments).
func NewController(
	cfg Config,
	windows WindowSource,
	evaluator Evaluator,
	allocator Allocator,
	submitter Submitter,
	ledger *risk.Ledger,
	locks domain.LockManager,
	logger *slog.Logger,
) *Controller {
	cfg = cfg.withDefaults()
	enabled := make(map[string]bool, len(cfg.Assets))
	for _, assetID := range cfg.Assets {
		enabled[assetID] = true
	}
	return &Controller{
		cfg:       cfg,
		windows:   windows,
		evaluator: evaluator,
		allocator: allocator,
		submitter: submitter,
		ledger:    ledger,
		locks:     locks,
		logger:    logger.With(slog.String("component", "session")),
		state:     StateIdle,
		enabled:   enabled,
	}
}

// SetResetHook registers a callback fired after each daily reset. Call
// before Run.
func (c *Controller) SetResetHook(hook ResetHook) {
	c.resetHook = hook
}

// Run starts the tick loop and the reset scheduler. It blocks until the
// context is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	sched, err := cron.Parse(c.cfg.ResetCron)
	if err != nil {
		return fmt.Errorf("session: parsing reset cron %q: %w", c.cfg.ResetCron, err)
	}

	c.setState(StateRunning)
	c.logger.Info("session started",
		slog.Any("assets", c.cfg.Assets),
		slog.Duration("tick_interval", c.cfg.TickInterval),
		slog.String("reset_cron", c.cfg.ResetCron),
	)
	defer func() {
		c.setState(StateIdle)
		c.logger.Info("session stopped")
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.tickLoop(gctx) })
	g.Go(func() error { return c.resetLoop(gctx, sched) })
	return g.Wait()
}

func (c *Controller) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			c.Tick(ctx, now.UTC())
		}
	}
}

// Tick runs one evaluation cycle: assemble windows, evaluate, allocate,
// submit. Exported so tests and the backfill command can drive cycles
// without the wall clock.
func (c *Controller) Tick(ctx context.Context, now time.Time) {
	snap := c.ledger.Snapshot()
	if snap.TradingHalted {
		if prev := c.setState(StateHalted); prev != StateHalted {
			c.logger.Warn("session halted, no new positions until daily reset",
				slog.String("reason", string(snap.HaltReason)),
				slog.Float64("daily_pnl", snap.DailyRealizedPnL),
			)
		}
		return
	}
	if prev := c.setState(StateRunning); prev == StateHalted {
		c.logger.Info("session trading resumed")
	}

	assets := c.enabledAssets()
	if len(assets) == 0 {
		return
	}

	signals := c.evaluate(ctx, assets, now)
	orders := c.allocator.Allocate(signals, now)

	// Every allocated order holds a live reservation and must reach Submit
	// exactly once; the failure path inside Submit releases it.
	placed := 0
	for _, order := range orders {
		if _, err := c.submitter.Submit(ctx, order); err != nil {
			c.logger.Warn("order submission failed",
				slog.String("asset_id", order.AssetID),
				slog.String("error", err.Error()),
			)
			continue
		}
		placed++
	}

	c.mu.Lock()
	c.lastTick = now
	c.mu.Unlock()

	log := c.logger.Debug
	if placed > 0 {
		log = c.logger.Info
	}
	log("tick complete",
		slog.Time("tick", now),
		slog.Int("assets", len(assets)),
		slog.Int("signals", len(signals)),
		slog.Int("orders", len(orders)),
		slog.Int("placed", placed),
	)
}

// evaluate fans out across assets. One asset failing to produce a window or
// a vote never blocks the rest of the tick.
func (c *Controller) evaluate(ctx context.Context, assets []string, now time.Time) []domain.Signal {
	results := make([]domain.Signal, len(assets))

	g, _ := errgroup.WithContext(ctx)
	for i, assetID := range assets {
		i, assetID := i, assetID
		g.Go(func() error {
			if !c.windows.Ready(assetID) {
				c.logger.Debug("window not ready", slog.String("asset_id", assetID))
				return nil
			}
			win, err := c.windows.Window(assetID, now)
			if err != nil {
				c.logger.Warn("window assembly failed",
					slog.String("asset_id", assetID),
					slog.String("error", err.Error()),
				)
				return nil
			}
			results[i] = c.evaluator.Evaluate(win)
			return nil
		})
	}
	// Workers log and swallow their own failures.
	_ = g.Wait()

	signals := make([]domain.Signal, 0, len(results))
	for _, sig := range results {
		if sig.AssetID != "" {
			signals = append(signals, sig)
		}
	}
	return signals
}

func (c *Controller) resetLoop(ctx context.Context, sched cron.Schedule) error {
	for {
		next, err := sched.Next(time.Now().UTC())
		if err != nil {
			return fmt.Errorf("session: reset schedule: %w", err)
		}
		c.logger.Info("daily reset scheduled", slog.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			c.DailyReset(ctx)
		}
	}
}

// DailyReset rebases the risk ledger at the day boundary. When a lock
// manager is wired, only the instance holding the reset lock applies it.
func (c *Controller) DailyReset(ctx context.Context) {
	if c.locks != nil {
		unlock, err := c.locks.Acquire(ctx, resetLockKey, resetLockTTL)
		if err != nil {
			c.logger.Info("daily reset skipped",
				slog.String("error", err.Error()),
			)
			return
		}
		defer unlock()
	}

	before := c.ledger.Snapshot()
	c.ledger.DailyReset()
	after := c.ledger.Snapshot()

	if c.setState(StateRunning) == StateHalted {
		c.logger.Info("halt cleared by daily reset")
	}
	c.logger.Info("daily reset applied",
		slog.Float64("closed_day_pnl", before.DailyRealizedPnL),
		slog.Float64("new_start_balance", after.DailyStartBalance),
		slog.Float64("carried_exposure", after.OpenExposureTotal),
	)

	if c.resetHook != nil {
		c.resetHook(before, after)
	}
}

// Kill trips the kill switch: an operator-forced halt that stands until
// Resume or the next daily reset.
func (c *Controller) Kill() {
	c.ledger.ForceHalt(domain.HaltReasonKillSwitch)
	c.setState(StateHalted)
	c.logger.Warn("kill switch engaged")
}

// Resume lifts a kill-switch halt. Stop-loss and stop-gain halts cannot be
// resumed; they clear only at the daily reset.
func (c *Controller) Resume() error {
	if err := c.ledger.Resume(); err != nil {
		return err
	}
	c.setState(StateRunning)
	c.logger.Info("kill switch released")
	return nil
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastTick returns when the last completed tick ran, zero before the first.
func (c *Controller) LastTick() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTick
}

// SetAssetEnabled toggles one asset in or out of the tick. Unknown assets
// are an error; the universe itself is fixed at construction.
func (c *Controller) SetAssetEnabled(assetID string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.enabled[assetID]; !ok {
		return fmt.Errorf("session: asset %s: %w", assetID, domain.ErrNotFound)
	}
	c.enabled[assetID] = enabled
	c.logger.Info("asset toggled",
		slog.String("asset_id", assetID),
		slog.Bool("enabled", enabled),
	)
	return nil
}

// Assets returns the runtime status of every configured asset, sorted by ID.
func (c *Controller) Assets() []AssetStatus {
	c.mu.Lock()
	ids := make([]string, 0, len(c.enabled))
	for id := range c.enabled {
		ids = append(ids, id)
	}
	enabled := make(map[string]bool, len(c.enabled))
	for id, on := range c.enabled {
		enabled[id] = on
	}
	c.mu.Unlock()

	sort.Strings(ids)
	out := make([]AssetStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, AssetStatus{
			ID:          id,
			Enabled:     enabled[id],
			WindowReady: c.windows.Ready(id),
		})
	}
	return out
}

func (c *Controller) enabledAssets() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.enabled))
	for assetID, on := range c.enabled {
		if on {
			out = append(out, assetID)
		}
	}
	sort.Strings(out)
	return out
}

// setState swaps the lifecycle state and returns the previous one, so
// callers can log transitions exactly once.
func (c *Controller) setState(s State) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state
	c.state = s
	return prev
}
