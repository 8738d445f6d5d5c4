package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/optionbot/internal/domain"
	"github.com/alanyoungcy/optionbot/internal/session"
)

// RiskSource exposes the ledger snapshot.
type RiskSource interface {
	Snapshot() domain.RiskState
}

// SessionSource exposes the controller's run state.
type SessionSource interface {
	State() session.State
	LastTick() time.Time
}

// OpenCounter exposes the coordinator's live position count.
type OpenCounter interface {
	OpenCount() int
}

// SignalSource exposes recently produced signals, newest first.
type SignalSource interface {
	RecentSignals(limit int) []domain.Signal
}

// StatsSource exposes the session win/loss tallies.
type StatsSource interface {
	Snapshot() domain.SessionStats
}

// StatusHandler assembles the dashboard's one-call engine snapshot.
type StatusHandler struct {
	risk        RiskSource
	sess        SessionSource
	open        OpenCounter
	signals     SignalSource
	stats       StatsSource
	mode        string
	accountType string
	startedAt   time.Time
}

// NewStatusHandler creates a StatusHandler. Every source may be nil in
// server-only mode; the corresponding fields fall back to zero values.
func NewStatusHandler(risk RiskSource, sess SessionSource, open OpenCounter, signals SignalSource, stats StatsSource, mode, accountType string) *StatusHandler {
	return &StatusHandler{
		risk:        risk,
		sess:        sess,
		open:        open,
		signals:     signals,
		stats:       stats,
		mode:        mode,
		accountType: accountType,
		startedAt:   time.Now().UTC(),
	}
}

type statusResponse struct {
	Mode              string       `json:"mode"`
	AccountType       string       `json:"account_type"`
	SessionState      string       `json:"session_state"`
	UptimeSeconds     int64        `json:"uptime_seconds"`
	LastTick          *time.Time   `json:"last_tick,omitempty"`
	BankBalance       float64      `json:"bank_balance"`
	DailyStartBalance float64      `json:"daily_start_balance"`
	DailyPnL          float64      `json:"daily_pnl"`
	OpenExposure      float64      `json:"open_exposure"`
	TradingHalted     bool         `json:"trading_halted"`
	HaltReason        string       `json:"halt_reason,omitempty"`
	OpenPositions     int          `json:"open_positions"`
	RecentSignals     []signalView `json:"recent_signals"`
	Stats             statsView    `json:"stats"`
}

// GetStatus returns the full engine snapshot: risk state, session state,
// open position count, recent signals, and win/loss tallies.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Mode:          h.mode,
		AccountType:   h.accountType,
		SessionState:  "idle",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		RecentSignals: []signalView{},
	}

	if h.risk != nil {
		state := h.risk.Snapshot()
		resp.BankBalance = state.BankBalance
		resp.DailyStartBalance = state.DailyStartBalance
		resp.DailyPnL = state.DailyRealizedPnL
		resp.OpenExposure = state.OpenExposureTotal
		resp.TradingHalted = state.TradingHalted
		resp.HaltReason = string(state.HaltReason)
	}

	if h.sess != nil {
		resp.SessionState = string(h.sess.State())
		if last := h.sess.LastTick(); !last.IsZero() {
			resp.LastTick = &last
		}
	}
	if h.open != nil {
		resp.OpenPositions = h.open.OpenCount()
	}
	if h.signals != nil {
		resp.RecentSignals = toSignalViews(h.signals.RecentSignals(10))
	}
	if h.stats != nil {
		resp.Stats = toStatsView(h.stats.Snapshot())
	}

	writeJSON(w, http.StatusOK, resp)
}
