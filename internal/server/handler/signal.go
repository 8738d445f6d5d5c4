package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// Evaluator turns a market window into a signal.
type Evaluator interface {
	Evaluate(win domain.MarketWindow) domain.Signal
}

// WindowReader provides the current market window for an asset.
type WindowReader interface {
	Ready(assetID string) bool
	Window(assetID string, at time.Time) (domain.MarketWindow, error)
}

// SignalHandler serves signal history and on-demand analysis.
type SignalHandler struct {
	signals   SignalSource
	evaluator Evaluator
	windows   WindowReader
	logger    *slog.Logger
}

// NewSignalHandler creates a SignalHandler. evaluator and windows may be
// nil in server-only mode, which disables the analyze endpoint.
func NewSignalHandler(signals SignalSource, evaluator Evaluator, windows WindowReader, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{
		signals:   signals,
		evaluator: evaluator,
		windows:   windows,
		logger:    logger,
	}
}

type listSignalsResponse struct {
	Signals []signalView `json:"signals"`
}

// ListRecent returns the most recent signals, newest first.
// GET /api/signals/recent?limit=
func (h *SignalHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20, 200)
	writeJSON(w, http.StatusOK, listSignalsResponse{
		Signals: toSignalViews(h.signals.RecentSignals(limit)),
	})
}

type analyzeResponse struct {
	Signal     signalView `json:"signal"`
	RSI        float64    `json:"rsi"`
	MACDLine   float64    `json:"macd_line"`
	MACDSignal float64    `json:"macd_signal"`
	MACDHist   float64    `json:"macd_hist"`
	NewsFlag   string     `json:"news_flag,omitempty"`
	Bars       int        `json:"bars"`
}

// Analyze runs one evaluation over the asset's current window without
// placing anything. Useful for eyeballing what the aggregator sees.
// GET /api/analyze/{asset}
func (h *SignalHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	if h.evaluator == nil || h.windows == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis unavailable in this mode")
		return
	}

	assetID := r.PathValue("asset")
	if assetID == "" {
		writeError(w, http.StatusBadRequest, "asset path parameter required")
		return
	}

	if !h.windows.Ready(assetID) {
		writeError(w, http.StatusConflict, "window not ready: not enough bars yet")
		return
	}

	win, err := h.windows.Window(assetID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown asset")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: analyze window failed",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to build window")
		return
	}

	sig := h.evaluator.Evaluate(win)
	writeJSON(w, http.StatusOK, analyzeResponse{
		Signal:     toSignalView(sig),
		RSI:        win.RSI,
		MACDLine:   win.MACDLine,
		MACDSignal: win.MACDSignal,
		MACDHist:   win.MACDHist,
		NewsFlag:   string(win.NewsFlag),
		Bars:       len(win.Candles),
	})
}
