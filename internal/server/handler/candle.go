package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// CandleReader serves recent bars for charting, memory-first with a cache
// fallback.
type CandleReader interface {
	RecentCandles(ctx context.Context, assetID string, limit int) ([]domain.Candle, error)
}

// CandleHandler serves the candle history endpoint.
type CandleHandler struct {
	candles CandleReader
	logger  *slog.Logger
}

// NewCandleHandler creates a CandleHandler.
func NewCandleHandler(candles CandleReader, logger *slog.Logger) *CandleHandler {
	return &CandleHandler{candles: candles, logger: logger}
}

type listCandlesResponse struct {
	AssetID string       `json:"asset_id"`
	Candles []candleView `json:"candles"`
}

// ListCandles returns recent bars for one asset, oldest first.
// GET /api/candles/{asset}?limit=
func (h *CandleHandler) ListCandles(w http.ResponseWriter, r *http.Request) {
	assetID := r.PathValue("asset")
	if assetID == "" {
		writeError(w, http.StatusBadRequest, "asset path parameter required")
		return
	}

	limit := parseLimit(r, 60, 500)
	candles, err := h.candles.RecentCandles(r.Context(), assetID, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list candles failed",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list candles")
		return
	}

	writeJSON(w, http.StatusOK, listCandlesResponse{
		AssetID: assetID,
		Candles: toCandleViews(candles),
	})
}
