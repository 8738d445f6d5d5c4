package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// PositionReader is the slice of the position service the handler needs.
type PositionReader interface {
	OpenPositions(ctx context.Context) ([]domain.Position, error)
	History(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error)
}

// PositionHandler serves position endpoints.
type PositionHandler struct {
	positions PositionReader
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionReader, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{positions: positions, logger: logger}
}

type listPositionsResponse struct {
	Positions []positionView `json:"positions"`
}

// ListOpen returns every pending or open position.
// GET /api/positions
func (h *PositionHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.OpenPositions(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list open positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: toPositionViews(positions)})
}

// ListHistory returns settled positions, newest first, with pagination and
// optional since/until bounds.
// GET /api/positions/history?limit=&offset=&since=&until=
func (h *PositionHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.History(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list position history failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list position history")
		return
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: toPositionViews(positions)})
}
