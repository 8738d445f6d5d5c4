package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/optionbot/internal/domain"
	"github.com/alanyoungcy/optionbot/internal/session"
)

// AssetAdmin is the per-asset toggle surface of the session controller.
type AssetAdmin interface {
	Assets() []session.AssetStatus
	SetAssetEnabled(assetID string, enabled bool) error
}

// QuoteSource supplies the latest cached quote per asset. May be nil, in
// which case the asset list carries no prices.
type QuoteSource interface {
	GetQuote(ctx context.Context, assetID string) (float64, time.Time, error)
}

// AssetHandler serves the per-asset list and enable toggle.
type AssetHandler struct {
	assets AssetAdmin
	quotes QuoteSource
	logger *slog.Logger
}

// NewAssetHandler creates an AssetHandler.
func NewAssetHandler(assets AssetAdmin, quotes QuoteSource, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{assets: assets, quotes: quotes, logger: logger}
}

type assetView struct {
	ID          string     `json:"id"`
	Enabled     bool       `json:"enabled"`
	WindowReady bool       `json:"window_ready"`
	Quote       float64    `json:"quote,omitempty"`
	QuotedAt    *time.Time `json:"quoted_at,omitempty"`
}

func toAssetView(a domain.Asset, windowReady bool) assetView {
	v := assetView{
		ID:          a.ID,
		Enabled:     a.Enabled,
		WindowReady: windowReady,
		Quote:       a.Quote,
	}
	if !a.UpdatedAt.IsZero() {
		at := a.UpdatedAt
		v.QuotedAt = &at
	}
	return v
}

type listAssetsResponse struct {
	Assets []assetView `json:"assets"`
}

// ListAssets returns every configured asset with its enabled flag, window
// readiness, and the latest cached quote.
// GET /api/assets
func (h *AssetHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	statuses := h.assets.Assets()

	views := make([]assetView, 0, len(statuses))
	for _, st := range statuses {
		asset := domain.Asset{ID: st.ID, Enabled: st.Enabled}
		if h.quotes != nil {
			price, ts, err := h.quotes.GetQuote(r.Context(), st.ID)
			if err == nil {
				asset.Quote = price
				asset.UpdatedAt = ts
			} else if !errors.Is(err, domain.ErrNotFound) {
				h.logger.WarnContext(r.Context(), "handler: quote lookup failed",
					slog.String("asset_id", st.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		views = append(views, toAssetView(asset, st.WindowReady))
	}

	writeJSON(w, http.StatusOK, listAssetsResponse{Assets: views})
}

type setEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// SetEnabled flips one asset's participation in future ticks. Open
// positions on a disabled asset still settle normally.
// PUT /api/assets/{id}/enabled
func (h *AssetHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	assetID := r.PathValue("id")
	if assetID == "" {
		writeError(w, http.StatusBadRequest, "asset id required")
		return
	}

	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.assets.SetAssetEnabled(assetID, req.Enabled); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown asset")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: set asset enabled failed",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update asset")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"asset_id": assetID,
		"enabled":  req.Enabled,
	})
}
