package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/optionbot/internal/service"
)

// SettingsAdmin is the runtime-tuning surface of the settings service.
type SettingsAdmin interface {
	Current() service.SignalSettings
	Update(ctx context.Context, tuning service.SignalSettings) error
}

// SettingsHandler serves the signal tuning endpoints.
type SettingsHandler struct {
	settings SettingsAdmin
	logger   *slog.Logger
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(settings SettingsAdmin, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, logger: logger}
}

// GetSettings returns the live indicator weights and confidence threshold.
// GET /api/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Current())
}

// UpdateSettings validates, applies, and persists new signal tuning. The
// aggregator picks it up on the next tick.
// PUT /api/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var tuning service.SignalSettings
	if err := json.NewDecoder(r.Body).Decode(&tuning); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.settings.Update(r.Context(), tuning); err != nil {
		if errors.Is(err, service.ErrInvalidSettings) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: update settings failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}

	writeJSON(w, http.StatusOK, h.settings.Current())
}
