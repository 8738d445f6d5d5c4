package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/optionbot/internal/domain"
	"github.com/alanyoungcy/optionbot/internal/session"
)

// SessionControl is the operator control surface of the session controller.
type SessionControl interface {
	Kill()
	Resume() error
	State() session.State
}

// ControlHandler serves the kill switch and resume endpoints.
type ControlHandler struct {
	control SessionControl
	logger  *slog.Logger
}

// NewControlHandler creates a ControlHandler.
func NewControlHandler(control SessionControl, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{control: control, logger: logger}
}

// Kill force-halts trading until resumed or the next daily reset. Open
// positions keep settling.
// POST /api/control/kill
func (h *ControlHandler) Kill(w http.ResponseWriter, r *http.Request) {
	h.control.Kill()
	h.logger.WarnContext(r.Context(), "kill switch engaged via api")
	writeJSON(w, http.StatusOK, map[string]string{
		"session_state": string(h.control.State()),
	})
}

// Resume clears a kill-switch halt. Stop-loss and stop-gain halts refuse
// with 409; they only clear on the daily reset.
// POST /api/control/resume
func (h *ControlHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.control.Resume(); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, "halt clears only on daily reset")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: resume failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to resume")
		return
	}

	h.logger.InfoContext(r.Context(), "trading resumed via api")
	writeJSON(w, http.StatusOK, map[string]string{
		"session_state": string(h.control.State()),
	})
}
