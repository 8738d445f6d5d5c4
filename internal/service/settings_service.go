package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// settingsKeySignals is the settings-store key for the signal tuning blob.
const settingsKeySignals = "signals"

// ErrInvalidSettings marks a tuning update that failed validation. The
// dashboard maps it to a 400.
var ErrInvalidSettings = errors.New("invalid settings")

// SignalTuning is the runtime-tunable surface of the signal aggregator.
type SignalTuning interface {
	SetWeights(weights map[string]float64)
	SetThreshold(threshold float64)
	Weights() map[string]float64
	Threshold() float64
}

// SignalSettings is the dashboard-editable signal configuration.
type SignalSettings struct {
	Weights             map[string]float64 `json:"weights"`
	ConfidenceThreshold float64            `json:"confidence_threshold"`
}

// SettingsService bridges persisted settings and the live aggregator.
// Config files supply the defaults; rows in the settings store override
// them and survive restarts.
type SettingsService struct {
	store  domain.SettingsStore
	tuning SignalTuning
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewSettingsService creates a SettingsService.
func NewSettingsService(
	store domain.SettingsStore,
	tuning SignalTuning,
	audit domain.AuditStore,
	logger *slog.Logger,
) *SettingsService {
	return &SettingsService{
		store:  store,
		tuning: tuning,
		audit:  audit,
		logger: logger,
	}
}

// Load applies the persisted signal settings, if any, over the config
// defaults already in the aggregator. A missing row is not an error.
func (s *SettingsService) Load(ctx context.Context) error {
	setting, err := s.store.Get(ctx, settingsKeySignals)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("settings_service: load: %w", err)
	}

	var tuning SignalSettings
	raw, err := json.Marshal(setting.Value)
	if err != nil {
		return fmt.Errorf("settings_service: encode stored settings: %w", err)
	}
	if err := json.Unmarshal(raw, &tuning); err != nil {
		return fmt.Errorf("settings_service: decode stored settings: %w", err)
	}
	if err := validateSignalSettings(tuning); err != nil {
		return fmt.Errorf("settings_service: stored settings invalid: %w", err)
	}

	if len(tuning.Weights) > 0 {
		s.tuning.SetWeights(tuning.Weights)
	}
	if tuning.ConfidenceThreshold > 0 {
		s.tuning.SetThreshold(tuning.ConfidenceThreshold)
	}

	s.logger.InfoContext(ctx, "settings_service: persisted signal settings applied",
		slog.Int("weights", len(tuning.Weights)),
		slog.Float64("confidence_threshold", tuning.ConfidenceThreshold),
	)
	return nil
}

// Current returns the live signal settings.
func (s *SettingsService) Current() SignalSettings {
	return SignalSettings{
		Weights:             s.tuning.Weights(),
		ConfidenceThreshold: s.tuning.Threshold(),
	}
}

// Update validates, applies, and persists new signal settings. They take
// effect on the next tick; in-flight evaluations are untouched.
func (s *SettingsService) Update(ctx context.Context, tuning SignalSettings) error {
	if err := validateSignalSettings(tuning); err != nil {
		return fmt.Errorf("settings_service: %w", err)
	}

	s.tuning.SetWeights(tuning.Weights)
	s.tuning.SetThreshold(tuning.ConfidenceThreshold)

	value, err := toSettingValue(tuning)
	if err != nil {
		return fmt.Errorf("settings_service: encode settings: %w", err)
	}
	if err := s.store.Upsert(ctx, domain.Setting{
		Key:       settingsKeySignals,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("settings_service: persist settings: %w", err)
	}

	if auditErr := s.audit.Log(ctx, "settings_updated", map[string]any{
		"weights":              tuning.Weights,
		"confidence_threshold": tuning.ConfidenceThreshold,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "settings_service: audit log failed",
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "settings_service: signal settings updated",
		slog.Int("weights", len(tuning.Weights)),
		slog.Float64("confidence_threshold", tuning.ConfidenceThreshold),
	)
	return nil
}

func validateSignalSettings(tuning SignalSettings) error {
	if tuning.ConfidenceThreshold < 0 || tuning.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence threshold %v out of range [0,1]", ErrInvalidSettings, tuning.ConfidenceThreshold)
	}
	for name, weight := range tuning.Weights {
		if weight < 0 {
			return fmt.Errorf("%w: indicator %q has negative weight %v", ErrInvalidSettings, name, weight)
		}
	}
	return nil
}

// toSettingValue round-trips through JSON so the stored shape matches what
// the JSONB column and Load expect.
func toSettingValue(tuning SignalSettings) (map[string]any, error) {
	raw, err := json.Marshal(tuning)
	if err != nil {
		return nil, err
	}
	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	return value, nil
}
