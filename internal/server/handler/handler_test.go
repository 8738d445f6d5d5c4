package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/optionbot/internal/domain"
	"github.com/alanyoungcy/optionbot/internal/service"
	"github.com/alanyoungcy/optionbot/internal/session"
)

type fakeRisk struct {
	state domain.RiskState
}

func (f *fakeRisk) Snapshot() domain.RiskState { return f.state }

type fakeSession struct {
	state    session.State
	lastTick time.Time
}

func (f *fakeSession) State() session.State { return f.state }
func (f *fakeSession) LastTick() time.Time  { return f.lastTick }

type fakeOpen struct {
	n int
}

func (f *fakeOpen) OpenCount() int { return f.n }

type fakeSignals struct {
	signals []domain.Signal
}

func (f *fakeSignals) RecentSignals(limit int) []domain.Signal {
	if limit < len(f.signals) {
		return f.signals[:limit]
	}
	return f.signals
}

type fakeStats struct {
	stats domain.SessionStats
}

func (f *fakeStats) Snapshot() domain.SessionStats { return f.stats }

type fakeControl struct {
	killed    bool
	resumeErr error
	state     session.State
}

func (f *fakeControl) Kill() {
	f.killed = true
	f.state = session.StateHalted
}

func (f *fakeControl) Resume() error {
	if f.resumeErr != nil {
		return f.resumeErr
	}
	f.state = session.StateRunning
	return nil
}

func (f *fakeControl) State() session.State { return f.state }

type fakeSettings struct {
	current   service.SignalSettings
	updateErr error
}

func (f *fakeSettings) Current() service.SignalSettings { return f.current }

func (f *fakeSettings) Update(_ context.Context, tuning service.SignalSettings) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.current = tuning
	return nil
}

type fakeEvaluator struct {
	sig domain.Signal
}

func (f *fakeEvaluator) Evaluate(domain.MarketWindow) domain.Signal { return f.sig }

type fakeWindows struct {
	ready bool
	win   domain.MarketWindow
	err   error
}

func (f *fakeWindows) Ready(string) bool { return f.ready }

func (f *fakeWindows) Window(string, time.Time) (domain.MarketWindow, error) {
	if f.err != nil {
		return domain.MarketWindow{}, f.err
	}
	return f.win, nil
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetStatusAssemblesSnapshot(t *testing.T) {
	risk := &fakeRisk{state: domain.RiskState{
		BankBalance:       960,
		DailyStartBalance: 1000,
		DailyRealizedPnL:  -40,
		OpenExposureTotal: 25,
	}}
	tick := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	sess := &fakeSession{state: session.StateRunning, lastTick: tick}
	signals := &fakeSignals{signals: []domain.Signal{
		{AssetID: "EURUSD", Direction: domain.DirectionUp, Confidence: 0.8, GeneratedAt: tick},
	}}
	stats := &fakeStats{stats: domain.SessionStats{Trades: 5, Wins: 3, Losses: 2, NetPnL: 12.5}}

	h := NewStatusHandler(risk, sess, &fakeOpen{n: 2}, signals, stats, "trade", "demo")

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "trade", body["mode"])
	assert.Equal(t, "demo", body["account_type"])
	assert.Equal(t, "running", body["session_state"])
	assert.Equal(t, 960.0, body["bank_balance"])
	assert.Equal(t, -40.0, body["daily_pnl"])
	assert.Equal(t, 25.0, body["open_exposure"])
	assert.Equal(t, 2.0, body["open_positions"])
	assert.Equal(t, false, body["trading_halted"])
	assert.Len(t, body["recent_signals"], 1)
}

func TestGetStatusServerOnlyMode(t *testing.T) {
	risk := &fakeRisk{state: domain.RiskState{BankBalance: 1000, DailyStartBalance: 1000}}
	h := NewStatusHandler(risk, nil, nil, nil, nil, "server", "demo")

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "idle", body["session_state"])
	assert.Equal(t, 0.0, body["open_positions"])
	assert.Empty(t, body["recent_signals"])
}

func TestGetStatusReportsHalt(t *testing.T) {
	risk := &fakeRisk{state: domain.RiskState{
		BankBalance:       600,
		DailyStartBalance: 1000,
		DailyRealizedPnL:  -400,
		TradingHalted:     true,
		HaltReason:        domain.HaltReasonStopLoss,
	}}
	h := NewStatusHandler(risk, &fakeSession{state: session.StateHalted}, nil, nil, nil, "trade", "real")

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["trading_halted"])
	assert.Equal(t, "stop_loss", body["halt_reason"])
	assert.Equal(t, "halted", body["session_state"])
}

func TestKillSwitchEndpoint(t *testing.T) {
	control := &fakeControl{state: session.StateRunning}
	h := NewControlHandler(control, testLogger())

	rec := httptest.NewRecorder()
	h.Kill(rec, httptest.NewRequest(http.MethodPost, "/api/control/kill", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, control.killed)
	assert.Equal(t, "halted", decodeBody(t, rec)["session_state"])
}

func TestResumeClearsKillSwitch(t *testing.T) {
	control := &fakeControl{state: session.StateHalted}
	h := NewControlHandler(control, testLogger())

	rec := httptest.NewRecorder()
	h.Resume(rec, httptest.NewRequest(http.MethodPost, "/api/control/resume", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", decodeBody(t, rec)["session_state"])
}

func TestResumeRefusedForRiskHalts(t *testing.T) {
	control := &fakeControl{
		state:     session.StateHalted,
		resumeErr: fmt.Errorf("risk: resume: halt reason %q clears only on daily reset: %w", "stop_loss", domain.ErrInvalidTransition),
	}
	h := NewControlHandler(control, testLogger())

	rec := httptest.NewRecorder()
	h.Resume(rec, httptest.NewRequest(http.MethodPost, "/api/control/resume", nil))

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "daily reset")
}

func TestUpdateSettingsApplies(t *testing.T) {
	settings := &fakeSettings{current: service.SignalSettings{
		Weights:             map[string]float64{"rsi": 1},
		ConfidenceThreshold: 0.6,
	}}
	h := NewSettingsHandler(settings, testLogger())

	req := httptest.NewRequest(http.MethodPut, "/api/settings",
		strings.NewReader(`{"weights":{"rsi":2,"macd":1},"confidence_threshold":0.7}`))
	rec := httptest.NewRecorder()
	h.UpdateSettings(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, 0.7, body["confidence_threshold"])
	assert.Equal(t, 0.7, settings.current.ConfidenceThreshold)
}

func TestUpdateSettingsValidationError(t *testing.T) {
	settings := &fakeSettings{
		updateErr: fmt.Errorf("%w: confidence threshold 1.5 out of range [0,1]", service.ErrInvalidSettings),
	}
	h := NewSettingsHandler(settings, testLogger())

	req := httptest.NewRequest(http.MethodPut, "/api/settings",
		strings.NewReader(`{"weights":{"rsi":1},"confidence_threshold":1.5}`))
	rec := httptest.NewRecorder()
	h.UpdateSettings(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "out of range")
}

func TestUpdateSettingsRejectsBadJSON(t *testing.T) {
	h := NewSettingsHandler(&fakeSettings{}, testLogger())

	req := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.UpdateSettings(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeWindowNotReady(t *testing.T) {
	h := NewSignalHandler(&fakeSignals{}, &fakeEvaluator{}, &fakeWindows{ready: false}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/analyze/EURUSD", nil)
	req.SetPathValue("asset", "EURUSD")
	rec := httptest.NewRecorder()
	h.Analyze(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "not ready")
}

func TestAnalyzeUnknownAsset(t *testing.T) {
	windows := &fakeWindows{ready: true, err: fmt.Errorf("feed: window: %w", domain.ErrNotFound)}
	h := NewSignalHandler(&fakeSignals{}, &fakeEvaluator{}, windows, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/analyze/NOPE", nil)
	req.SetPathValue("asset", "NOPE")
	rec := httptest.NewRecorder()
	h.Analyze(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyzeEvaluatesWindow(t *testing.T) {
	win := domain.MarketWindow{
		AssetID:  "EURUSD",
		Candles:  make([]domain.Candle, 30),
		RSI:      28.5,
		MACDHist: 0.0004,
	}
	sig := domain.Signal{AssetID: "EURUSD", Direction: domain.DirectionUp, Confidence: 0.75}
	h := NewSignalHandler(&fakeSignals{}, &fakeEvaluator{sig: sig}, &fakeWindows{ready: true, win: win}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/analyze/EURUSD", nil)
	req.SetPathValue("asset", "EURUSD")
	rec := httptest.NewRecorder()
	h.Analyze(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, 28.5, body["rsi"])
	assert.Equal(t, 30.0, body["bars"])
	signal, ok := body["signal"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "up", signal["direction"])
	assert.Equal(t, 0.75, signal["confidence"])
}

func TestAnalyzeUnavailableWithoutEvaluator(t *testing.T) {
	h := NewSignalHandler(&fakeSignals{}, nil, nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/analyze/EURUSD", nil)
	req.SetPathValue("asset", "EURUSD")
	rec := httptest.NewRecorder()
	h.Analyze(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthReportsDegradedDependency(t *testing.T) {
	h := NewHealthHandler(testLogger())
	h.Register("postgres", &fakePinger{})
	h.Register("redis", &fakePinger{err: errors.New("connection refused")})

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	// Still 200 so load balancers keep routing to the dashboard.
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "degraded", body["status"])
	deps, ok := body["dependencies"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", deps["postgres"])
	assert.Contains(t, deps["redis"], "connection refused")
}

func TestHealthAllDependenciesOK(t *testing.T) {
	h := NewHealthHandler(testLogger())
	h.Register("postgres", &fakePinger{})

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

type fakeAssets struct {
	statuses []session.AssetStatus
	toggled  map[string]bool
}

func (f *fakeAssets) Assets() []session.AssetStatus { return f.statuses }

func (f *fakeAssets) SetAssetEnabled(assetID string, enabled bool) error {
	for _, st := range f.statuses {
		if st.ID == assetID {
			if f.toggled == nil {
				f.toggled = make(map[string]bool)
			}
			f.toggled[assetID] = enabled
			return nil
		}
	}
	return domain.ErrNotFound
}

type fakeQuotes struct {
	prices map[string]float64
	at     time.Time
}

func (f *fakeQuotes) GetQuote(_ context.Context, assetID string) (float64, time.Time, error) {
	price, ok := f.prices[assetID]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return price, f.at, nil
}

func TestListAssetsMergesQuotes(t *testing.T) {
	assets := &fakeAssets{statuses: []session.AssetStatus{
		{ID: "EURUSD", Enabled: true, WindowReady: true},
		{ID: "GBPUSD", Enabled: false, WindowReady: false},
	}}
	quotes := &fakeQuotes{
		prices: map[string]float64{"EURUSD": 1.0876},
		at:     time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	}
	h := NewAssetHandler(assets, quotes, testLogger())

	rec := httptest.NewRecorder()
	h.ListAssets(rec, httptest.NewRequest(http.MethodGet, "/api/assets", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	list, ok := decodeBody(t, rec)["assets"].([]any)
	require.True(t, ok)
	require.Len(t, list, 2)

	first := list[0].(map[string]any)
	assert.Equal(t, "EURUSD", first["id"])
	assert.Equal(t, true, first["enabled"])
	assert.Equal(t, 1.0876, first["quote"])
	assert.NotEmpty(t, first["quoted_at"])

	// No cached quote for the second asset: the price fields are omitted.
	second := list[1].(map[string]any)
	assert.Equal(t, "GBPUSD", second["id"])
	assert.NotContains(t, second, "quote")
}

func TestSetAssetEnabled(t *testing.T) {
	assets := &fakeAssets{statuses: []session.AssetStatus{{ID: "EURUSD", Enabled: true}}}
	h := NewAssetHandler(assets, nil, testLogger())

	req := httptest.NewRequest(http.MethodPut, "/api/assets/EURUSD/enabled",
		strings.NewReader(`{"enabled": false}`))
	req.SetPathValue("id", "EURUSD")
	rec := httptest.NewRecorder()
	h.SetEnabled(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, assets.toggled["EURUSD"])
}

func TestSetAssetEnabledUnknown(t *testing.T) {
	h := NewAssetHandler(&fakeAssets{}, nil, testLogger())

	req := httptest.NewRequest(http.MethodPut, "/api/assets/NOPE/enabled",
		strings.NewReader(`{"enabled": true}`))
	req.SetPathValue("id", "NOPE")
	rec := httptest.NewRecorder()
	h.SetEnabled(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
