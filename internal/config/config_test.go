package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesLayers(t *testing.T) {
	path := writeConfigFile(t, `
mode = "server"

[broker]
email = "bot@example.com"

[risk]
bank_seed = 2500.0
`)
	t.Setenv("OPTBOT_RISK_BANK_SEED", "5000")
	t.Setenv("OPTBOT_BROKER_PASSWORD", "hunter2")

	cfg, err := Load(path)
	require.NoError(t, err)

	// File over defaults.
	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, "bot@example.com", cfg.Broker.Email)

	// Environment over file.
	assert.Equal(t, 5000.0, cfg.Risk.BankSeed)
	assert.Equal(t, "hunter2", cfg.Broker.Password)

	// Untouched defaults survive.
	assert.Equal(t, 14, cfg.Signals.RSIPeriod)
	assert.Equal(t, time.Minute, cfg.Session.TickInterval.Duration)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestEnvOverrideSkipsMalformedValues(t *testing.T) {
	t.Setenv("OPTBOT_REDIS_POOL_SIZE", "not-a-number")
	t.Setenv("OPTBOT_SESSION_ASSETS", " , ,")
	t.Setenv("OPTBOT_BROKER_ORDER_TIMEOUT", "fortnight")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, 20, cfg.Redis.PoolSize)
	assert.Equal(t, Defaults().Session.Assets, cfg.Session.Assets)
	assert.Equal(t, 10*time.Second, cfg.Broker.OrderTimeout.Duration)
}

func TestEnvOverrideSplitsLists(t *testing.T) {
	t.Setenv("OPTBOT_SESSION_ASSETS", "EURUSD, GBPUSD ,USDJPY")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, []string{"EURUSD", "GBPUSD", "USDJPY"}, cfg.Session.Assets)
}

func TestValidateTradeModeNeedsCredentials(t *testing.T) {
	cfg := Defaults()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker: email")
	assert.Contains(t, err.Error(), "password or encrypted_secret_path")

	cfg.Broker.Email = "bot@example.com"
	cfg.Broker.Password = "hunter2"
	assert.NoError(t, cfg.Validate())
}

func TestValidateServerModeSkipsBrokerCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"

	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "juggle"
	cfg.LogLevel = "loud"
	cfg.Risk.MaxExposureFrac = 1.5
	cfg.Signals.MACDFast = 30 // >= slow

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "juggle"`)
	assert.Contains(t, err.Error(), `unknown log_level "loud"`)
	assert.Contains(t, err.Error(), "max_exposure_frac")
	assert.Contains(t, err.Error(), "macd_fast must be less than macd_slow")
}

func TestValidateArchiveMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"
	cfg.Archive.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive: bucket")
}

func TestValidateWindowSizeCoversMACD(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	cfg.Signals.WindowSize = 20

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window_size 20 is too small")
}
