package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Broker.Password = "hunter2"
	cfg.Postgres.Password = "pgpass"
	cfg.Server.APIKey = "key-123"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Broker.Password)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Server.APIKey)

	// The original keeps its values.
	assert.Equal(t, "hunter2", cfg.Broker.Password)
	assert.Equal(t, "pgpass", cfg.Postgres.Password)
}

func TestRedactedConfigLeavesEmptySecretsEmpty(t *testing.T) {
	cfg := Defaults()
	cfg.Broker.Password = ""

	red := RedactedConfig(&cfg)

	assert.Empty(t, red.Broker.Password)
}

func TestRedactedConfigClonesSharedState(t *testing.T) {
	cfg := Defaults()
	cfg.Session.Assets = []string{"EURUSD"}
	cfg.Signals.Weights = map[string]float64{"rsi": 1}

	red := RedactedConfig(&cfg)
	red.Session.Assets[0] = "GBPUSD"
	red.Signals.Weights["rsi"] = 9

	assert.Equal(t, "EURUSD", cfg.Session.Assets[0])
	assert.Equal(t, 1.0, cfg.Signals.Weights["rsi"])
}
