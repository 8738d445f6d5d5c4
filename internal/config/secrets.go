package config

import (
	"maps"
	"slices"
)

const redacted = "***"

// RedactedConfig returns a copy of cfg that is safe to log: every credential
// field is masked and shared slices and maps are cloned, so the copy can be
// marshalled or mutated without touching the original.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	for _, secret := range []*string{
		&out.Broker.Password,
		&out.Broker.SecretPassphrase,
		&out.Broker.ApiKey,
		&out.Broker.ApiSecret,
		&out.Postgres.DSN,
		&out.Postgres.Password,
		&out.Redis.Password,
		&out.Archive.AccessKey,
		&out.Archive.SecretKey,
		&out.Server.APIKey,
		&out.Notify.TelegramToken,
		&out.Notify.DiscordWebhookURL,
	} {
		if *secret != "" {
			*secret = redacted
		}
	}

	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Session.Assets = slices.Clone(cfg.Session.Assets)
	out.Signals.Weights = maps.Clone(cfg.Signals.Weights)

	return out
}
