package main

import (
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/getsentry/pe2pdburl/internal/symbolurl"
)

type ServiceConfig struct {
	Environment string `env:"SENTRY_ENVIRONMENT" env-default:"development"`
	SentryDSN   string `env:"SENTRY_DSN"`

	SymbolServerURL string `env:"SYMBOL_SERVER_URL"`

	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"console"`

	// ManifestBucket is a gocloud blob URL (file://, mem://, gs://). No
	// manifest is written when it's empty.
	ManifestBucket string `env:"MANIFEST_BUCKET"`
	ManifestName   string `env:"MANIFEST_NAME" env-default:"debug_meta.json.lz4"`

	Workers int `env:"WORKERS" env-default:"4"`
}

func readConfig() (ServiceConfig, error) {
	var cfg ServiceConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return ServiceConfig{}, err
	}
	if cfg.SymbolServerURL == "" {
		cfg.SymbolServerURL = symbolurl.DefaultServerURL
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return cfg, nil
}
