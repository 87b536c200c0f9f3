// Package config loads the process-wide environment defaults each cmd/
// entrypoint falls back to when a CLI flag is not given. Grounded on the
// teacher's config.Load (godotenv + getEnvDefault), generalized from the
// Kalshi credential/series-ticker settings to this feed's WS endpoint and
// default output directory.
package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config carries environment-sourced defaults. Every field here is a
// fallback: a CLI flag, when given, always wins.
type Config struct {
	// WSURL is the Kraken WebSocket v2 endpoint, overridable for testing
	// against a local mock server.
	WSURL string
	// OutputDir prefixes a relative -o/--output path when set.
	OutputDir string
}

const defaultWSURL = "wss://ws.kraken.com/v2"

// Load reads a .env file if present (silently ignored if absent, matching
// godotenv's conventional use as an optional local override) and returns
// the resolved defaults.
func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		WSURL:     getEnvDefault("KRAKEN_WS_URL", defaultWSURL),
		OutputDir: os.Getenv("KRAKEN_OUTPUT_DIR"),
	}
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
