package config

import "github.com/caarlos0/env/v11"

// parseEnv overlays AUTHCORE_* environment variables onto the Config using
// the struct's env tags. Unset variables leave the current values alone.
func parseEnv(config *Config) error {
	return env.Parse(config)
}
