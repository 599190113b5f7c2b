package config

// loader.go - configuration loading from the environment.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. .env file  (this file, never overrides the real environment)
//   4. Defaults   (defaults.go)

import (
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"gosock/internal/errors"
)

// EnvPrefix is prepended to every field's env tag.
const EnvPrefix = "GOSOCK_"

// Load overlays the .env file and GOSOCK_* environment variables onto
// cfg.  Unset variables leave the existing value alone, so Load should
// run on a Default() config and BEFORE CLI flag parsing.
//
// The .env file is GOSOCK_ENV_FILE when set, otherwise ./.env; a
// missing default file is not an error.
func Load(cfg *Config) error {
	path, explicit := os.LookupEnv(EnvPrefix + "ENV_FILE")
	if !explicit {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return &errors.ConfigError{
				Field:   "env-file",
				Value:   path,
				Message: err.Error(),
			}
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return &errors.ConfigError{
			Field:   "env",
			Message: err.Error(),
			Hint:    "durations take Go syntax such as 200ms or 1m",
		}
	}
	return nil
}
