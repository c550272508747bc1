// Package config loads per-service typed settings with viper, following
// the same env-first / ".env" fallback / validator.v10 pattern as
// api/integration-api/config in the teacher repo.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/sentinel-voice/core/internal/apperr"
)

// Bus is the shared message-bus configuration block.
type Bus struct {
	URL string `mapstructure:"url" validate:"required"`
}

// Postgres is the shared relational-store configuration block.
type Postgres struct {
	DSN                string `mapstructure:"dsn" validate:"required"`
	MaxOpenConnections  int    `mapstructure:"max_open_connections"`
	MaxIdleConnections  int    `mapstructure:"max_idle_connections"`
	MigrationsPath      string `mapstructure:"migrations_path"`
}

// Redis is the shared transcript-cache configuration block.
type Redis struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Logging is the shared logging configuration block.
type Logging struct {
	Level    string `mapstructure:"level"`
	FilePath string `mapstructure:"file_path"`
}

// Load reads configuration for `service` into `dest` (a pointer to a
// struct embedding mapstructure tags), applying `setDefaults` first and
// validating the decoded result.
//
// Unknown required fields missing from the environment produce a fatal
// apperr.Config error — callers should exit(1) on failure, matching the
// Exit Codes table in the spec.
func Load(service string, dest interface{}, setDefaults func(v *viper.Viper)) error {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	v.SetEnvPrefix(service)
	v.AddConfigPath(".")
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	if path := os.Getenv("ENV_PATH"); path != "" {
		v.SetConfigFile(path)
	}

	if setDefaults != nil {
		setDefaults(v)
	}

	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		// Absence of a .env file is fine; everything else is surfaced
		// through validation below.
		_ = err
	}

	if err := v.Unmarshal(dest); err != nil {
		return apperr.Config("config.unmarshal", fmt.Errorf("%s: %w", service, err))
	}

	validate := validator.New()
	if err := validate.Struct(dest); err != nil {
		return apperr.Config("config.validate", fmt.Errorf("%s: %w", service, err))
	}

	return nil
}
