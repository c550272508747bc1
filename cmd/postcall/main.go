// Command postcall summarizes finished calls and syncs the result to
// the tenant's CRM.
package main

import (
	"context"
	"encoding/base64"
	"log"
	"time"

	"github.com/spf13/viper"

	"github.com/sentinel-voice/core/internal/bus"
	"github.com/sentinel-voice/core/internal/config"
	"github.com/sentinel-voice/core/internal/crm"
	"github.com/sentinel-voice/core/internal/crypto"
	"github.com/sentinel-voice/core/internal/logging"
	"github.com/sentinel-voice/core/internal/postcall"
	"github.com/sentinel-voice/core/internal/shutdown"
	"github.com/sentinel-voice/core/internal/store"
	"github.com/sentinel-voice/core/internal/summarizer"
)

type serviceConfig struct {
	config.Bus      `mapstructure:"bus"`
	config.Postgres `mapstructure:"postgres"`
	config.Logging  `mapstructure:"logging"`

	MasterKeyBase64 string `mapstructure:"master_key_base64" validate:"required"`

	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	OpenAIModel  string `mapstructure:"openai_model"`

	SalesforceInstanceURL  string `mapstructure:"salesforce_instance_url"`
	SalesforceTokenURL     string `mapstructure:"salesforce_token_url"`
	SalesforceClientID     string `mapstructure:"salesforce_client_id"`
	SalesforceClientSecret string `mapstructure:"salesforce_client_secret"`
	SalesforceAPIVersion   string `mapstructure:"salesforce_api_version"`

	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("BUS__URL", "nats://localhost:4222")
	v.SetDefault("POSTGRES__MAX_OPEN_CONNECTIONS", 10)
	v.SetDefault("POSTGRES__MAX_IDLE_CONNECTIONS", 10)
	v.SetDefault("POSTGRES__MIGRATIONS_PATH", "internal/store/migrations")
	v.SetDefault("LOGGING__LEVEL", "info")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("SALESFORCE_API_VERSION", "v59.0")
	v.SetDefault("DRAIN_TIMEOUT", 20*time.Second)
}

func main() {
	var cfg serviceConfig
	if err := config.Load("postcall", &cfg, setDefaults); err != nil {
		log.Fatalf("postcall: config: %v", err)
	}

	logger, err := logging.New("postcall", logging.Config{Level: cfg.Logging.Level, FilePath: cfg.Logging.FilePath})
	if err != nil {
		log.Fatalf("postcall: logging: %v", err)
	}
	defer logger.Sync()

	masterKey, err := base64.StdEncoding.DecodeString(cfg.MasterKeyBase64)
	if err != nil {
		logger.Error("postcall: invalid master key, refusing startup", "error", err)
		return
	}
	keys, err := crypto.NewTenantKeyManager(masterKey)
	if err != nil {
		logger.Error("postcall: key manager init failed", "error", err)
		return
	}

	db, err := store.Open(cfg.Postgres.DSN, cfg.Postgres.MaxOpenConnections, cfg.Postgres.MaxIdleConnections, nil)
	if err != nil {
		logger.Error("postcall: db open failed", "error", err)
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("postcall: db handle failed", "error", err)
		return
	}
	if err := store.Migrate(sqlDB, cfg.Postgres.MigrationsPath); err != nil {
		logger.Error("postcall: migration failed", "error", err)
		return
	}

	b, err := bus.Connect(cfg.Bus.URL, logger)
	if err != nil {
		logger.Error("postcall: bus connect failed", "error", err)
		return
	}

	orgs := store.NewOrganizationRepository(db)
	calls := store.NewCallRepository(db)
	segs := store.NewTranscriptSegmentRepository(db)

	engine, err := summarizer.New(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	if err != nil {
		logger.Error("postcall: summarizer init failed", "error", err)
		return
	}

	crmAdapter := crm.NewSalesforceAdapter(context.Background(),
		cfg.SalesforceInstanceURL, cfg.SalesforceTokenURL,
		cfg.SalesforceClientID, cfg.SalesforceClientSecret, cfg.SalesforceAPIVersion)

	svc := postcall.New(calls, orgs, segs, keys, engine, crmAdapter, b, logger)
	if err := svc.Start(); err != nil {
		logger.Error("postcall: subscribe failed", "error", err)
		return
	}

	coord := shutdown.New(logger, cfg.DrainTimeout)
	coord.Wait(
		func(ctx context.Context) error { return b.Drain(ctx) },
	)
}
