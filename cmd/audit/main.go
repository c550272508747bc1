// Command audit consumes every audit.* event, appends it to the
// tamper-evident hash-chained log, and best-effort mirrors it to
// OpenSearch for operator search.
package main

import (
	"context"
	"log"
	"time"

	opensearch "github.com/opensearch-project/opensearch-go/v2"
	"github.com/spf13/viper"

	"github.com/sentinel-voice/core/internal/audit"
	"github.com/sentinel-voice/core/internal/bus"
	"github.com/sentinel-voice/core/internal/config"
	"github.com/sentinel-voice/core/internal/logging"
	"github.com/sentinel-voice/core/internal/shutdown"
)

type serviceConfig struct {
	config.Bus     `mapstructure:"bus"`
	config.Logging `mapstructure:"logging"`

	LogPath string `mapstructure:"log_path" validate:"required"`

	OpenSearchEnabled  bool   `mapstructure:"opensearch_enabled"`
	OpenSearchAddr     string `mapstructure:"opensearch_addr"`
	OpenSearchUsername string `mapstructure:"opensearch_username"`
	OpenSearchPassword string `mapstructure:"opensearch_password"`
	OpenSearchIndex    string `mapstructure:"opensearch_index"`

	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("BUS__URL", "nats://localhost:4222")
	v.SetDefault("LOGGING__LEVEL", "info")
	v.SetDefault("LOG_PATH", "/var/log/sentinel/audit.jsonl")
	v.SetDefault("OPENSEARCH_ENABLED", false)
	v.SetDefault("OPENSEARCH_INDEX", "sentinel-audit")
	v.SetDefault("DRAIN_TIMEOUT", 15*time.Second)
}

func main() {
	var cfg serviceConfig
	if err := config.Load("audit", &cfg, setDefaults); err != nil {
		log.Fatalf("audit: config: %v", err)
	}

	logger, err := logging.New("audit", logging.Config{Level: cfg.Logging.Level, FilePath: cfg.Logging.FilePath})
	if err != nil {
		log.Fatalf("audit: logging: %v", err)
	}
	defer logger.Sync()

	auditLog, err := audit.Open(cfg.LogPath)
	if err != nil {
		logger.Error("audit: log open failed, refusing startup", "error", err)
		return
	}

	var mirror audit.Mirror
	if cfg.OpenSearchEnabled {
		osClient, err := opensearch.NewClient(opensearch.Config{
			Addresses: []string{cfg.OpenSearchAddr},
			Username:  cfg.OpenSearchUsername,
			Password:  cfg.OpenSearchPassword,
		})
		if err != nil {
			logger.Warn("audit: opensearch client init failed, mirroring disabled", "error", err)
		} else {
			mirror = audit.NewOpenSearchMirror(osClient, cfg.OpenSearchIndex)
		}
	}

	b, err := bus.Connect(cfg.Bus.URL, logger)
	if err != nil {
		logger.Error("audit: bus connect failed", "error", err)
		return
	}

	consumer := audit.NewConsumer(auditLog, mirror, logger)
	sub, err := consumer.Start(b)
	if err != nil {
		logger.Error("audit: subscribe failed", "error", err)
		return
	}

	coord := shutdown.New(logger, cfg.DrainTimeout)
	coord.Wait(func(ctx context.Context) error {
		if err := sub.Unsubscribe(); err != nil {
			logger.Warn("audit: unsubscribe failed", "error", err)
		}
		if err := b.Drain(ctx); err != nil {
			logger.Warn("audit: bus drain failed", "error", err)
		}
		return auditLog.Close()
	})
}
