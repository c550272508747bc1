// Command gateway runs the WebSocket ingress: it terminates client
// audio streams, authenticates the handshake, and bridges frames onto
// the message bus.
package main

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/sentinel-voice/core/internal/bus"
	"github.com/sentinel-voice/core/internal/config"
	"github.com/sentinel-voice/core/internal/gateway"
	"github.com/sentinel-voice/core/internal/logging"
	"github.com/sentinel-voice/core/internal/shutdown"
)

type serviceConfig struct {
	config.Bus     `mapstructure:"bus"`
	config.Logging `mapstructure:"logging"`

	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	JWTSecret    string `mapstructure:"jwt_secret" validate:"required"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8080)
	v.SetDefault("BUS__URL", "nats://localhost:4222")
	v.SetDefault("LOGGING__LEVEL", "info")
	v.SetDefault("DRAIN_TIMEOUT", 30*time.Second)
}

func main() {
	var cfg serviceConfig
	if err := config.Load("gateway", &cfg, setDefaults); err != nil {
		log.Fatalf("gateway: config: %v", err)
	}

	logger, err := logging.New("gateway", logging.Config{Level: cfg.Logging.Level, FilePath: cfg.Logging.FilePath})
	if err != nil {
		log.Fatalf("gateway: logging: %v", err)
	}
	defer logger.Sync()

	b, err := bus.Connect(cfg.Bus.URL, logger)
	if err != nil {
		logger.Error("gateway: bus connect failed", "error", err)
		return
	}

	validator := gateway.NewJWTValidator([]byte(cfg.JWTSecret))
	server := gateway.NewServer(b, validator, logger)

	httpServer := &http.Server{
		Addr:    cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Handler: server.Router(),
	}

	go func() {
		logger.Info("gateway: listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("gateway: listen failed", "error", err)
		}
	}()

	coord := shutdown.New(logger, cfg.DrainTimeout)
	coord.Wait(func(ctx context.Context) error {
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Warn("gateway: http shutdown failed", "error", err)
		}
		return b.Drain(ctx)
	})
}
