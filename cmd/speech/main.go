// Command speech runs the VAD -> STT -> hint-routing pipeline: it
// consumes raw audio frames, transcribes completed segments, scrubs
// PII, and evaluates coaching-overlay triggers.
package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/sentinel-voice/core/internal/bus"
	"github.com/sentinel-voice/core/internal/config"
	"github.com/sentinel-voice/core/internal/embedding"
	"github.com/sentinel-voice/core/internal/events"
	"github.com/sentinel-voice/core/internal/hintrouter"
	"github.com/sentinel-voice/core/internal/logging"
	"github.com/sentinel-voice/core/internal/pii"
	"github.com/sentinel-voice/core/internal/shutdown"
	"github.com/sentinel-voice/core/internal/speech"
	"github.com/sentinel-voice/core/internal/stt"
	"github.com/sentinel-voice/core/internal/vectorstore"
)

type serviceConfig struct {
	config.Bus     `mapstructure:"bus"`
	config.Redis   `mapstructure:"redis"`
	config.Logging `mapstructure:"logging"`

	DeepgramAPIKey string `mapstructure:"deepgram_api_key"`
	DeepgramModel  string `mapstructure:"deepgram_model"`
	VADModelPath   string `mapstructure:"vad_model_path"`

	SemanticMatchEnabled bool   `mapstructure:"semantic_match_enabled"`
	ReplicateAPIToken    string `mapstructure:"replicate_api_token"`
	ReplicateModel       string `mapstructure:"replicate_model"`
	QdrantURL            string `mapstructure:"qdrant_url"`
	QdrantCollection     string `mapstructure:"qdrant_collection"`

	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("BUS__URL", "nats://localhost:4222")
	v.SetDefault("REDIS__ADDR", "localhost:6379")
	v.SetDefault("LOGGING__LEVEL", "info")
	v.SetDefault("DEEPGRAM_MODEL", "nova-2")
	v.SetDefault("VAD_MODEL_PATH", "/models/silero_vad.onnx")
	v.SetDefault("SEMANTIC_MATCH_ENABLED", false)
	v.SetDefault("QDRANT_URL", "http://localhost:6333")
	v.SetDefault("QDRANT_COLLECTION", "hint_rules")
	v.SetDefault("DRAIN_TIMEOUT", 30*time.Second)
}

func main() {
	var cfg serviceConfig
	if err := config.Load("speech", &cfg, setDefaults); err != nil {
		log.Fatalf("speech: config: %v", err)
	}

	logger, err := logging.New("speech", logging.Config{Level: cfg.Logging.Level, FilePath: cfg.Logging.FilePath})
	if err != nil {
		log.Fatalf("speech: logging: %v", err)
	}
	defer logger.Sync()

	b, err := bus.Connect(cfg.Bus.URL, logger)
	if err != nil {
		logger.Error("speech: bus connect failed", "error", err)
		return
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	state := speech.NewStateStore(redisClient)

	sttClient := stt.Client(stt.NewDeepgramClient(cfg.DeepgramAPIKey, cfg.DeepgramModel))

	var routerOpts []hintrouter.Option
	if cfg.SemanticMatchEnabled {
		embedder, err := embedding.NewReplicateEmbedder(cfg.ReplicateAPIToken, cfg.ReplicateModel)
		if err != nil {
			logger.Error("speech: embedder init failed, semantic matching disabled", "error", err)
		} else {
			vectors := vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantCollection)
			routerOpts = append(routerOpts, hintrouter.WithSemanticMatch(embedder, vectors))
		}
	}
	router := hintrouter.New(hintrouter.DefaultRules(), logger, routerOpts...)
	scrubber := pii.New(pii.DefaultConfig())

	procCfg := speech.DefaultConfig()
	procCfg.VADModelPath = cfg.VADModelPath
	processor := speech.New(procCfg, sttClient, router, scrubber, state, b, logger)

	processor.OnTranscript = func(_ context.Context, sessionID string, seg events.TranscriptEvent) {
		raw, err := json.Marshal(seg)
		if err != nil {
			return
		}
		if err := b.Publish(events.Sub.TranscriptEvent(sessionID), raw); err != nil {
			logger.Warn("speech: failed to publish transcript event", "session_id", sessionID, "error", err)
		}
	}

	if _, err := b.QueueSubscribe(events.Sub.AudioRawWildcard(), "speech_processor", processor.HandleAudioFrame); err != nil {
		logger.Error("speech: subscribe failed", "error", err)
		return
	}

	evictCtx, evictCancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-evictCtx.Done():
				return
			case <-ticker.C:
				processor.EvictIdleSessions()
			}
		}
	}()

	coord := shutdown.New(logger, cfg.DrainTimeout)
	coord.Wait(func(ctx context.Context) error {
		evictCancel()
		return b.Drain(ctx)
	})
}
