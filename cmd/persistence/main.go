// Command persistence archives session audio and batches encrypted
// transcript segments into durable storage.
package main

import (
	"context"
	"encoding/base64"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/sentinel-voice/core/internal/bus"
	"github.com/sentinel-voice/core/internal/config"
	"github.com/sentinel-voice/core/internal/crypto"
	"github.com/sentinel-voice/core/internal/logging"
	"github.com/sentinel-voice/core/internal/objectstore"
	"github.com/sentinel-voice/core/internal/persistence"
	"github.com/sentinel-voice/core/internal/shutdown"
	"github.com/sentinel-voice/core/internal/speech"
	"github.com/sentinel-voice/core/internal/store"
)

type serviceConfig struct {
	config.Bus      `mapstructure:"bus"`
	config.Postgres `mapstructure:"postgres"`
	config.Redis    `mapstructure:"redis"`
	config.Logging  `mapstructure:"logging"`

	MasterKeyBase64 string `mapstructure:"master_key_base64" validate:"required"`

	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3Region    string `mapstructure:"s3_region"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
	S3Bucket    string `mapstructure:"s3_bucket"`

	SpoolDir         string        `mapstructure:"spool_dir"`
	FlushBatchSize   int           `mapstructure:"flush_batch_size"`
	FlushInterval    time.Duration `mapstructure:"flush_interval"`
	FFmpegPath       string        `mapstructure:"ffmpeg_path"`
	RecordingBitrate string        `mapstructure:"recording_bitrate"`
	FinalizationIdle time.Duration `mapstructure:"finalization_idle"`
	MaxUploadRetries int           `mapstructure:"max_upload_retries"`
	DevFixtures      bool          `mapstructure:"dev_fixtures"`

	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("BUS__URL", "nats://localhost:4222")
	v.SetDefault("POSTGRES__MAX_OPEN_CONNECTIONS", 10)
	v.SetDefault("POSTGRES__MAX_IDLE_CONNECTIONS", 10)
	v.SetDefault("POSTGRES__MIGRATIONS_PATH", "internal/store/migrations")
	v.SetDefault("REDIS__ADDR", "localhost:6379")
	v.SetDefault("LOGGING__LEVEL", "info")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_BUCKET", "sentinel-recordings")
	v.SetDefault("SPOOL_DIR", "/tmp/sentinel_audio")
	v.SetDefault("FLUSH_BATCH_SIZE", 50)
	v.SetDefault("FLUSH_INTERVAL", 5*time.Second)
	v.SetDefault("FFMPEG_PATH", "ffmpeg")
	v.SetDefault("RECORDING_BITRATE", "16k")
	v.SetDefault("FINALIZATION_IDLE", 60*time.Second)
	v.SetDefault("MAX_UPLOAD_RETRIES", 6)
	v.SetDefault("DEV_FIXTURES", false)
	v.SetDefault("DRAIN_TIMEOUT", 45*time.Second)
}

func main() {
	var cfg serviceConfig
	if err := config.Load("persistence", &cfg, setDefaults); err != nil {
		log.Fatalf("persistence: config: %v", err)
	}

	logger, err := logging.New("persistence", logging.Config{Level: cfg.Logging.Level, FilePath: cfg.Logging.FilePath})
	if err != nil {
		log.Fatalf("persistence: logging: %v", err)
	}
	defer logger.Sync()

	masterKey, err := decodeMasterKey(cfg.MasterKeyBase64)
	if err != nil {
		logger.Error("persistence: invalid master key, refusing startup", "error", err)
		return
	}
	keys, err := crypto.NewTenantKeyManager(masterKey)
	if err != nil {
		logger.Error("persistence: key manager init failed", "error", err)
		return
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	cacher := store.NewRedisCacher(redisClient, 30*time.Second)

	db, err := store.Open(cfg.Postgres.DSN, cfg.Postgres.MaxOpenConnections, cfg.Postgres.MaxIdleConnections, cacher)
	if err != nil {
		logger.Error("persistence: db open failed", "error", err)
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("persistence: db handle failed", "error", err)
		return
	}
	if err := store.Migrate(sqlDB, cfg.Postgres.MigrationsPath); err != nil {
		logger.Error("persistence: migration failed", "error", err)
		return
	}

	ctx := context.Background()
	objStore, err := objectstore.New(ctx, objectstore.Options{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
	}, logger)
	if err != nil {
		logger.Error("persistence: objectstore init failed", "error", err)
		return
	}
	if err := objStore.EnsureBucket(ctx); err != nil {
		logger.Warn("persistence: ensure bucket failed", "error", err)
	}

	b, err := bus.Connect(cfg.Bus.URL, logger)
	if err != nil {
		logger.Error("persistence: bus connect failed", "error", err)
		return
	}

	orgs := store.NewOrganizationRepository(db)
	users := store.NewUserRepository(db)
	calls := store.NewCallRepository(db)
	segs := store.NewTranscriptSegmentRepository(db)

	pcfg := persistence.DefaultConfig()
	pcfg.FlushBatchSize = cfg.FlushBatchSize
	pcfg.FlushInterval = cfg.FlushInterval
	pcfg.FFmpegPath = cfg.FFmpegPath
	pcfg.RecordingBitrate = cfg.RecordingBitrate
	pcfg.FinalizationIdle = cfg.FinalizationIdle
	pcfg.MaxUploadRetries = cfg.MaxUploadRetries
	pcfg.DevFixtures = cfg.DevFixtures

	svc, err := persistence.New(pcfg, cfg.SpoolDir, objStore, orgs, users, calls, segs, keys, b, logger)
	if err != nil {
		logger.Error("persistence: init failed", "error", err)
		return
	}

	// A session's running transcript in Redis only has meaning while the
	// session's segments are still being batched; once a session is
	// durably finalized, the state store entry can be dropped.
	transcriptState := speech.NewStateStore(redisClient)
	svc.Cleanup = func(ctx context.Context, sessionID string) {
		if err := transcriptState.Delete(ctx, sessionID); err != nil {
			logger.Warn("persistence: failed to clear transcript state", "session_id", sessionID, "error", err)
		}
	}

	if err := svc.Start(); err != nil {
		logger.Error("persistence: subscribe failed", "error", err)
		return
	}

	flushCtx, flushCancel := context.WithCancel(context.Background())
	go svc.RunFlushLoop(flushCtx)
	go svc.RunIdleEvictionLoop(flushCtx)

	coord := shutdown.New(logger, cfg.DrainTimeout)
	coord.Wait(func(ctx context.Context) error {
		if err := b.Drain(ctx); err != nil {
			logger.Warn("persistence: bus drain failed", "error", err)
		}
		flushCancel()
		// Finalize any session still open at shutdown time rather than
		// leaving it to a future idle sweep that may never run.
		svc.FinalizeAll(ctx)
		return nil
	})
}

func decodeMasterKey(b64 string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(b64)
}
