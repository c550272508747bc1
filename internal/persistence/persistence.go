package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/sentinel-voice/core/internal/bus"
	"github.com/sentinel-voice/core/internal/crypto"
	"github.com/sentinel-voice/core/internal/events"
	"github.com/sentinel-voice/core/internal/logging"
	"github.com/sentinel-voice/core/internal/objectstore"
	"github.com/sentinel-voice/core/internal/store"
)

// Config tunes batching cadence, spool location, and dev bootstrapping.
type Config struct {
	SpoolDir         string
	FlushBatchSize   int
	FlushInterval    time.Duration
	FFmpegPath       string
	RecordingBitrate string // e.g. "16k", matched to the opus encoder
	DevFixtures      bool

	// FinalizationIdle is how long a session may go without an audio
	// frame before it is finalized as if call.ended had arrived, so a
	// client that vanishes mid-call still gets its recording archived.
	FinalizationIdle time.Duration

	// MaxUploadRetries bounds the exponential backoff retried on a
	// failed recording upload before the spool is abandoned in place
	// for manual recovery.
	MaxUploadRetries int
}

// DefaultConfig matches the reference worker's tuning.
func DefaultConfig() Config {
	return Config{
		FlushBatchSize:   50,
		FlushInterval:    5 * time.Second,
		FFmpegPath:       "ffmpeg",
		RecordingBitrate: "16k",
		FinalizationIdle: 60 * time.Second,
		MaxUploadRetries: 6, // 1s,2s,4s,8s,16s,32s -> caps near 60s
	}
}

// Service is the Persistence worker: it archives raw audio to a spool,
// transcodes and uploads recordings on call end, and batches encrypted
// transcript segments into the relational store.
type Service struct {
	cfg   Config
	spool *Spool

	objectstore *objectstore.Client
	orgs        *store.OrganizationRepository
	users       *store.UserRepository
	calls       *store.CallRepository
	segs        *store.TranscriptSegmentRepository
	keys        *crypto.TenantKeyManager

	b   bus.Bus
	log logging.Logger

	sessions *sessionCache

	// Cleanup is invoked whenever finalizeSession returns, including
	// when the session cannot be resolved or the recording upload has
	// exhausted its retries, so callers (the speech service's Redis
	// state) can release session-scoped resources. Optional.
	Cleanup func(ctx context.Context, sessionID string)

	pending *pendingBatch

	activityMu sync.Mutex
	activity   map[string]time.Time
}

// New builds a Service. spoolDir is created if it does not exist.
func New(cfg Config, spoolDir string, objStore *objectstore.Client, orgs *store.OrganizationRepository, users *store.UserRepository, calls *store.CallRepository, segs *store.TranscriptSegmentRepository, keys *crypto.TenantKeyManager, b bus.Bus, log logging.Logger) (*Service, error) {
	if cfg.FlushBatchSize <= 0 {
		cfg.FlushBatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FinalizationIdle <= 0 {
		cfg.FinalizationIdle = 60 * time.Second
	}
	if cfg.MaxUploadRetries <= 0 {
		cfg.MaxUploadRetries = 6
	}

	spool, err := NewSpool(spoolDir)
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:         cfg,
		spool:       spool,
		objectstore: objStore,
		orgs:        orgs,
		users:       users,
		calls:       calls,
		segs:        segs,
		keys:        keys,
		b:           b,
		log:         log,
		sessions:    newSessionCache(),
		pending:     newPendingBatch(),
		activity:    make(map[string]time.Time),
	}, nil
}

// Start subscribes to the bus subjects the Persistence worker owns. Each
// subscription uses a queue group so horizontally-scaled replicas share
// the work rather than duplicating it.
func (s *Service) Start() error {
	if _, err := s.b.QueueSubscribe(events.Sub.AudioRawWildcard(), "persistence_archiver", s.handleAudioFrame); err != nil {
		return err
	}
	if _, err := s.b.QueueSubscribe(events.Sub.TranscriptEventWildcard(), "persistence_logger", s.handleTranscript); err != nil {
		return err
	}
	if _, err := s.b.QueueSubscribe(events.Sub.CallEnded(), "persistence_finalizer", s.handleCallEnded); err != nil {
		return err
	}
	return nil
}

// RunFlushLoop blocks, flushing batched transcript segments on
// FlushInterval, until ctx is done. Run it in its own goroutine from the
// service entrypoint.
func (s *Service) RunFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.flushPending(context.Background())
			return
		case <-ticker.C:
			s.flushPending(ctx)
		}
	}
}

func (s *Service) handleAudioFrame(subject string, data []byte) {
	sessionID := sessionIDFromSubject(subject)
	if sessionID == "" {
		return
	}
	if err := s.spool.Append(sessionID, data); err != nil {
		s.log.Warn("persistence: spool append failed", "session_id", sessionID, "error", err)
		return
	}

	s.activityMu.Lock()
	s.activity[sessionID] = time.Now()
	s.activityMu.Unlock()
}

// RunIdleEvictionLoop periodically finalizes sessions that have gone
// silent for FinalizationIdle without a call.ended arriving, so a client
// that disconnects uncleanly still gets its recording archived.
func (s *Service) RunIdleEvictionLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FinalizationIdle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evictIdleSessions(ctx)
		}
	}
}

// FinalizeAll finalizes every session still tracked as active,
// regardless of idle cutoff. Call it from the service's graceful
// shutdown drain so an in-flight session doesn't lose its recording or
// miss call.ended-triggered downstream processing just because the
// process happened to exit before the client disconnected or an idle
// sweep ran.
func (s *Service) FinalizeAll(ctx context.Context) {
	s.activityMu.Lock()
	sessionIDs := make([]string, 0, len(s.activity))
	for sessionID := range s.activity {
		sessionIDs = append(sessionIDs, sessionID)
	}
	s.activity = make(map[string]time.Time)
	s.activityMu.Unlock()

	s.flushPending(ctx)
	for _, sessionID := range sessionIDs {
		s.log.Info("persistence: finalizing session on shutdown", "session_id", sessionID)
		s.finalizeSession(ctx, sessionID)
	}
}

func (s *Service) evictIdleSessions(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.FinalizationIdle)

	s.activityMu.Lock()
	var idle []string
	for sessionID, last := range s.activity {
		if last.Before(cutoff) {
			idle = append(idle, sessionID)
			delete(s.activity, sessionID)
		}
	}
	s.activityMu.Unlock()

	for _, sessionID := range idle {
		s.log.Info("persistence: finalizing idle session", "session_id", sessionID)
		s.finalizeSession(ctx, sessionID)
	}
}
