package speech

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	vad "github.com/streamer45/silero-vad-go/speech"
	"golang.org/x/sync/semaphore"

	"github.com/sentinel-voice/core/internal/bus"
	"github.com/sentinel-voice/core/internal/events"
	"github.com/sentinel-voice/core/internal/hintrouter"
	"github.com/sentinel-voice/core/internal/logging"
	"github.com/sentinel-voice/core/internal/pii"
	"github.com/sentinel-voice/core/internal/stt"
)

// Config tunes buffering, flush cadence, and worker concurrency.
type Config struct {
	SampleRateHz            int
	MaxBufferSeconds        int
	MinFlushSeconds         float64
	MinUtteranceSeconds     float64
	EndOfUtteranceSilenceMs int
	IdleSessionTimeout      time.Duration
	MaxConcurrentSTT        int64
	VADModelPath            string
}

// DefaultConfig matches the reference pipeline's tuning.
func DefaultConfig() Config {
	return Config{
		SampleRateHz:            16000,
		MaxBufferSeconds:        30,
		MinFlushSeconds:         2.0,
		MinUtteranceSeconds:     1.0,
		EndOfUtteranceSilenceMs: 700,
		IdleSessionTimeout:      5 * time.Minute,
		MaxConcurrentSTT:        4,
	}
}

// Processor is the Speech service's core pipeline: consumes
// audio.raw.> in a queue group, runs VAD, batches speech into segments,
// transcribes, scrubs, persists, and evaluates hint triggers.
type Processor struct {
	cfg      Config
	sttClient stt.Client
	router   *hintrouter.Router
	scrubber *pii.Scrubber
	state    *StateStore
	bus      bus.Bus
	log      logging.Logger

	sem *semaphore.Weighted

	mu       sync.Mutex
	sessions map[string]*sessionState

	// OnTranscript is called with every scrubbed, persisted transcript
	// segment so the persistence layer can batch it. Set by the caller
	// that wires Processor into the speech service entrypoint.
	OnTranscript func(ctx context.Context, sessionID string, seg events.TranscriptEvent)
}

type flushJob struct {
	pcm         []byte
	startOffset float64
	endOffset   float64
}

type sessionState struct {
	buffer       *RingBuffer
	detector     *vad.Detector
	tasks        chan flushJob
	lastActivity time.Time
	elapsedSec   float64
	silenceMs    float64
	mu           sync.Mutex
}

// New builds a Processor.
func New(cfg Config, sttClient stt.Client, router *hintrouter.Router, scrubber *pii.Scrubber, state *StateStore, b bus.Bus, log logging.Logger) *Processor {
	if cfg.MaxConcurrentSTT <= 0 {
		cfg.MaxConcurrentSTT = 4
	}
	if cfg.MinUtteranceSeconds <= 0 {
		cfg.MinUtteranceSeconds = 1.0
	}
	if cfg.EndOfUtteranceSilenceMs <= 0 {
		cfg.EndOfUtteranceSilenceMs = 700
	}
	return &Processor{
		cfg:       cfg,
		sttClient: sttClient,
		router:    router,
		scrubber:  scrubber,
		state:     state,
		bus:       b,
		log:       log,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrentSTT),
		sessions:  make(map[string]*sessionState),
	}
}

// HandleAudioFrame is the bus handler for audio.raw.{session_id}.
func (p *Processor) HandleAudioFrame(subject string, data []byte) {
	sessionID := sessionIDFromSubject(subject)
	if sessionID == "" {
		return
	}

	session := p.getOrCreateSession(sessionID)

	session.mu.Lock()
	defer session.mu.Unlock()

	session.lastActivity = time.Now()

	hasSpeech, err := p.detectSpeech(session.detector, data)
	if err != nil {
		p.log.Warn("speech: vad failed", "session_id", sessionID, "error", err)
		hasSpeech = true // fail open: better a spurious flush than dropped speech
	}
	if hasSpeech {
		session.buffer.AddPCM16(data)
	}

	if !shouldFlush(session, hasSpeech, chunkDurationMs(data, p.cfg.SampleRateHz), p.cfg) {
		return
	}

	pcm := session.buffer.PCM16Bytes()
	startOffset := session.elapsedSec
	endOffset := startOffset + session.buffer.DurationSeconds(p.cfg.SampleRateHz)
	session.elapsedSec = endOffset
	session.buffer.Clear()

	select {
	case session.tasks <- flushJob{pcm: pcm, startOffset: startOffset, endOffset: endOffset}:
	default:
		p.log.Warn("speech: session task queue full, dropping segment", "session_id", sessionID)
	}
}

// shouldFlush updates the session's silence counter for the current
// chunk and reports whether the buffer should be drained. Two
// independent triggers force a flush: a pause long enough to mark the
// end of an utterance, once enough audio has been buffered to be worth
// transcribing; or the buffer simply filling up, regardless of VAD
// state. The caller must hold session.mu.
func shouldFlush(session *sessionState, hasSpeech bool, chunkMs float64, cfg Config) bool {
	if hasSpeech {
		session.silenceMs = 0
	} else {
		session.silenceMs += chunkMs
	}

	bufferSec := session.buffer.DurationSeconds(cfg.SampleRateHz)

	silenceFlush := !hasSpeech &&
		session.silenceMs >= float64(cfg.EndOfUtteranceSilenceMs) &&
		bufferSec >= cfg.MinUtteranceSeconds

	sizeFlush := bufferSec >= cfg.MinFlushSeconds

	if !silenceFlush && !sizeFlush {
		return false
	}
	session.silenceMs = 0
	return true
}

func (p *Processor) getOrCreateSession(sessionID string) *sessionState {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[sessionID]; ok {
		return s
	}

	detector, err := vad.NewDetector(vad.DetectorConfig{
		ModelPath:            p.cfg.VADModelPath,
		SampleRate:           p.cfg.SampleRateHz,
		WindowSize:           512,
		Threshold:            0.5,
		MinSilenceDurationMs: 350,
		SpeechPadMs:          200,
	})
	if err != nil {
		p.log.Warn("speech: failed to create vad detector, proceeding without", "session_id", sessionID, "error", err)
	}

	s := &sessionState{
		buffer:       NewRingBuffer(p.cfg.SampleRateHz, p.cfg.MaxBufferSeconds),
		detector:     detector,
		tasks:        make(chan flushJob, 8),
		lastActivity: time.Now(),
	}
	p.sessions[sessionID] = s
	go p.runSessionWorker(sessionID, s)
	return s
}

func (p *Processor) detectSpeech(detector *vad.Detector, pcm []byte) (bool, error) {
	if detector == nil {
		return true, nil
	}
	samples := pcm16ToFloat32(pcm)
	segments, err := detector.Detect(samples)
	if err != nil {
		return false, err
	}
	return len(segments) > 0, nil
}

// runSessionWorker processes one session's flush jobs strictly in
// order, acquiring the shared STT concurrency semaphore per job so a
// burst of simultaneous flushes across sessions cannot overrun the
// transcription backend.
func (p *Processor) runSessionWorker(sessionID string, s *sessionState) {
	ctx := context.Background()
	for job := range s.tasks {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			continue
		}
		p.processSegment(ctx, sessionID, job)
		p.sem.Release(1)
	}
}

func (p *Processor) processSegment(ctx context.Context, sessionID string, job flushJob) {
	pcm, startOffset, endOffset := job.pcm, job.startOffset, job.endOffset
	if len(pcm) == 0 {
		return
	}

	prompt, err := p.state.LastSuffix(ctx, sessionID, 200)
	if err != nil {
		p.log.Warn("speech: failed to load transcript continuation", "session_id", sessionID, "error", err)
	}

	result, err := p.sttClient.Transcribe(ctx, stt.Request{
		Audio:         pcm,
		SampleRateHz:  p.cfg.SampleRateHz,
		InitialPrompt: prompt,
	})
	if err != nil {
		p.log.Warn("speech: transcription failed", "session_id", sessionID, "error", err)
		return
	}
	if strings.TrimSpace(result.Text) == "" {
		return
	}

	p.log.Info("speech: transcript", "session_id", sessionID, "text", result.Text)

	if err := p.state.AppendTranscript(ctx, sessionID, result.Text); err != nil {
		p.log.Warn("speech: failed to append transcript state", "session_id", sessionID, "error", err)
	}

	scrubbed := p.scrubber.Scrub(result.Text)

	segment := events.TranscriptEvent{
		SessionID:   sessionID,
		Text:        scrubbed,
		StartOffset: startOffset,
		EndOffset:   endOffset,
		Speaker:     events.SpeakerCustomer,
	}
	if p.OnTranscript != nil {
		p.OnTranscript(ctx, sessionID, segment)
	}

	if trigger := p.router.Process(ctx, scrubbed); trigger != nil {
		p.log.Info("speech: hint triggered", "session_id", sessionID, "title", trigger.Content.Title)
		if raw, err := json.Marshal(trigger); err == nil {
			if err := p.bus.Publish(events.Sub.UICommands(sessionID), raw); err != nil {
				p.log.Warn("speech: failed to publish ui command", "session_id", sessionID, "error", err)
			}
		}
	}
}

// EvictIdleSessions removes sessions with no activity for longer than
// IdleSessionTimeout, releasing their buffers and VAD detectors. Call
// periodically from the service entrypoint.
func (p *Processor) EvictIdleSessions() {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-p.cfg.IdleSessionTimeout)
	for id, s := range p.sessions {
		s.mu.Lock()
		idle := s.lastActivity.Before(cutoff)
		s.mu.Unlock()
		if !idle {
			continue
		}
		close(s.tasks)
		if s.detector != nil {
			_ = s.detector.Destroy()
		}
		delete(p.sessions, id)
		p.log.Info("speech: evicted idle session", "session_id", id)
	}
}

func sessionIDFromSubject(subject string) string {
	idx := strings.LastIndex(subject, ".")
	if idx < 0 || idx == len(subject)-1 {
		return ""
	}
	return subject[idx+1:]
}

// chunkDurationMs returns how many milliseconds of audio a raw PCM16
// chunk represents at the given sample rate.
func chunkDurationMs(pcm []byte, sampleRateHz int) float64 {
	if sampleRateHz <= 0 {
		return 0
	}
	samples := len(pcm) / 2
	return float64(samples) / float64(sampleRateHz) * 1000.0
}

func pcm16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		lo := uint16(pcm[2*i])
		hi := uint16(pcm[2*i+1])
		out[i] = float32(int16(lo|hi<<8)) / 32768.0
	}
	return out
}
