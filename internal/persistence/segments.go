package persistence

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sentinel-voice/core/internal/events"
	"github.com/sentinel-voice/core/internal/store"
)

// maxFlushRetries bounds how many times a failed batch is re-enqueued
// before its segments are dropped to the dead-letter subject rather than
// retried forever against a store that may be down for good.
const maxFlushRetries = 5

// pendingSegment pairs a not-yet-flushed segment with the session it
// came from, so a successful flush can publish one data_persisted
// confirmation per session.
type pendingSegment struct {
	sessionID string
	segment   *store.TranscriptSegment
	retries   int
}

// pendingBatch accumulates segments across sessions until a flush is
// triggered by size or by the flush-interval ticker, matching the
// reference worker's BATCH_SIZE/FLUSH_INTERVAL tradeoff between write
// amplification and persistence latency.
type pendingBatch struct {
	mu    sync.Mutex
	items []pendingSegment
}

func newPendingBatch() *pendingBatch {
	return &pendingBatch{}
}

func (s *Service) handleTranscript(subject string, data []byte) {
	sessionID := sessionIDFromSubject(subject)
	if sessionID == "" {
		return
	}

	var evt events.TranscriptEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		s.log.Warn("persistence: malformed transcript event", "subject", subject, "error", err)
		return
	}

	ctx := context.Background()
	res, err := s.resolveSession(ctx, sessionID)
	if err != nil {
		s.log.Warn("persistence: failed to resolve session for transcript", "session_id", sessionID, "error", err)
		return
	}

	cipherText, err := res.encryptor.Encrypt(evt.Text)
	if err != nil {
		s.log.Warn("persistence: failed to encrypt transcript segment", "session_id", sessionID, "error", err)
		return
	}

	seg := &store.TranscriptSegment{
		CallID:      res.call.ID,
		CipherText:  cipherText,
		StartOffset: evt.StartOffset,
		EndOffset:   evt.EndOffset,
		Speaker:     evt.Speaker,
	}

	s.pending.mu.Lock()
	s.pending.items = append(s.pending.items, pendingSegment{sessionID: sessionID, segment: seg})
	shouldFlush := len(s.pending.items) >= s.cfg.FlushBatchSize
	s.pending.mu.Unlock()

	if shouldFlush {
		s.flushPending(ctx)
	}
}

// flushPending writes every currently-buffered segment in one batched
// insert and publishes a data_persisted confirmation per distinct
// session. It is safe to call concurrently (from the ticker and from a
// batch-size trigger); a flush that races an empty buffer is a no-op.
func (s *Service) flushPending(ctx context.Context) {
	s.pending.mu.Lock()
	if len(s.pending.items) == 0 {
		s.pending.mu.Unlock()
		return
	}
	batch := s.pending.items
	s.pending.items = nil
	s.pending.mu.Unlock()

	segments := make([]*store.TranscriptSegment, 0, len(batch))
	sessionsSeen := make(map[string]struct{})
	for _, p := range batch {
		segments = append(segments, p.segment)
		sessionsSeen[p.sessionID] = struct{}{}
	}

	if err := s.segs.CreateBatch(ctx, segments); err != nil {
		s.log.Warn("persistence: batch flush failed, re-enqueueing", "count", len(segments), "error", err)
		s.requeueOrDeadLetter(batch)
		return
	}

	s.log.Info("persistence: flushed transcript segments", "count", len(segments))

	for sessionID := range sessionsSeen {
		payload := events.DataPersisted{Type: events.EventDataPersisted, ID: sessionID}
		raw, err := json.Marshal(payload)
		if err != nil {
			continue
		}
		if err := s.b.Publish(events.Sub.UICommands(sessionID), raw); err != nil {
			s.log.Warn("persistence: failed to publish data_persisted", "session_id", sessionID, "error", err)
		}
	}
}

// requeueOrDeadLetter puts a failed batch back at the front of the
// pending queue, unless a segment has already exhausted maxFlushRetries,
// in which case it is published to the dead-letter subject and dropped
// from the in-memory queue so one permanently-failing segment cannot
// block the rest of the batch forever.
func (s *Service) requeueOrDeadLetter(batch []pendingSegment) {
	var survivors []pendingSegment
	for _, p := range batch {
		p.retries++
		if p.retries > maxFlushRetries {
			s.deadLetter(p)
			continue
		}
		survivors = append(survivors, p)
	}

	s.pending.mu.Lock()
	s.pending.items = append(survivors, s.pending.items...)
	s.pending.mu.Unlock()
}

func (s *Service) deadLetter(p pendingSegment) {
	s.log.Error("persistence: segment exhausted retries, moving to dead letter", "session_id", p.sessionID, "call_id", p.segment.CallID)
	raw, err := json.Marshal(p.segment)
	if err != nil {
		return
	}
	if err := s.b.Publish("persistence.dead_letter.transcript_segment", raw); err != nil {
		s.log.Warn("persistence: failed to publish dead letter", "session_id", p.sessionID, "error", err)
	}
}
