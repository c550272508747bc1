package persistence

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sentinel-voice/core/internal/events"
	"github.com/sentinel-voice/core/internal/store"
)

func TestHandleTranscriptEnqueuesEncryptedSegment(t *testing.T) {
	svc, _, _, _, _ := newTestService(t, newFakeBus())
	svc.cfg.DevFixtures = true
	svc.cfg.FlushBatchSize = 1000 // large enough that this single event never auto-flushes

	evt := events.TranscriptEvent{
		SessionID:   "dev-session",
		Text:        "hello there",
		StartOffset: 1.0,
		EndOffset:   2.0,
		Speaker:     store.SpeakerAgent,
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	svc.handleTranscript("transcript_event.dev-session", raw)

	svc.pending.mu.Lock()
	defer svc.pending.mu.Unlock()
	if len(svc.pending.items) != 1 {
		t.Fatalf("len(pending.items) = %d, want 1", len(svc.pending.items))
	}
	got := svc.pending.items[0]
	if got.sessionID != "dev-session" {
		t.Errorf("sessionID = %q, want dev-session", got.sessionID)
	}
	if got.segment.CipherText == "hello there" {
		t.Error("expected the transcript text to be encrypted before enqueueing, not stored as plaintext")
	}
	if got.segment.Speaker != store.SpeakerAgent {
		t.Errorf("Speaker = %q, want %q", got.segment.Speaker, store.SpeakerAgent)
	}
}

func TestHandleTranscriptFlushesAtBatchSize(t *testing.T) {
	b := newFakeBus()
	svc, _, _, _, segs := newTestService(t, b)
	svc.cfg.DevFixtures = true
	svc.cfg.FlushBatchSize = 1

	evt := events.TranscriptEvent{SessionID: "dev-session", Text: "hi", Speaker: store.SpeakerCustomer}
	raw, _ := json.Marshal(evt)

	svc.handleTranscript("transcript_event.dev-session", raw)

	svc.pending.mu.Lock()
	n := len(svc.pending.items)
	svc.pending.mu.Unlock()
	if n != 0 {
		t.Errorf("expected the batch to auto-flush at FlushBatchSize=1, got %d still pending", n)
	}

	res, err := svc.resolveSession(context.Background(), "dev-session")
	if err != nil {
		t.Fatalf("resolveSession: %v", err)
	}
	stored, err := segs.ListByCallOrdered(context.Background(), res.call.ID)
	if err != nil {
		t.Fatalf("ListByCallOrdered: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("len(stored) = %d, want 1", len(stored))
	}
}

func TestHandleTranscriptIgnoresMalformedSubject(t *testing.T) {
	svc, _, _, _, _ := newTestService(t, newFakeBus())
	svc.handleTranscript("no-session-suffix", []byte(`{}`))

	svc.pending.mu.Lock()
	n := len(svc.pending.items)
	svc.pending.mu.Unlock()
	if n != 0 {
		t.Errorf("expected no segment enqueued for a malformed subject, got %d", n)
	}
}
