package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/sentinel-voice/core/internal/store"
)

func TestUploadWithBackoffReturnsErrorWithoutRetryWhenZeroRetries(t *testing.T) {
	svc, _, _, _, _ := newTestService(t, newFakeBus())
	svc.cfg.MaxUploadRetries = 0

	// The path does not exist, so objectstore.UploadFile fails at
	// os.Open before it would ever touch the nil *objectstore.Client in
	// this test harness.
	err := svc.uploadWithBackoff(context.Background(), "/nonexistent/path/to/file.ogg", "recordings/sess-1.ogg", "audio/ogg")
	if err == nil {
		t.Error("expected uploadWithBackoff to surface the upload failure")
	}
}

func TestHandleAudioFrameTracksActivity(t *testing.T) {
	svc, _, _, _, _ := newTestService(t, newFakeBus())

	svc.handleAudioFrame("audio.raw.sess-1", []byte{1, 2, 3, 4})

	svc.activityMu.Lock()
	_, tracked := svc.activity["sess-1"]
	svc.activityMu.Unlock()
	if !tracked {
		t.Error("expected handleAudioFrame to record session activity")
	}
}

func TestHandleAudioFrameIgnoresMalformedSubject(t *testing.T) {
	svc, _, _, _, _ := newTestService(t, newFakeBus())
	svc.handleAudioFrame("no-session-suffix", []byte{1, 2})

	svc.activityMu.Lock()
	n := len(svc.activity)
	svc.activityMu.Unlock()
	if n != 0 {
		t.Errorf("expected no activity tracked for a malformed subject, got %d entries", n)
	}
}

func TestEvictIdleSessionsFinalizesOnlyStaleSessions(t *testing.T) {
	svc, _, _, _, _ := newTestService(t, newFakeBus())
	svc.cfg.FinalizationIdle = time.Minute
	svc.cfg.DevFixtures = true

	svc.activityMu.Lock()
	svc.activity["stale-session"] = time.Now().Add(-2 * time.Minute)
	svc.activity["fresh-session"] = time.Now()
	svc.activityMu.Unlock()

	svc.evictIdleSessions(context.Background())

	svc.activityMu.Lock()
	_, staleRemains := svc.activity["stale-session"]
	_, freshRemains := svc.activity["fresh-session"]
	svc.activityMu.Unlock()

	if staleRemains {
		t.Error("expected the stale session to be evicted from activity tracking")
	}
	if !freshRemains {
		t.Error("expected the fresh session to remain tracked")
	}
}

func TestFinalizeAllFinalizesEveryTrackedSessionAndClearsActivity(t *testing.T) {
	svc, _, _, calls, _ := newTestService(t, newFakeBus())
	svc.cfg.DevFixtures = true

	svc.activityMu.Lock()
	svc.activity["dev-session"] = time.Now()
	svc.activityMu.Unlock()

	svc.FinalizeAll(context.Background())

	svc.activityMu.Lock()
	n := len(svc.activity)
	svc.activityMu.Unlock()
	if n != 0 {
		t.Errorf("expected FinalizeAll to clear tracked activity, got %d entries remaining", n)
	}

	got, err := calls.GetBySessionID(context.Background(), "dev-session")
	if err != nil {
		t.Fatalf("GetBySessionID: %v", err)
	}
	if got.Status != store.CallStatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, store.CallStatusCompleted)
	}
}

func TestFinalizeSessionSkipsUploadWhenNoSpooledAudio(t *testing.T) {
	svc, _, _, calls, _ := newTestService(t, newFakeBus())
	svc.cfg.DevFixtures = true

	// No audio frames were ever appended for this session, so the spool
	// file never exists on disk; finalizeSession must still mark the
	// call completed rather than erroring out.
	svc.finalizeSession(context.Background(), "dev-session")

	got, err := calls.GetBySessionID(context.Background(), "dev-session")
	if err != nil {
		t.Fatalf("GetBySessionID: %v", err)
	}
	if got.Status != store.CallStatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, store.CallStatusCompleted)
	}
}
