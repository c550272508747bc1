package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/sentinel-voice/core/internal/events"
	"github.com/sentinel-voice/core/internal/objectstore"
)

func (s *Service) handleCallEnded(_ string, data []byte) {
	var ended events.CallEnded
	if err := json.Unmarshal(data, &ended); err != nil {
		s.log.Warn("persistence: malformed call.ended event", "error", err)
		return
	}

	s.activityMu.Lock()
	delete(s.activity, ended.SessionID)
	s.activityMu.Unlock()

	ctx := context.Background()
	s.flushPending(ctx)
	s.finalizeSession(ctx, ended.SessionID)
}

// finalizeSession transcodes the session's spooled PCM to Ogg/Opus and
// uploads it, falling back to uploading the raw PCM if transcoding fails
// so a transcoding outage never loses a recording outright. Spool files
// are only deleted once the upload actually succeeds; a failed upload
// is retried with exponential backoff and the spool is kept in place if
// every retry is exhausted, so a later manual or scheduled pass can
// still recover it.
func (s *Service) finalizeSession(ctx context.Context, sessionID string) {
	defer func() {
		_ = s.spool.Close(sessionID)
		if s.Cleanup != nil {
			s.Cleanup(ctx, sessionID)
		}
	}()

	res, err := s.resolveSession(ctx, sessionID)
	if err != nil {
		s.log.Warn("persistence: cannot finalize unknown session", "session_id", sessionID, "error", err)
		return
	}

	rawPath := s.spool.rawPath(sessionID)
	var key string
	cleanupSpool := true

	if _, statErr := os.Stat(rawPath); statErr != nil {
		s.log.Info("persistence: no spooled audio for session, skipping recording upload", "session_id", sessionID)
	} else {
		outPath, transcodeErr := s.transcode(ctx, sessionID, rawPath)
		uploadPath, uploadKey, contentType := outPath, objectstore.RecordingKey(sessionID, "ogg"), "audio/ogg"
		if transcodeErr != nil {
			s.log.Warn("persistence: transcode failed, falling back to raw pcm upload", "session_id", sessionID, "error", transcodeErr)
			uploadPath, uploadKey, contentType = rawPath, objectstore.RecordingKey(sessionID, "pcm"), "audio/pcm"
		}

		if uploadErr := s.uploadWithBackoff(ctx, uploadPath, uploadKey, contentType); uploadErr != nil {
			s.log.Warn("persistence: recording upload exhausted retries, keeping spool", "session_id", sessionID, "error", uploadErr)
			cleanupSpool = false
		} else {
			key = uploadKey
		}
	}

	if err := s.calls.MarkCompleted(ctx, res.call.ID, time.Now().UTC(), key); err != nil {
		s.log.Warn("persistence: failed to mark call completed", "call_id", res.call.ID, "error", err)
	}

	if cleanupSpool {
		_ = os.Remove(rawPath)
		_ = os.Remove(s.spool.compressedPath(sessionID))
	}
}

// transcode runs ffmpeg to produce an Ogg/Opus encoding of the spooled
// PCM and returns its path.
func (s *Service) transcode(ctx context.Context, sessionID, rawPath string) (string, error) {
	outPath := s.spool.compressedPath(sessionID)

	cctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(cctx, s.cfg.FFmpegPath,
		"-f", "s16le",
		"-ar", "16000",
		"-ac", "1",
		"-i", rawPath,
		"-c:a", "libopus",
		"-b:a", s.cfg.RecordingBitrate,
		"-y", outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg: %w: %s", err, stderr.String())
	}
	return outPath, nil
}

// uploadWithBackoff retries a failed upload with exponential backoff
// (1s doubling to a 60s cap), bounded by Config.MaxUploadRetries.
func (s *Service) uploadWithBackoff(ctx context.Context, path, key, contentType string) error {
	backoff := time.Second
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxUploadRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
		}

		_, err := s.objectstore.UploadFile(ctx, path, key, contentType)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}
