// Package postcall reacts to call.ended by summarizing the finished
// call and syncing the result to the tenant's CRM exactly once.
package postcall

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/sentinel-voice/core/internal/bus"
	"github.com/sentinel-voice/core/internal/crm"
	"github.com/sentinel-voice/core/internal/crypto"
	"github.com/sentinel-voice/core/internal/events"
	"github.com/sentinel-voice/core/internal/logging"
	"github.com/sentinel-voice/core/internal/store"
	"github.com/sentinel-voice/core/internal/summarizer"
)

// queueGroup ensures exactly one replica processes a given call.ended
// delivery, across however many Post-Call Worker instances are running.
const queueGroup = "integrations_pipeline"

// Service is the Post-Call Worker.
type Service struct {
	calls *store.CallRepository
	orgs  *store.OrganizationRepository
	segs  *store.TranscriptSegmentRepository
	keys  *crypto.TenantKeyManager

	engine *summarizer.Engine
	crm    crm.Adapter

	b   bus.Bus
	log logging.Logger

	mu        sync.Mutex
	orgCipher map[uuid.UUID]*crypto.DataEncryptor
}

// New builds a Service.
func New(calls *store.CallRepository, orgs *store.OrganizationRepository, segs *store.TranscriptSegmentRepository, keys *crypto.TenantKeyManager, engine *summarizer.Engine, crmAdapter crm.Adapter, b bus.Bus, log logging.Logger) *Service {
	return &Service{
		calls:     calls,
		orgs:      orgs,
		segs:      segs,
		keys:      keys,
		engine:    engine,
		crm:       crmAdapter,
		b:         b,
		log:       log,
		orgCipher: make(map[uuid.UUID]*crypto.DataEncryptor),
	}
}

// Start subscribes to call.ended under the post-call queue group.
func (s *Service) Start() error {
	_, err := s.b.QueueSubscribe(events.Sub.CallEnded(), queueGroup, s.handleCallEnded)
	return err
}

func (s *Service) handleCallEnded(_ string, data []byte) {
	var ended events.CallEnded
	if err := json.Unmarshal(data, &ended); err != nil {
		s.log.Warn("postcall: malformed call.ended event", "error", err)
		return
	}

	ctx := context.Background()
	if err := s.process(ctx, ended.SessionID); err != nil {
		s.log.Warn("postcall: processing failed", "session_id", ended.SessionID, "error", err)
	}
}

func (s *Service) process(ctx context.Context, sessionID string) error {
	call, err := s.calls.GetBySessionID(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Info("postcall: no call for session, dropping (audio-only session)", "session_id", sessionID)
		return nil
	}
	if err != nil {
		return err
	}
	if call.Status == store.CallStatusProcessed {
		s.log.Info("postcall: call already processed, dropping duplicate", "session_id", sessionID)
		return nil
	}

	transcript, err := s.reconstructTranscript(ctx, call)
	if err != nil {
		return err
	}

	summary, err := s.engine.Summarize(ctx, transcript)
	if err != nil {
		s.log.Warn("postcall: summarizer failed, leaving call for external retry", "call_id", call.ID, "error", err)
		return nil
	}

	recordID, err := s.crm.LogCallActivity(ctx, crm.ActivityInput{CustomerEmail: call.CustomerEmail, Summary: summary})
	sentimentScore := summary.SentimentScore()

	if errors.Is(err, crm.ErrCustomerNotFound) {
		ok, markErr := s.calls.MarkCRMFailed(ctx, call.ID, summary.Summary, &sentimentScore)
		if markErr != nil {
			return markErr
		}
		if ok {
			s.log.Info("postcall: no matching crm contact, marked crm_failed", "call_id", call.ID)
		}
		return nil
	}
	if err != nil {
		s.log.Warn("postcall: crm sync failed, leaving call for external retry", "call_id", call.ID, "error", err)
		return nil
	}

	if _, err := s.calls.MarkProcessed(ctx, call.ID, summary.Summary, &sentimentScore, recordID); err != nil {
		return err
	}
	s.log.Info("postcall: call processed", "call_id", call.ID, "sentiment", summary.Sentiment)
	return nil
}

// reconstructTranscript loads every segment for call ordered by
// start_offset, decrypts it under the tenant's DEK, and joins them as
// "{speaker}: {text}\n" lines.
func (s *Service) reconstructTranscript(ctx context.Context, call *store.Call) (string, error) {
	segments, err := s.segs.ListByCallOrdered(ctx, call.ID)
	if err != nil {
		return "", err
	}

	enc, err := s.encryptorForOrg(ctx, call.OrgID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, seg := range segments {
		text, err := enc.Decrypt(seg.CipherText)
		if err != nil {
			s.log.Warn("postcall: failed to decrypt segment, skipping", "segment_id", seg.ID, "error", err)
			continue
		}
		b.WriteString(seg.Speaker)
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (s *Service) encryptorForOrg(ctx context.Context, orgID uuid.UUID) (*crypto.DataEncryptor, error) {
	s.mu.Lock()
	if enc, ok := s.orgCipher[orgID]; ok {
		s.mu.Unlock()
		return enc, nil
	}
	s.mu.Unlock()

	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	dek, err := s.keys.UnwrapTenantKey(org.DEKWrapped)
	if err != nil {
		return nil, err
	}
	enc, err := crypto.NewDataEncryptor(dek)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.orgCipher[orgID] = enc
	s.mu.Unlock()
	return enc, nil
}
