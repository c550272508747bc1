package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentinel-voice/core/internal/crypto"
	"github.com/sentinel-voice/core/internal/store"
)

// resolved bundles what the batching flusher needs to persist a segment:
// the call it belongs to, and a ready encryptor for its tenant's DEK.
type resolved struct {
	call      *store.Call
	encryptor *crypto.DataEncryptor
}

// sessionCache memoizes session-id -> resolved call/encryptor lookups so
// the hot path doesn't round-trip to the database for every segment.
type sessionCache struct {
	mu      sync.Mutex
	byID    map[string]*resolved
	byOrgID map[uuid.UUID]*crypto.DataEncryptor
}

func newSessionCache() *sessionCache {
	return &sessionCache{
		byID:    make(map[string]*resolved),
		byOrgID: make(map[uuid.UUID]*crypto.DataEncryptor),
	}
}

// resolveSession looks up (and caches) the call and tenant encryptor for
// sessionID. When the call is missing and DevFixtures is enabled, it
// bootstraps a placeholder organization/user/call so a standalone dev
// deployment can exercise the full pipeline without a provisioning
// service in front of it.
func (s *Service) resolveSession(ctx context.Context, sessionID string) (*resolved, error) {
	s.sessions.mu.Lock()
	if r, ok := s.sessions.byID[sessionID]; ok {
		s.sessions.mu.Unlock()
		return r, nil
	}
	s.sessions.mu.Unlock()

	call, err := s.calls.GetBySessionID(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		if !s.cfg.DevFixtures {
			return nil, fmt.Errorf("persistence: no call for session %s: %w", sessionID, err)
		}
		call, err = s.bootstrapFixture(ctx, sessionID)
	}
	if err != nil {
		return nil, err
	}

	enc, err := s.encryptorForOrg(ctx, call.OrgID)
	if err != nil {
		return nil, err
	}

	r := &resolved{call: call, encryptor: enc}
	s.sessions.mu.Lock()
	s.sessions.byID[sessionID] = r
	s.sessions.mu.Unlock()
	return r, nil
}

func (s *Service) encryptorForOrg(ctx context.Context, orgID uuid.UUID) (*crypto.DataEncryptor, error) {
	s.sessions.mu.Lock()
	if enc, ok := s.sessions.byOrgID[orgID]; ok {
		s.sessions.mu.Unlock()
		return enc, nil
	}
	s.sessions.mu.Unlock()

	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("persistence: load org %s: %w", orgID, err)
	}
	dek, err := s.keys.UnwrapTenantKey(org.DEKWrapped)
	if err != nil {
		return nil, err
	}
	enc, err := crypto.NewDataEncryptor(dek)
	if err != nil {
		return nil, err
	}

	s.sessions.mu.Lock()
	s.sessions.byOrgID[orgID] = enc
	s.sessions.mu.Unlock()
	return enc, nil
}

// bootstrapFixture creates a throwaway tenant, user, and call so a dev
// deployment has somewhere to attach segments when no provisioning
// service has created one up front. Gated behind Config.DevFixtures;
// never runs in a production wiring.
func (s *Service) bootstrapFixture(ctx context.Context, sessionID string) (*store.Call, error) {
	_, wrapped, err := s.keys.GenerateTenantKey()
	if err != nil {
		return nil, err
	}

	org := &store.Organization{Name: "dev-fixture", DEKWrapped: wrapped}
	if err := s.orgs.Create(ctx, org); err != nil {
		return nil, err
	}

	user := &store.User{
		OrgID:    org.ID,
		Email:    fmt.Sprintf("dev-fixture+%s@sentinel.local", sessionID),
		FullName: "Dev Fixture Agent",
		Role:     store.RoleAgent,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	call := &store.Call{
		OrgID:     org.ID,
		UserID:    user.ID,
		SessionID: sessionID,
		StartTime: time.Now().UTC(),
		Status:    store.CallStatusInProgress,
	}
	if err := s.calls.Create(ctx, call); err != nil {
		return nil, err
	}

	s.log.Info("persistence: bootstrapped dev fixture", "session_id", sessionID, "org_id", org.ID, "call_id", call.ID)
	return call, nil
}
