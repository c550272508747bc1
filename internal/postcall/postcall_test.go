package postcall

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sentinel-voice/core/internal/crm"
	"github.com/sentinel-voice/core/internal/crypto"
	"github.com/sentinel-voice/core/internal/logging"
	"github.com/sentinel-voice/core/internal/store"
	"github.com/sentinel-voice/core/internal/summarizer"
)

type fakeCRM struct {
	recordID string
	err      error
	calls    int
}

func (f *fakeCRM) LogCallActivity(context.Context, crm.ActivityInput) (string, error) {
	f.calls++
	return f.recordID, f.err
}

var _ crm.Adapter = (*fakeCRM)(nil)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(store.AllModels()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, crmAdapter crm.Adapter) (*Service, *store.OrganizationRepository, *store.UserRepository, *store.CallRepository, *store.TranscriptSegmentRepository) {
	t.Helper()
	db := openTestDB(t)
	orgs := store.NewOrganizationRepository(db)
	users := store.NewUserRepository(db)
	calls := store.NewCallRepository(db)
	segs := store.NewTranscriptSegmentRepository(db)

	masterKey := make([]byte, 32)
	keys, err := crypto.NewTenantKeyManager(masterKey)
	if err != nil {
		t.Fatalf("NewTenantKeyManager: %v", err)
	}

	engine, err := summarizer.New("test-key", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("summarizer.New: %v", err)
	}

	svc := New(calls, orgs, segs, keys, engine, crmAdapter, nil, logging.NewNop())
	return svc, orgs, users, calls, segs
}

func seedCallWithSegments(t *testing.T, svc *Service, orgs *store.OrganizationRepository, users *store.UserRepository, calls *store.CallRepository, segs *store.TranscriptSegmentRepository, plaintexts []string) *store.Call {
	t.Helper()
	ctx := context.Background()

	_, wrapped, err := svc.keys.GenerateTenantKey()
	if err != nil {
		t.Fatalf("GenerateTenantKey: %v", err)
	}
	org := &store.Organization{Name: "Acme", DEKWrapped: wrapped}
	if err := orgs.Create(ctx, org); err != nil {
		t.Fatalf("create org: %v", err)
	}
	user := &store.User{OrgID: org.ID, Email: "agent@acme.test", Role: store.RoleAgent}
	if err := users.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	call := &store.Call{OrgID: org.ID, UserID: user.ID, SessionID: "sess-1", Status: store.CallStatusCompleted}
	if err := calls.Create(ctx, call); err != nil {
		t.Fatalf("create call: %v", err)
	}

	enc, err := svc.encryptorForOrg(ctx, org.ID)
	if err != nil {
		t.Fatalf("encryptorForOrg: %v", err)
	}

	var batch []*store.TranscriptSegment
	for i, plain := range plaintexts {
		cipherText, err := enc.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		batch = append(batch, &store.TranscriptSegment{
			CallID:      call.ID,
			CipherText:  cipherText,
			StartOffset: float64(i),
			EndOffset:   float64(i + 1),
			Speaker:     store.SpeakerAgent,
		})
	}
	if err := segs.CreateBatch(ctx, batch); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	return call
}

func TestReconstructTranscriptJoinsSpeakerLines(t *testing.T) {
	svc, orgs, users, calls, segs := newTestService(t, &fakeCRM{})
	call := seedCallWithSegments(t, svc, orgs, users, calls, segs, []string{"hello there", "how can I help"})

	transcript, err := svc.reconstructTranscript(context.Background(), call)
	if err != nil {
		t.Fatalf("reconstructTranscript: %v", err)
	}
	want := "agent: hello there\nagent: how can I help\n"
	if transcript != want {
		t.Errorf("reconstructTranscript() = %q, want %q", transcript, want)
	}
}

func TestReconstructTranscriptSkipsUndecryptableSegment(t *testing.T) {
	svc, orgs, users, calls, segs := newTestService(t, &fakeCRM{})
	call := seedCallWithSegments(t, svc, orgs, users, calls, segs, []string{"first line"})

	// Append a segment whose ciphertext was never produced by this org's
	// encryptor, simulating data corruption or a key mismatch.
	bad := &store.TranscriptSegment{CallID: call.ID, CipherText: "not-valid-ciphertext!!", StartOffset: 5, EndOffset: 6, Speaker: store.SpeakerCustomer}
	if err := segs.CreateBatch(context.Background(), []*store.TranscriptSegment{bad}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	transcript, err := svc.reconstructTranscript(context.Background(), call)
	if err != nil {
		t.Fatalf("reconstructTranscript: %v", err)
	}
	want := "agent: first line\n"
	if transcript != want {
		t.Errorf("reconstructTranscript() = %q, want %q (undecryptable segment should be skipped, not fatal)", transcript, want)
	}
}

func TestEncryptorForOrgCachesAcrossCalls(t *testing.T) {
	svc, orgs, _, _, _ := newTestService(t, &fakeCRM{})
	ctx := context.Background()

	_, wrapped, err := svc.keys.GenerateTenantKey()
	if err != nil {
		t.Fatalf("GenerateTenantKey: %v", err)
	}
	org := &store.Organization{Name: "Acme", DEKWrapped: wrapped}
	if err := orgs.Create(ctx, org); err != nil {
		t.Fatalf("create org: %v", err)
	}

	enc1, err := svc.encryptorForOrg(ctx, org.ID)
	if err != nil {
		t.Fatalf("encryptorForOrg (first): %v", err)
	}
	cipherText, err := enc1.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	enc2, err := svc.encryptorForOrg(ctx, org.ID)
	if err != nil {
		t.Fatalf("encryptorForOrg (second): %v", err)
	}
	plain, err := enc2.Decrypt(cipherText)
	if err != nil || plain != "secret" {
		t.Errorf("Decrypt() = %q, %v, want %q, nil", plain, err, "secret")
	}
}

func TestProcessDropsCallEndedWithNoMatchingCall(t *testing.T) {
	svc, _, _, _, _ := newTestService(t, &fakeCRM{})
	if err := svc.process(context.Background(), "no-such-session"); err != nil {
		t.Errorf("process() = %v, want nil for an audio-only session with no call row", err)
	}
}

func TestProcessDropsAlreadyProcessedCall(t *testing.T) {
	svc, orgs, users, calls, segs := newTestService(t, &fakeCRM{})
	call := seedCallWithSegments(t, svc, orgs, users, calls, segs, []string{"hi"})

	sentiment := 0.5
	if _, err := calls.MarkProcessed(context.Background(), call.ID, "already done", &sentiment, "task-1"); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}

	crmAdapter := &fakeCRM{}
	svc.crm = crmAdapter
	if err := svc.process(context.Background(), "sess-1"); err != nil {
		t.Fatalf("process() = %v, want nil", err)
	}
	if crmAdapter.calls != 0 {
		t.Error("expected process() to skip the CRM sync for an already-processed call")
	}
}
