package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(AllModels()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedOrgAndUser(t *testing.T, db *gorm.DB) (*Organization, *User) {
	t.Helper()
	ctx := context.Background()
	orgs := NewOrganizationRepository(db)
	users := NewUserRepository(db)

	org := &Organization{Name: "Acme", DEKWrapped: "wrapped-dek"}
	if err := orgs.Create(ctx, org); err != nil {
		t.Fatalf("create org: %v", err)
	}
	user := &User{OrgID: org.ID, Email: "agent@acme.test", Role: RoleAgent}
	if err := users.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return org, user
}

func TestOrganizationCreateAssignsID(t *testing.T) {
	db := openTestDB(t)
	org, _ := seedOrgAndUser(t, db)
	if org.ID == uuid.Nil {
		t.Error("expected BeforeCreate to assign a non-nil UUID")
	}
}

func TestOrganizationGetNotFound(t *testing.T) {
	db := openTestDB(t)
	orgs := NewOrganizationRepository(db)
	if _, err := orgs.Get(context.Background(), uuid.New()); err != ErrNotFound {
		t.Errorf("Get on missing org = %v, want ErrNotFound", err)
	}
}

func TestCallStatusTransitions(t *testing.T) {
	db := openTestDB(t)
	org, user := seedOrgAndUser(t, db)
	ctx := context.Background()
	calls := NewCallRepository(db)

	call := &Call{OrgID: org.ID, UserID: user.ID, SessionID: "sess-1", Status: CallStatusInProgress}
	if err := calls.Create(ctx, call); err != nil {
		t.Fatalf("create call: %v", err)
	}

	if err := calls.MarkCompleted(ctx, call.ID, time.Now().UTC(), "s3/raw/sess-1.pcm"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	got, err := calls.GetBySessionID(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetBySessionID: %v", err)
	}
	if got.Status != CallStatusCompleted {
		t.Fatalf("Status = %q, want %q", got.Status, CallStatusCompleted)
	}

	sentiment := 0.8
	ok, err := calls.MarkProcessed(ctx, call.ID, "call went well", &sentiment, "task-123")
	if err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	if !ok {
		t.Fatal("expected MarkProcessed to affect a row from completed status")
	}

	got, err = calls.GetBySessionID(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetBySessionID: %v", err)
	}
	if got.Status != CallStatusProcessed {
		t.Fatalf("Status = %q, want %q", got.Status, CallStatusProcessed)
	}
}

func TestMarkProcessedIsNoOpWhenNotCompleted(t *testing.T) {
	db := openTestDB(t)
	org, user := seedOrgAndUser(t, db)
	ctx := context.Background()
	calls := NewCallRepository(db)

	call := &Call{OrgID: org.ID, UserID: user.ID, SessionID: "sess-2", Status: CallStatusInProgress}
	if err := calls.Create(ctx, call); err != nil {
		t.Fatalf("create call: %v", err)
	}

	sentiment := 0.5
	ok, err := calls.MarkProcessed(ctx, call.ID, "summary", &sentiment, "task-1")
	if err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	if ok {
		t.Error("expected MarkProcessed to be a no-op for a call still in_progress")
	}

	got, err := calls.GetBySessionID(ctx, "sess-2")
	if err != nil {
		t.Fatalf("GetBySessionID: %v", err)
	}
	if got.Status != CallStatusInProgress {
		t.Errorf("Status changed unexpectedly to %q", got.Status)
	}
}

func TestMarkProcessedTwiceIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	org, user := seedOrgAndUser(t, db)
	ctx := context.Background()
	calls := NewCallRepository(db)

	call := &Call{OrgID: org.ID, UserID: user.ID, SessionID: "sess-3", Status: CallStatusInProgress}
	if err := calls.Create(ctx, call); err != nil {
		t.Fatalf("create call: %v", err)
	}
	if err := calls.MarkCompleted(ctx, call.ID, time.Now().UTC(), ""); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	sentiment := 0.5
	ok1, err := calls.MarkProcessed(ctx, call.ID, "first pass", &sentiment, "task-1")
	if err != nil || !ok1 {
		t.Fatalf("first MarkProcessed: ok=%v err=%v", ok1, err)
	}

	// A duplicate call.ended delivery must not re-apply the transition:
	// the status is no longer "completed" so the WHERE clause matches
	// nothing.
	ok2, err := calls.MarkProcessed(ctx, call.ID, "second pass", &sentiment, "task-2")
	if err != nil {
		t.Fatalf("second MarkProcessed: %v", err)
	}
	if ok2 {
		t.Error("expected second MarkProcessed on an already-processed call to be a no-op")
	}

	got, _ := calls.GetBySessionID(ctx, "sess-3")
	if got.CRMRecordID != "task-1" {
		t.Errorf("CRMRecordID = %q, want unchanged %q", got.CRMRecordID, "task-1")
	}
}

func TestTranscriptSegmentsListedInStartOffsetOrder(t *testing.T) {
	db := openTestDB(t)
	org, user := seedOrgAndUser(t, db)
	ctx := context.Background()
	calls := NewCallRepository(db)
	segs := NewTranscriptSegmentRepository(db)

	call := &Call{OrgID: org.ID, UserID: user.ID, SessionID: "sess-4", Status: CallStatusInProgress}
	if err := calls.Create(ctx, call); err != nil {
		t.Fatalf("create call: %v", err)
	}

	batch := []*TranscriptSegment{
		{CallID: call.ID, CipherText: "c3", StartOffset: 4.0, EndOffset: 5.0, Speaker: SpeakerAgent},
		{CallID: call.ID, CipherText: "c1", StartOffset: 0.0, EndOffset: 1.0, Speaker: SpeakerCustomer},
		{CallID: call.ID, CipherText: "c2", StartOffset: 1.5, EndOffset: 3.0, Speaker: SpeakerAgent},
	}
	if err := segs.CreateBatch(ctx, batch); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	ordered, err := segs.ListByCallOrdered(ctx, call.ID)
	if err != nil {
		t.Fatalf("ListByCallOrdered: %v", err)
	}
	if len(ordered) != 3 {
		t.Fatalf("len(ordered) = %d, want 3", len(ordered))
	}
	wantOrder := []string{"c1", "c2", "c3"}
	for i, want := range wantOrder {
		if ordered[i].CipherText != want {
			t.Errorf("ordered[%d].CipherText = %q, want %q", i, ordered[i].CipherText, want)
		}
	}
}

func TestCreateBatchEmptyIsNoOp(t *testing.T) {
	db := openTestDB(t)
	segs := NewTranscriptSegmentRepository(db)
	if err := segs.CreateBatch(context.Background(), nil); err != nil {
		t.Errorf("CreateBatch(nil) = %v, want nil", err)
	}
}
