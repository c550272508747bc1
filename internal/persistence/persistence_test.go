package persistence

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sentinel-voice/core/internal/bus"
	"github.com/sentinel-voice/core/internal/crypto"
	"github.com/sentinel-voice/core/internal/logging"
	"github.com/sentinel-voice/core/internal/store"
)

type fakeBus struct {
	published map[string][][]byte
}

func newFakeBus() *fakeBus { return &fakeBus{published: make(map[string][][]byte)} }

func (f *fakeBus) Publish(subject string, data []byte) error {
	f.published[subject] = append(f.published[subject], data)
	return nil
}
func (f *fakeBus) Subscribe(string, bus.Handler) (bus.Subscription, error)      { return nil, nil }
func (f *fakeBus) QueueSubscribe(string, string, bus.Handler) (bus.Subscription, error) {
	return nil, nil
}
func (f *fakeBus) Drain(context.Context) error { return nil }
func (f *fakeBus) Close() error                { return nil }

var _ bus.Bus = (*fakeBus)(nil)

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

func newTestService(t *testing.T, b bus.Bus) (*Service, *store.OrganizationRepository, *store.UserRepository, *store.CallRepository, *store.TranscriptSegmentRepository) {
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

	spool, err := NewSpool(t.TempDir())
	if err != nil {
		t.Fatalf("NewSpool: %v", err)
	}

	svc := &Service{
		cfg:      DefaultConfig(),
		spool:    spool,
		orgs:     orgs,
		users:    users,
		calls:    calls,
		segs:     segs,
		keys:     keys,
		b:        b,
		log:      logging.NewNop(),
		sessions: newSessionCache(),
		pending:  newPendingBatch(),
		activity: make(map[string]time.Time),
	}
	return svc, orgs, users, calls, segs
}
