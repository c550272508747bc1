// Package store holds the relational schema and repositories backing
// tenants, users, calls, and transcript segments. It wraps gorm with the
// go-gorm/caches query-cache plugin and golang-migrate schema migrations.
package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Call status values. The post-call pipeline only ever transitions a
// call from "completed" to "processed" or "crm_failed"; nothing moves a
// call backwards.
const (
	CallStatusInProgress = "in_progress"
	CallStatusCompleted  = "completed"
	CallStatusProcessed  = "processed"
	CallStatusCRMFailed  = "crm_failed"
)

// User roles.
const (
	RoleAgent   = "agent"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

// Speaker labels for TranscriptSegment.
const (
	SpeakerAgent    = "agent"
	SpeakerCustomer = "customer"
)

// Organization is the top-level tenant boundary. DEKWrapped holds the
// tenant's data-encryption key, wrapped under the deployment KEK (see
// internal/crypto).
type Organization struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name        string    `gorm:"type:varchar(255);not null"`
	APIKeyHash  string    `gorm:"column:api_key_hash;type:varchar(255)"`
	DEKWrapped  string    `gorm:"column:dek_wrapped;type:text;not null"`
	CreatedAt   time.Time `gorm:"default:now()"`
}

func (Organization) TableName() string { return "organizations" }

func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// User is an agent, manager, or admin within an Organization.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrgID     uuid.UUID `gorm:"column:org_id;type:uuid;not null;index"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	FullName  string    `gorm:"column:full_name;type:varchar(255)"`
	Role      string    `gorm:"type:varchar(20);not null;default:agent"`
	CreatedAt time.Time `gorm:"default:now()"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Call is a single voice-interaction session.
type Call struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	OrgID       uuid.UUID  `gorm:"column:org_id;type:uuid;not null;index"`
	UserID      uuid.UUID  `gorm:"column:user_id;type:uuid;not null"`
	SessionID   string     `gorm:"column:session_id;type:varchar(64);uniqueIndex;not null"`
	StartTime   time.Time  `gorm:"column:start_time;default:now()"`
	EndTime     *time.Time `gorm:"column:end_time"`
	S3KeyRaw    string     `gorm:"column:s3_key_raw;type:varchar(512)"`
	Status      string     `gorm:"type:varchar(20);not null;default:in_progress;index"`
	CustomerPhone string   `gorm:"column:customer_phone;type:varchar(32)"`
	CustomerEmail string   `gorm:"column:customer_email;type:varchar(255)"`
	Summary     string     `gorm:"type:text"`
	SentimentScore *float64 `gorm:"column:sentiment_score"`
	CRMRecordID string     `gorm:"column:crm_record_id;type:varchar(128)"`
}

func (Call) TableName() string { return "calls" }

func (c *Call) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// TranscriptSegment is one diarized, time-bounded utterance within a Call.
type TranscriptSegment struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	CallID      uuid.UUID `gorm:"column:call_id;type:uuid;not null;index"`
	CipherText  string    `gorm:"column:cipher_text;type:text;not null"`
	StartOffset float64   `gorm:"column:start_offset;not null"`
	EndOffset   float64   `gorm:"column:end_offset;not null"`
	Speaker     string    `gorm:"type:varchar(20);not null;default:agent"`
	VectorID    string    `gorm:"column:vector_id;type:varchar(64)"`
}

func (TranscriptSegment) TableName() string { return "transcript_segments" }

func (t *TranscriptSegment) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// AllModels lists every model, for AutoMigrate-based schema bootstrapping
// in tests; production schema changes go through golang-migrate.
func AllModels() []interface{} {
	return []interface{}{&Organization{}, &User{}, &Call{}, &TranscriptSegment{}}
}
