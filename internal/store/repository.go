package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sentinel-voice/core/internal/apperr"
)

// ErrNotFound is returned by lookups with no matching row.
var ErrNotFound = errors.New("store: not found")

// OrganizationRepository persists tenants and their wrapped DEKs.
type OrganizationRepository struct{ db *gorm.DB }

func NewOrganizationRepository(db *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) Create(ctx context.Context, org *Organization) error {
	if err := r.db.WithContext(ctx).Create(org).Error; err != nil {
		return apperr.Transient("store.organization.create", err)
	}
	return nil
}

func (r *OrganizationRepository) Get(ctx context.Context, id uuid.UUID) (*Organization, error) {
	var org Organization
	err := r.db.WithContext(ctx).First(&org, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.Transient("store.organization.get", err)
	}
	return &org, nil
}

// UserRepository persists agents, managers, and admins.
type UserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return apperr.Transient("store.user.create", err)
	}
	return nil
}

func (r *UserRepository) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.Transient("store.user.get", err)
	}
	return &user, nil
}

// CallRepository persists call sessions and their lifecycle.
type CallRepository struct{ db *gorm.DB }

func NewCallRepository(db *gorm.DB) *CallRepository {
	return &CallRepository{db: db}
}

func (r *CallRepository) Create(ctx context.Context, call *Call) error {
	if err := r.db.WithContext(ctx).Create(call).Error; err != nil {
		return apperr.Transient("store.call.create", err)
	}
	return nil
}

func (r *CallRepository) GetBySessionID(ctx context.Context, sessionID string) (*Call, error) {
	var call Call
	err := r.db.WithContext(ctx).First(&call, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.Transient("store.call.get_by_session_id", err)
	}
	return &call, nil
}

// MarkCompleted closes out a call's active window. It does not change
// status to "processed" — only the post-call worker does that, after
// summarization and CRM sync.
func (r *CallRepository) MarkCompleted(ctx context.Context, id uuid.UUID, endTime time.Time, s3KeyRaw string) error {
	res := r.db.WithContext(ctx).Model(&Call{}).
		Where("id = ? AND status = ?", id, CallStatusInProgress).
		Updates(map[string]interface{}{"status": CallStatusCompleted, "end_time": endTime, "s3_key_raw": s3KeyRaw})
	if res.Error != nil {
		return apperr.Transient("store.call.mark_completed", res.Error)
	}
	return nil
}

// MarkProcessed transitions a completed call to processed, recording the
// summary, sentiment, and CRM linkage. It only ever runs from
// "completed" so a duplicate call.ended delivery is a no-op.
func (r *CallRepository) MarkProcessed(ctx context.Context, id uuid.UUID, summary string, sentiment *float64, crmRecordID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Call{}).
		Where("id = ? AND status = ?", id, CallStatusCompleted).
		Updates(map[string]interface{}{
			"status":          CallStatusProcessed,
			"summary":         summary,
			"sentiment_score": sentiment,
			"crm_record_id":   crmRecordID,
		})
	if res.Error != nil {
		return false, apperr.Transient("store.call.mark_processed", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkCRMFailed transitions a completed call to crm_failed so the
// summarization work is not silently lost on CRM sync failure.
func (r *CallRepository) MarkCRMFailed(ctx context.Context, id uuid.UUID, summary string, sentiment *float64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Call{}).
		Where("id = ? AND status = ?", id, CallStatusCompleted).
		Updates(map[string]interface{}{
			"status":          CallStatusCRMFailed,
			"summary":         summary,
			"sentiment_score": sentiment,
		})
	if res.Error != nil {
		return false, apperr.Transient("store.call.mark_crm_failed", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// TranscriptSegmentRepository persists encrypted transcript segments.
type TranscriptSegmentRepository struct{ db *gorm.DB }

func NewTranscriptSegmentRepository(db *gorm.DB) *TranscriptSegmentRepository {
	return &TranscriptSegmentRepository{db: db}
}

// CreateBatch inserts segments in a single statement, matching the
// persistence worker's batched flush.
func (r *TranscriptSegmentRepository) CreateBatch(ctx context.Context, segments []*TranscriptSegment) error {
	if len(segments) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&segments).Error; err != nil {
		return apperr.Transient("store.transcript_segment.create_batch", err)
	}
	return nil
}

// ListByCallOrdered returns every segment for a call ordered by
// start_offset, the ordering the post-call summarizer relies on to
// reconstruct a coherent transcript.
func (r *TranscriptSegmentRepository) ListByCallOrdered(ctx context.Context, callID uuid.UUID) ([]*TranscriptSegment, error) {
	var segments []*TranscriptSegment
	err := r.db.WithContext(ctx).
		Where("call_id = ?", callID).
		Order("start_offset ASC").
		Find(&segments).Error
	if err != nil {
		return nil, apperr.Transient("store.transcript_segment.list_by_call", err)
	}
	return segments, nil
}
