package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"school-approval-service/internal/models"
)

// NoticeTransition carries the fields a delegation transition changes.
// ExpectedStatus guards the conditional update.
type NoticeTransition struct {
	ExpectedStatus string
	NewStatus      string
	Fields         map[string]interface{}
}

// DelegationRepositoryInterface defines delegation persistence operations
type DelegationRepositoryInterface interface {
	CreateNotice(ctx context.Context, notice *models.DelegationNotice) error
	GetNoticeByID(ctx context.Context, id uuid.UUID) (*models.DelegationNotice, error)
	ListPendingNotices(ctx context.Context, limit, offset int) ([]models.DelegationNotice, int64, error)
	ListNoticesForStaff(ctx context.Context, staffID uuid.UUID, limit, offset int) ([]models.DelegationNotice, int64, error)
	ApplyNoticeTransition(ctx context.Context, notice *models.DelegationNotice, transition NoticeTransition) error
	AppendNoticeHistory(ctx context.Context, entry *models.DelegationHistoryEntry) error
	AddNotification(ctx context.Context, notification *models.DelegationNotification) error
	ListNotificationsForRecipient(ctx context.Context, recipientID uuid.UUID, unreadOnly bool) ([]models.DelegationNotification, error)
	GetNotification(ctx context.Context, noticeID, notificationID uuid.UUID) (*models.DelegationNotification, error)
	MarkNotificationRead(ctx context.Context, notificationID uuid.UUID) error
	FindActiveGranting(ctx context.Context, delegateID uuid.UUID, now time.Time) ([]models.DelegationNotice, error)
	ExpireActiveNotices(ctx context.Context, now time.Time) (int64, error)
	CreateAuditLog(ctx context.Context, entry *models.WorkflowAuditLog) error
	WithTransaction(ctx context.Context, fn func(txRepo DelegationRepositoryInterface) error) error
}

// DelegationRepository handles database operations for delegation notices
type DelegationRepository struct {
	db *gorm.DB
}

// NewDelegationRepository creates a new DelegationRepository
func NewDelegationRepository(db *gorm.DB) *DelegationRepository {
	return &DelegationRepository{db: db}
}

// CreateNotice persists a new delegation notice
func (r *DelegationRepository) CreateNotice(ctx context.Context, notice *models.DelegationNotice) error {
	if err := r.db.WithContext(ctx).Create(notice).Error; err != nil {
		return errors.Wrap(err, "create delegation notice")
	}
	return nil
}

// GetNoticeByID retrieves a notice with history and notifications
func (r *DelegationRepository) GetNoticeByID(ctx context.Context, id uuid.UUID) (*models.DelegationNotice, error) {
	var notice models.DelegationNotice
	err := r.db.WithContext(ctx).
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Notifications").
		Where("id = ?", id).
		First(&notice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get delegation notice")
	}
	return &notice, nil
}

// ListPendingNotices retrieves notices awaiting a decision
func (r *DelegationRepository) ListPendingNotices(ctx context.Context, limit, offset int) ([]models.DelegationNotice, int64, error) {
	return r.listNotices(ctx, r.db.WithContext(ctx).Model(&models.DelegationNotice{}).
		Where("status = ?", models.DelegationStatusPending), limit, offset)
}

// ListNoticesForStaff retrieves notices where the staff member is
// delegator, delegate or creator
func (r *DelegationRepository) ListNoticesForStaff(ctx context.Context, staffID uuid.UUID, limit, offset int) ([]models.DelegationNotice, int64, error) {
	return r.listNotices(ctx, r.db.WithContext(ctx).Model(&models.DelegationNotice{}).
		Where("delegator_id = ? OR delegate_id = ? OR created_by = ?", staffID, staffID, staffID), limit, offset)
}

func (r *DelegationRepository) listNotices(ctx context.Context, query *gorm.DB, limit, offset int) ([]models.DelegationNotice, int64, error) {
	var notices []models.DelegationNotice
	var total int64

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count delegation notices")
	}

	if limit <= 0 {
		limit = 20
	}

	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&notices).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list delegation notices")
	}
	return notices, total, nil
}

// ApplyNoticeTransition moves a notice between lifecycle states with
// optimistic locking. The guard on version + expected status makes
// concurrent transitions (including the expiry sweep racing a manual
// revoke) mutually exclusive.
func (r *DelegationRepository) ApplyNoticeTransition(ctx context.Context, notice *models.DelegationNotice, transition NoticeTransition) error {
	oldVersion := notice.Version

	updates := map[string]interface{}{
		"status":     transition.NewStatus,
		"version":    oldVersion + 1,
		"updated_at": time.Now(),
	}
	for k, v := range transition.Fields {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).Model(&models.DelegationNotice{}).
		Where("id = ? AND version = ? AND status = ?", notice.ID, oldVersion, transition.ExpectedStatus).
		Updates(updates)

	if result.Error != nil {
		return errors.Wrap(result.Error, "apply delegation transition")
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}

	notice.Status = transition.NewStatus
	notice.Version = oldVersion + 1
	return nil
}

// AppendNoticeHistory adds an action entry. Append-only.
func (r *DelegationRepository) AppendNoticeHistory(ctx context.Context, entry *models.DelegationHistoryEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return errors.Wrap(err, "append delegation history")
	}
	return nil
}

// AddNotification queues an unread notification for a recipient
func (r *DelegationRepository) AddNotification(ctx context.Context, notification *models.DelegationNotification) error {
	if err := r.db.WithContext(ctx).Create(notification).Error; err != nil {
		return errors.Wrap(err, "add delegation notification")
	}
	return nil
}

// ListNotificationsForRecipient retrieves a staff member's notifications
func (r *DelegationRepository) ListNotificationsForRecipient(ctx context.Context, recipientID uuid.UUID, unreadOnly bool) ([]models.DelegationNotification, error) {
	var notifications []models.DelegationNotification

	query := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID)
	if unreadOnly {
		query = query.Where("read = ?", false)
	}

	err := query.Order("created_at DESC").Find(&notifications).Error
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	return notifications, nil
}

// GetNotification retrieves a single notification scoped to its notice
func (r *DelegationRepository) GetNotification(ctx context.Context, noticeID, notificationID uuid.UUID) (*models.DelegationNotification, error) {
	var notification models.DelegationNotification
	err := r.db.WithContext(ctx).
		Where("id = ? AND notice_id = ?", notificationID, noticeID).
		First(&notification).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get notification")
	}
	return &notification, nil
}

// MarkNotificationRead flips the read flag
func (r *DelegationRepository) MarkNotificationRead(ctx context.Context, notificationID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.DelegationNotification{}).
		Where("id = ?", notificationID).
		Update("read", true)
	if result.Error != nil {
		return errors.Wrap(result.Error, "mark notification read")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindActiveGranting finds notices currently granting authority to the
// delegate: stored status active, effective, and not past expiry.
func (r *DelegationRepository) FindActiveGranting(ctx context.Context, delegateID uuid.UUID, now time.Time) ([]models.DelegationNotice, error) {
	var notices []models.DelegationNotice
	err := r.db.WithContext(ctx).
		Where("delegate_id = ? AND status = ?", delegateID, models.DelegationStatusActive).
		Where("effective_date <= ?", now).
		Where("expiry_date IS NULL OR expiry_date > ?", now).
		Find(&notices).Error
	if err != nil {
		return nil, errors.Wrap(err, "find active delegations")
	}
	return notices, nil
}

// ExpireActiveNotices converges stored status for notices whose expiry
// has passed. Idempotent: the status guard means a second run, or a
// run racing a manual revoke, matches zero rows.
func (r *DelegationRepository) ExpireActiveNotices(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.DelegationNotice{}).
		Where("status = ? AND expiry_date IS NOT NULL AND expiry_date <= ?", models.DelegationStatusActive, now).
		Updates(map[string]interface{}{
			"status":     models.DelegationStatusExpired,
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "expire delegation notices")
	}
	return result.RowsAffected, nil
}

// CreateAuditLog records a delegation lifecycle event
func (r *DelegationRepository) CreateAuditLog(ctx context.Context, entry *models.WorkflowAuditLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return errors.Wrap(err, "create audit log entry")
	}
	return nil
}

// WithTransaction runs fn against a transaction-bound repository
func (r *DelegationRepository) WithTransaction(ctx context.Context, fn func(txRepo DelegationRepositoryInterface) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DelegationRepository{db: tx})
	})
}
