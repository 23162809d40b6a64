package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"school-approval-service/internal/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict - record was modified by another request")
)

// RequestFilter narrows approval request listings. Zero values are
// ignored. Scope fields are set by the service, not the caller.
type RequestFilter struct {
	Status       string
	RequestType  models.RequestType
	From         *time.Time
	To           *time.Time
	RequesterID  *uuid.UUID
	DepartmentID *uuid.UUID
	Limit        int
	Offset       int
}

// TransitionUpdate carries the fields a workflow transition changes on
// an approval request. Applied only when the stored version and an
// open status still match.
type TransitionUpdate struct {
	Status          string
	CurrentApprover models.ApproverRole
	ChainIndex      int
}

// ApprovalRepositoryInterface defines approval persistence operations
type ApprovalRepositoryInterface interface {
	CreateRequest(ctx context.Context, request *models.ApprovalRequest) error
	GetRequestByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]models.ApprovalRequest, int64, error)
	ApplyTransition(ctx context.Context, request *models.ApprovalRequest, update TransitionUpdate) error
	AppendHistory(ctx context.Context, entry *models.ApprovalHistoryEntry) error
	CreateAuditLog(ctx context.Context, log *models.WorkflowAuditLog) error
	WithTransaction(ctx context.Context, fn func(txRepo ApprovalRepositoryInterface) error) error
}

// ApprovalRepository handles database operations for approval requests
type ApprovalRepository struct {
	db *gorm.DB
}

// NewApprovalRepository creates a new ApprovalRepository
func NewApprovalRepository(db *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// CreateRequest persists a new approval request
func (r *ApprovalRepository) CreateRequest(ctx context.Context, request *models.ApprovalRequest) error {
	if err := r.db.WithContext(ctx).Create(request).Error; err != nil {
		return errors.Wrap(err, "create approval request")
	}
	return nil
}

// GetRequestByID retrieves a request with its history, oldest first
func (r *ApprovalRepository) GetRequestByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error) {
	var request models.ApprovalRequest
	err := r.db.WithContext(ctx).
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("decided_at ASC")
		}).
		Where("id = ?", id).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get approval request")
	}
	return &request, nil
}

// ListRequests retrieves requests matching the filter with a total count
func (r *ApprovalRepository) ListRequests(ctx context.Context, filter RequestFilter) ([]models.ApprovalRequest, int64, error) {
	var requests []models.ApprovalRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ApprovalRequest{})

	if filter.Status != "" && filter.Status != "all" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.RequestType != "" {
		query = query.Where("request_type = ?", filter.RequestType)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", *filter.To)
	}
	if filter.RequesterID != nil {
		query = query.Where("requester_id = ?", *filter.RequesterID)
	}
	if filter.DepartmentID != nil {
		query = query.Where("department_id = ?", *filter.DepartmentID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count approval requests")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&requests).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list approval requests")
	}

	return requests, total, nil
}

// ApplyTransition updates the workflow position of a request with
// optimistic locking. The update only lands if the stored row still
// has the expected version and an open status, so two racing
// approvers cannot both apply a transition.
func (r *ApprovalRepository) ApplyTransition(ctx context.Context, request *models.ApprovalRequest, update TransitionUpdate) error {
	oldVersion := request.Version

	result := r.db.WithContext(ctx).Model(&models.ApprovalRequest{}).
		Where("id = ? AND version = ? AND status IN ?",
			request.ID, oldVersion, []string{models.StatusPending, models.StatusForwarded}).
		Updates(map[string]interface{}{
			"status":           update.Status,
			"current_approver": update.CurrentApprover,
			"chain_index":      update.ChainIndex,
			"version":          oldVersion + 1,
			"updated_at":       time.Now(),
		})

	if result.Error != nil {
		return errors.Wrap(result.Error, "apply approval transition")
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}

	request.Status = update.Status
	request.CurrentApprover = update.CurrentApprover
	request.ChainIndex = update.ChainIndex
	request.Version = oldVersion + 1
	return nil
}

// AppendHistory adds a decision entry. History is append-only; there
// is deliberately no update or delete counterpart.
func (r *ApprovalRepository) AppendHistory(ctx context.Context, entry *models.ApprovalHistoryEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return errors.Wrap(err, "append approval history")
	}
	return nil
}

// CreateAuditLog creates an audit log entry
func (r *ApprovalRepository) CreateAuditLog(ctx context.Context, log *models.WorkflowAuditLog) error {
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return errors.Wrap(err, "create audit log")
	}
	return nil
}

// WithTransaction runs fn against a transaction-bound repository
func (r *ApprovalRepository) WithTransaction(ctx context.Context, fn func(txRepo ApprovalRepositoryInterface) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ApprovalRepository{db: tx})
	})
}
