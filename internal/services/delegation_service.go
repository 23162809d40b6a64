package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"school-approval-service/internal/events"
	"school-approval-service/internal/models"
	"school-approval-service/internal/repository"
)

var (
	ErrNoticeNotFound         = errors.New("delegation notice not found")
	ErrInsufficientAuthority  = errors.New("actor may not perform this delegation action")
	ErrPartyNotFound          = errors.New("delegation party not found")
	ErrSelfDelegation         = errors.New("delegator and delegate must differ")
	ErrInvalidDelegationDates = errors.New("expiry date must be after the effective date")
	ErrInvalidNoticeState     = errors.New("notice state does not permit this action")
	ErrNotNotificationOwner   = errors.New("notification belongs to another recipient")
)

// DelegationService manages the delegation notice lifecycle
type DelegationService struct {
	repo      repository.DelegationRepositoryInterface
	directory repository.StaffDirectory
	publisher *events.Publisher
}

// NewDelegationService creates a new DelegationService
func NewDelegationService(
	repo repository.DelegationRepositoryInterface,
	directory repository.StaffDirectory,
	publisher *events.Publisher,
) *DelegationService {
	return &DelegationService{
		repo:      repo,
		directory: directory,
		publisher: publisher,
	}
}

// CreateNoticeInput represents input for creating a delegation notice
type CreateNoticeInput struct {
	Title            string                `json:"title" binding:"required"`
	DelegatorID      uuid.UUID             `json:"delegatorId" binding:"required"`
	DelegateID       uuid.UUID             `json:"delegateId" binding:"required"`
	DelegationType   models.DelegationType `json:"delegationType" binding:"required"`
	AuthorityScope   string                `json:"authorityScope"`
	Responsibilities string                `json:"responsibilities"`
	Limitations      string                `json:"limitations"`
	EffectiveDate    time.Time             `json:"effectiveDate" binding:"required"`
	ExpiryDate       *time.Time            `json:"expiryDate"`
	ApprovalRequired *bool                 `json:"approvalRequired"`
}

// Create validates parties and dates and persists a new notice in
// Draft. Drafts carry no authority until submitted and activated.
func (s *DelegationService) Create(ctx context.Context, creatorID uuid.UUID, creatorRole models.StaffRole, input CreateNoticeInput) (*models.DelegationNotice, error) {
	if !creatorRole.CanCreateDelegations() {
		return nil, ErrInsufficientAuthority
	}
	if !input.DelegationType.Valid() {
		return nil, fmt.Errorf("invalid delegation type %q", input.DelegationType)
	}
	if input.DelegatorID == input.DelegateID {
		return nil, ErrSelfDelegation
	}
	if input.ExpiryDate != nil && !input.ExpiryDate.After(input.EffectiveDate) {
		return nil, ErrInvalidDelegationDates
	}

	delegator, err := s.lookupParty(ctx, input.DelegatorID)
	if err != nil {
		return nil, err
	}
	delegate, err := s.lookupParty(ctx, input.DelegateID)
	if err != nil {
		return nil, err
	}
	// Department references must resolve too; a party pointing at a
	// removed department cannot anchor a scoped delegation.
	for _, deptID := range []*uuid.UUID{delegator.DepartmentID, delegate.DepartmentID} {
		if deptID == nil {
			continue
		}
		if _, err := s.directory.GetDepartmentByID(ctx, *deptID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrPartyNotFound
			}
			return nil, err
		}
	}

	approvalRequired := true
	if input.ApprovalRequired != nil {
		approvalRequired = *input.ApprovalRequired
	}

	notice := &models.DelegationNotice{
		Title:                 input.Title,
		DelegatorID:           delegator.ID,
		DelegatorRole:         string(delegator.Role),
		DelegatorDepartmentID: delegator.DepartmentID,
		DelegateID:            delegate.ID,
		DelegateRole:          string(delegate.Role),
		DelegateDepartmentID:  delegate.DepartmentID,
		DelegationType:        input.DelegationType,
		AuthorityScope:        input.AuthorityScope,
		Responsibilities:      input.Responsibilities,
		Limitations:           input.Limitations,
		EffectiveDate:         input.EffectiveDate,
		ExpiryDate:            input.ExpiryDate,
		Status:                models.DelegationStatusDraft,
		ApprovalRequired:      approvalRequired,
		Version:               1,
		CreatedBy:             creatorID,
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repository.DelegationRepositoryInterface) error {
		if err := txRepo.CreateNotice(ctx, notice); err != nil {
			return err
		}
		return txRepo.AppendNoticeHistory(ctx, &models.DelegationHistoryEntry{
			NoticeID:   notice.ID,
			Action:     models.DelegationActionCreated,
			ActorID:    creatorID,
			PrevStatus: "",
			NewStatus:  models.DelegationStatusDraft,
		})
	})
	if err != nil {
		return nil, err
	}

	return notice, nil
}

// Submit moves a draft into the approval stage. When the notice does
// not require approval it activates immediately instead.
func (s *DelegationService) Submit(ctx context.Context, noticeID, actorID uuid.UUID) (*models.DelegationNotice, error) {
	notice, err := s.getNotice(ctx, noticeID)
	if err != nil {
		return nil, err
	}
	if notice.CreatedBy != actorID && notice.DelegatorID != actorID {
		return nil, ErrInsufficientAuthority
	}
	if !notice.CanBeSubmitted() {
		return nil, ErrInvalidNoticeState
	}

	newStatus := models.DelegationStatusPending
	action := models.DelegationActionSubmitted
	if !notice.ApprovalRequired {
		newStatus = models.DelegationStatusActive
		action = models.DelegationActionActivated
	}

	transition := repository.NoticeTransition{
		ExpectedStatus: models.DelegationStatusDraft,
		NewStatus:      newStatus,
	}

	err = s.transition(ctx, notice, actorID, action, "", transition, func(txRepo repository.DelegationRepositoryInterface) error {
		if newStatus == models.DelegationStatusActive {
			return s.notifyActivation(ctx, txRepo, notice)
		}
		return s.notifyPendingReview(ctx, txRepo, notice)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, notice, models.AuditEventSubmitted, actorID, "")
	s.publishDelegation(events.DelegationSubmitted, notice, actorID, "")
	return notice, nil
}

// Approve activates a pending notice. Only the Vice Principal and the
// Principal may decide delegations.
func (s *DelegationService) Approve(ctx context.Context, noticeID, actorID uuid.UUID, actorRole models.StaffRole, comments string) (*models.DelegationNotice, error) {
	if !actorRole.CanDecideDelegations() {
		return nil, ErrInsufficientAuthority
	}
	notice, err := s.getNotice(ctx, noticeID)
	if err != nil {
		return nil, err
	}
	if !notice.CanBeApproved(time.Now()) {
		return nil, ErrInvalidNoticeState
	}

	now := time.Now()
	transition := repository.NoticeTransition{
		ExpectedStatus: models.DelegationStatusPending,
		NewStatus:      models.DelegationStatusActive,
		Fields: map[string]interface{}{
			"approved_by": actorID,
			"approved_at": now,
		},
	}

	err = s.transition(ctx, notice, actorID, models.DelegationActionApproved, comments, transition, func(txRepo repository.DelegationRepositoryInterface) error {
		return s.notifyActivation(ctx, txRepo, notice)
	})
	if err != nil {
		return nil, err
	}
	notice.ApprovedBy = &actorID
	notice.ApprovedAt = &now

	s.audit(ctx, notice, models.AuditEventApproved, actorID, comments)
	s.publishDelegation(events.DelegationApproved, notice, actorID, comments)
	return notice, nil
}

// Reject declines a pending notice. Rejected notices never grant
// authority and notify the creator with the rejection reason.
func (s *DelegationService) Reject(ctx context.Context, noticeID, actorID uuid.UUID, actorRole models.StaffRole, comments string) (*models.DelegationNotice, error) {
	if !actorRole.CanDecideDelegations() {
		return nil, ErrInsufficientAuthority
	}
	notice, err := s.getNotice(ctx, noticeID)
	if err != nil {
		return nil, err
	}
	if !notice.CanBeRejected() {
		return nil, ErrInvalidNoticeState
	}

	now := time.Now()
	transition := repository.NoticeTransition{
		ExpectedStatus: models.DelegationStatusPending,
		NewStatus:      models.DelegationStatusRejected,
		Fields: map[string]interface{}{
			"rejected_by": actorID,
			"rejected_at": now,
		},
	}

	err = s.transition(ctx, notice, actorID, models.DelegationActionRejected, comments, transition, func(txRepo repository.DelegationRepositoryInterface) error {
		message := fmt.Sprintf("Delegation notice %q was rejected", notice.Title)
		if comments != "" {
			message = fmt.Sprintf("%s: %s", message, comments)
		}
		return txRepo.AddNotification(ctx, &models.DelegationNotification{
			NoticeID:    notice.ID,
			RecipientID: notice.CreatedBy,
			Message:     message,
		})
	})
	if err != nil {
		return nil, err
	}
	notice.RejectedBy = &actorID
	notice.RejectedAt = &now

	s.audit(ctx, notice, models.AuditEventRejected, actorID, comments)
	s.publishDelegation(events.DelegationRejected, notice, actorID, comments)
	return notice, nil
}

// Revoke withdraws an active notice before its natural expiry. The
// delegator or a deciding role may revoke.
func (s *DelegationService) Revoke(ctx context.Context, noticeID, actorID uuid.UUID, actorRole models.StaffRole, reason string) (*models.DelegationNotice, error) {
	notice, err := s.getNotice(ctx, noticeID)
	if err != nil {
		return nil, err
	}
	if notice.DelegatorID != actorID && !actorRole.CanDecideDelegations() {
		return nil, ErrInsufficientAuthority
	}
	if !notice.CanBeRevoked(time.Now()) {
		return nil, ErrInvalidNoticeState
	}

	now := time.Now()
	transition := repository.NoticeTransition{
		ExpectedStatus: models.DelegationStatusActive,
		NewStatus:      models.DelegationStatusRevoked,
		Fields: map[string]interface{}{
			"revoked_by":    actorID,
			"revoked_at":    now,
			"revoke_reason": reason,
		},
	}

	err = s.transition(ctx, notice, actorID, models.DelegationActionRevoked, reason, transition, func(txRepo repository.DelegationRepositoryInterface) error {
		message := fmt.Sprintf("Delegation %q has been revoked", notice.Title)
		if reason != "" {
			message = fmt.Sprintf("%s: %s", message, reason)
		}
		return txRepo.AddNotification(ctx, &models.DelegationNotification{
			NoticeID:    notice.ID,
			RecipientID: notice.DelegateID,
			Message:     message,
		})
	})
	if err != nil {
		return nil, err
	}
	notice.RevokedBy = &actorID
	notice.RevokedAt = &now
	notice.RevokeReason = reason

	s.audit(ctx, notice, models.AuditEventRevoked, actorID, reason)
	s.publishDelegation(events.DelegationRevoked, notice, actorID, reason)
	return notice, nil
}

// Get retrieves a notice with its history and notifications. Parties
// to the notice, its creator, and deciding roles may view it.
func (s *DelegationService) Get(ctx context.Context, noticeID, callerID uuid.UUID, callerRole models.StaffRole) (*models.DelegationNotice, error) {
	notice, err := s.getNotice(ctx, noticeID)
	if err != nil {
		return nil, err
	}
	if notice.DelegatorID != callerID && notice.DelegateID != callerID &&
		notice.CreatedBy != callerID && !callerRole.CanDecideDelegations() {
		return nil, ErrInsufficientAuthority
	}
	return notice, nil
}

// List returns notices visible to the caller. Deciding roles see the
// pending queue plus their own; everyone else sees notices they are a
// party to or created.
func (s *DelegationService) List(ctx context.Context, callerID uuid.UUID, callerRole models.StaffRole, pendingOnly bool, limit, offset int) ([]models.DelegationNotice, int64, error) {
	if pendingOnly {
		if !callerRole.CanDecideDelegations() {
			return nil, 0, ErrInsufficientAuthority
		}
		return s.repo.ListPendingNotices(ctx, limit, offset)
	}
	return s.repo.ListNoticesForStaff(ctx, callerID, limit, offset)
}

// Notifications returns the caller's delegation notifications.
func (s *DelegationService) Notifications(ctx context.Context, callerID uuid.UUID, unreadOnly bool) ([]models.DelegationNotification, error) {
	return s.repo.ListNotificationsForRecipient(ctx, callerID, unreadOnly)
}

// MarkNotificationRead marks one of the caller's notifications as read.
func (s *DelegationService) MarkNotificationRead(ctx context.Context, noticeID, notificationID, callerID uuid.UUID) error {
	notification, err := s.repo.GetNotification(ctx, noticeID, notificationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoticeNotFound
		}
		return err
	}
	if notification.RecipientID != callerID {
		return ErrNotNotificationOwner
	}
	return s.repo.MarkNotificationRead(ctx, notificationID)
}

// --- helpers ---

func (s *DelegationService) lookupParty(ctx context.Context, id uuid.UUID) (*models.Staff, error) {
	staff, err := s.directory.GetStaffByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPartyNotFound
		}
		return nil, err
	}
	return staff, nil
}

func (s *DelegationService) getNotice(ctx context.Context, noticeID uuid.UUID) (*models.DelegationNotice, error) {
	notice, err := s.repo.GetNoticeByID(ctx, noticeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoticeNotFound
		}
		return nil, err
	}
	return notice, nil
}

// transition applies a guarded status change with its history entry
// and any side effects in one transaction. A guard miss means another
// actor moved the notice first and surfaces as an invalid state.
func (s *DelegationService) transition(ctx context.Context, notice *models.DelegationNotice, actorID uuid.UUID, action, comments string, update repository.NoticeTransition, sideEffects func(repository.DelegationRepositoryInterface) error) error {
	err := s.repo.WithTransaction(ctx, func(txRepo repository.DelegationRepositoryInterface) error {
		txNotice, err := txRepo.GetNoticeByID(ctx, notice.ID)
		if err != nil {
			return err
		}
		if txNotice.Status != update.ExpectedStatus {
			return ErrInvalidNoticeState
		}

		if err := txRepo.ApplyNoticeTransition(ctx, txNotice, update); err != nil {
			return err
		}

		if err := txRepo.AppendNoticeHistory(ctx, &models.DelegationHistoryEntry{
			NoticeID:   notice.ID,
			Action:     action,
			ActorID:    actorID,
			PrevStatus: update.ExpectedStatus,
			NewStatus:  update.NewStatus,
			Comments:   comments,
		}); err != nil {
			return err
		}

		if sideEffects != nil {
			if err := sideEffects(txRepo); err != nil {
				return err
			}
		}

		notice.Status = txNotice.Status
		notice.Version = txNotice.Version
		return nil
	})
	if errors.Is(err, repository.ErrVersionConflict) {
		return ErrInvalidNoticeState
	}
	return err
}

func (s *DelegationService) notifyActivation(ctx context.Context, txRepo repository.DelegationRepositoryInterface, notice *models.DelegationNotice) error {
	message := fmt.Sprintf("You have been granted delegated authority: %q", notice.Title)
	if err := txRepo.AddNotification(ctx, &models.DelegationNotification{
		NoticeID:    notice.ID,
		RecipientID: notice.DelegateID,
		Message:     message,
	}); err != nil {
		return err
	}
	if notice.CreatedBy == notice.DelegateID {
		return nil
	}
	return txRepo.AddNotification(ctx, &models.DelegationNotification{
		NoticeID:    notice.ID,
		RecipientID: notice.CreatedBy,
		Message:     fmt.Sprintf("Delegation notice %q is now active", notice.Title),
	})
}

// notifyPendingReview fans a review notification out to every staff
// member holding a role that decides delegations.
func (s *DelegationService) notifyPendingReview(ctx context.Context, txRepo repository.DelegationRepositoryInterface, notice *models.DelegationNotice) error {
	message := fmt.Sprintf("Delegation notice %q is awaiting approval", notice.Title)
	for _, role := range []models.StaffRole{models.RoleVP, models.RolePrincipal} {
		reviewers, err := s.directory.ListActiveStaffByRole(ctx, role)
		if err != nil {
			return err
		}
		for _, reviewer := range reviewers {
			if err := txRepo.AddNotification(ctx, &models.DelegationNotification{
				NoticeID:    notice.ID,
				RecipientID: reviewer.ID,
				Message:     message,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *DelegationService) audit(ctx context.Context, notice *models.DelegationNotice, eventType string, actorID uuid.UUID, comments string) {
	metadata, _ := json.Marshal(map[string]interface{}{"comments": comments, "status": notice.Status})
	_ = s.repo.CreateAuditLog(ctx, &models.WorkflowAuditLog{
		EntityType: models.AuditEntityDelegation,
		EntityID:   notice.ID,
		EventType:  eventType,
		ActorID:    &actorID,
		Metadata:   datatypes.JSON(metadata),
	})
}

func (s *DelegationService) publishDelegation(subject string, notice *models.DelegationNotice, actorID uuid.UUID, comments string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(subject, events.WorkflowEvent{
		EntityID:    notice.ID.String(),
		RequesterID: notice.CreatedBy.String(),
		ActorID:     actorID.String(),
		Status:      notice.Status,
		RequestType: string(notice.DelegationType),
		Comments:    comments,
	})
}
