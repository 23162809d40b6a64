package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"school-approval-service/internal/models"
	"school-approval-service/internal/repository"
)

type MockApprovalRepository struct {
	mock.Mock
}

func (m *MockApprovalRepository) CreateRequest(ctx context.Context, request *models.ApprovalRequest) error {
	args := m.Called(ctx, request)
	if args.Error(0) == nil && request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockApprovalRepository) GetRequestByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ApprovalRequest), args.Error(1)
}

func (m *MockApprovalRepository) ListRequests(ctx context.Context, filter repository.RequestFilter) ([]models.ApprovalRequest, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.ApprovalRequest), args.Get(1).(int64), args.Error(2)
}

func (m *MockApprovalRepository) ApplyTransition(ctx context.Context, request *models.ApprovalRequest, update repository.TransitionUpdate) error {
	args := m.Called(ctx, request, update)
	if args.Error(0) == nil {
		request.Status = update.Status
		request.CurrentApprover = update.CurrentApprover
		request.ChainIndex = update.ChainIndex
		request.Version++
	}
	return args.Error(0)
}

func (m *MockApprovalRepository) AppendHistory(ctx context.Context, entry *models.ApprovalHistoryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockApprovalRepository) CreateAuditLog(ctx context.Context, log *models.WorkflowAuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockApprovalRepository) WithTransaction(ctx context.Context, fn func(txRepo repository.ApprovalRepositoryInterface) error) error {
	m.Called(ctx)
	return fn(m)
}

type MockDelegationRepository struct {
	mock.Mock
}

func (m *MockDelegationRepository) CreateNotice(ctx context.Context, notice *models.DelegationNotice) error {
	args := m.Called(ctx, notice)
	if args.Error(0) == nil && notice.ID == uuid.Nil {
		notice.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockDelegationRepository) GetNoticeByID(ctx context.Context, id uuid.UUID) (*models.DelegationNotice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DelegationNotice), args.Error(1)
}

func (m *MockDelegationRepository) ListPendingNotices(ctx context.Context, limit, offset int) ([]models.DelegationNotice, int64, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.DelegationNotice), args.Get(1).(int64), args.Error(2)
}

func (m *MockDelegationRepository) ListNoticesForStaff(ctx context.Context, staffID uuid.UUID, limit, offset int) ([]models.DelegationNotice, int64, error) {
	args := m.Called(ctx, staffID, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.DelegationNotice), args.Get(1).(int64), args.Error(2)
}

func (m *MockDelegationRepository) ApplyNoticeTransition(ctx context.Context, notice *models.DelegationNotice, transition repository.NoticeTransition) error {
	args := m.Called(ctx, notice, transition)
	if args.Error(0) == nil {
		notice.Status = transition.NewStatus
		notice.Version++
	}
	return args.Error(0)
}

func (m *MockDelegationRepository) AppendNoticeHistory(ctx context.Context, entry *models.DelegationHistoryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockDelegationRepository) AddNotification(ctx context.Context, notification *models.DelegationNotification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}

func (m *MockDelegationRepository) ListNotificationsForRecipient(ctx context.Context, recipientID uuid.UUID, unreadOnly bool) ([]models.DelegationNotification, error) {
	args := m.Called(ctx, recipientID, unreadOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DelegationNotification), args.Error(1)
}

func (m *MockDelegationRepository) GetNotification(ctx context.Context, noticeID, notificationID uuid.UUID) (*models.DelegationNotification, error) {
	args := m.Called(ctx, noticeID, notificationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DelegationNotification), args.Error(1)
}

func (m *MockDelegationRepository) MarkNotificationRead(ctx context.Context, notificationID uuid.UUID) error {
	args := m.Called(ctx, notificationID)
	return args.Error(0)
}

func (m *MockDelegationRepository) FindActiveGranting(ctx context.Context, delegateID uuid.UUID, now time.Time) ([]models.DelegationNotice, error) {
	args := m.Called(ctx, delegateID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DelegationNotice), args.Error(1)
}

func (m *MockDelegationRepository) ExpireActiveNotices(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDelegationRepository) CreateAuditLog(ctx context.Context, entry *models.WorkflowAuditLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockDelegationRepository) WithTransaction(ctx context.Context, fn func(txRepo repository.DelegationRepositoryInterface) error) error {
	m.Called(ctx)
	return fn(m)
}

type MockStaffDirectory struct {
	mock.Mock
}

func (m *MockStaffDirectory) GetStaffByID(ctx context.Context, id uuid.UUID) (*models.Staff, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Staff), args.Error(1)
}

func (m *MockStaffDirectory) GetDepartmentByID(ctx context.Context, id uuid.UUID) (*models.Department, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Department), args.Error(1)
}

func (m *MockStaffDirectory) ListActiveStaffByRole(ctx context.Context, role models.StaffRole) ([]models.Staff, error) {
	args := m.Called(ctx, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Staff), args.Error(1)
}
