package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"school-approval-service/internal/hierarchy"
	"school-approval-service/internal/models"
	"school-approval-service/internal/repository"
)

type approvalFixture struct {
	service    *ApprovalService
	repo       *MockApprovalRepository
	delegation *MockDelegationRepository
	directory  *MockStaffDirectory
	history    []*models.ApprovalHistoryEntry
}

func newApprovalFixture() *approvalFixture {
	f := &approvalFixture{
		repo:       new(MockApprovalRepository),
		delegation: new(MockDelegationRepository),
		directory:  new(MockStaffDirectory),
	}
	f.service = NewApprovalService(f.repo, f.delegation, f.directory, nil)
	return f
}

func (f *approvalFixture) expectDecision(request *models.ApprovalRequest) {
	f.repo.On("GetRequestByID", mock.Anything, request.ID).Return(request, nil)
	f.repo.On("WithTransaction", mock.Anything).Return(nil)
	f.repo.On("AppendHistory", mock.Anything, mock.AnythingOfType("*models.ApprovalHistoryEntry")).
		Run(func(args mock.Arguments) {
			f.history = append(f.history, args.Get(1).(*models.ApprovalHistoryEntry))
		}).Return(nil)
	f.repo.On("ApplyTransition", mock.Anything, request, mock.AnythingOfType("repository.TransitionUpdate")).Return(nil)
	f.repo.On("CreateAuditLog", mock.Anything, mock.AnythingOfType("*models.WorkflowAuditLog")).Return(nil)
}

func teacherStaff(deptID *uuid.UUID) *models.Staff {
	return &models.Staff{
		ID:           uuid.New(),
		EmployeeID:   "EMP-1001",
		FirstName:    "Priya",
		LastName:     "Narayan",
		Email:        "priya.narayan@school.edu",
		Role:         models.RoleTeacher,
		DepartmentID: deptID,
		IsActive:     true,
	}
}

func staffWithRole(role models.StaffRole, deptID *uuid.UUID) *models.Staff {
	return &models.Staff{
		ID:           uuid.New(),
		EmployeeID:   "EMP-" + uuid.NewString()[:8],
		FirstName:    "Test",
		LastName:     string(role),
		Role:         role,
		DepartmentID: deptID,
		IsActive:     true,
	}
}

func pendingRequest(requesterID uuid.UUID, deptID *uuid.UUID) *models.ApprovalRequest {
	return &models.ApprovalRequest{
		ID:              uuid.New(),
		RequesterID:     requesterID,
		RequesterName:   "Priya Narayan",
		DepartmentID:    deptID,
		RequestType:     models.RequestTypeLeave,
		Title:           "Casual leave",
		Status:          models.StatusPending,
		CurrentApprover: models.ApproverHOD,
		ApprovalChain:   pq.StringArray{"hod", "vice_principal", "principal"},
		ChainIndex:      0,
		Version:         1,
	}
}

func TestCreate_TeacherLeaveResolvesFullChain(t *testing.T) {
	f := newApprovalFixture()
	deptID := uuid.New()
	headID := uuid.New()
	requester := teacherStaff(&deptID)

	f.directory.On("GetStaffByID", mock.Anything, requester.ID).Return(requester, nil)
	f.directory.On("GetDepartmentByID", mock.Anything, deptID).Return(&models.Department{
		ID: deptID, Name: "Mathematics", Code: "MATH", HeadID: &headID,
	}, nil)
	f.repo.On("CreateRequest", mock.Anything, mock.AnythingOfType("*models.ApprovalRequest")).Return(nil)
	f.repo.On("CreateAuditLog", mock.Anything, mock.AnythingOfType("*models.WorkflowAuditLog")).Return(nil)

	request, err := f.service.Create(context.Background(), requester.ID, CreateRequestInput{
		RequestType: models.RequestTypeLeave,
		Title:       "Casual leave",
		RequestData: map[string]interface{}{"days": 2},
	})

	assert.NoError(t, err)
	assert.Equal(t, models.StatusPending, request.Status)
	assert.Equal(t, models.ApproverHOD, request.CurrentApprover)
	assert.Equal(t, pq.StringArray{"hod", "vice_principal", "principal"}, request.ApprovalChain)
	assert.Equal(t, 0, request.ChainIndex)
	assert.Equal(t, 1, request.Version)
	assert.Equal(t, "Priya Narayan", request.RequesterName)
	f.repo.AssertExpectations(t)
}

func TestCreate_TeacherResourceSkipsHOD(t *testing.T) {
	f := newApprovalFixture()
	deptID := uuid.New()
	requester := teacherStaff(&deptID)

	f.directory.On("GetStaffByID", mock.Anything, requester.ID).Return(requester, nil)
	f.directory.On("GetDepartmentByID", mock.Anything, deptID).Return(&models.Department{ID: deptID}, nil)
	f.repo.On("CreateRequest", mock.Anything, mock.AnythingOfType("*models.ApprovalRequest")).Return(nil)
	f.repo.On("CreateAuditLog", mock.Anything, mock.AnythingOfType("*models.WorkflowAuditLog")).Return(nil)

	request, err := f.service.Create(context.Background(), requester.ID, CreateRequestInput{
		RequestType: models.RequestTypeResource,
		Title:       "Projector for lab",
	})

	assert.NoError(t, err)
	assert.Equal(t, models.ApproverVP, request.CurrentApprover)
	assert.Equal(t, pq.StringArray{"vice_principal", "principal"}, request.ApprovalChain)
}

func TestCreate_PrincipalHasNoApprover(t *testing.T) {
	f := newApprovalFixture()
	requester := staffWithRole(models.RolePrincipal, nil)

	f.directory.On("GetStaffByID", mock.Anything, requester.ID).Return(requester, nil)

	_, err := f.service.Create(context.Background(), requester.ID, CreateRequestInput{
		RequestType: models.RequestTypeBudget,
		Title:       "Annual budget",
	})

	assert.ErrorIs(t, err, hierarchy.ErrNoApproverForRole)
}

func TestCreate_TeacherWithoutDepartmentCannotReachHOD(t *testing.T) {
	f := newApprovalFixture()
	requester := teacherStaff(nil)

	f.directory.On("GetStaffByID", mock.Anything, requester.ID).Return(requester, nil)

	_, err := f.service.Create(context.Background(), requester.ID, CreateRequestInput{
		RequestType: models.RequestTypeLeave,
		Title:       "Casual leave",
	})

	assert.ErrorIs(t, err, ErrDepartmentNotFound)
}

func TestCreate_InvalidRequestType(t *testing.T) {
	f := newApprovalFixture()
	requester := teacherStaff(nil)

	f.directory.On("GetStaffByID", mock.Anything, requester.ID).Return(requester, nil)

	_, err := f.service.Create(context.Background(), requester.ID, CreateRequestInput{
		RequestType: models.RequestType("vacation"),
		Title:       "Nope",
	})

	assert.ErrorIs(t, err, ErrInvalidRequestType)
}

func TestApprove_WithoutForwardFinalizes(t *testing.T) {
	f := newApprovalFixture()
	deptID := uuid.New()
	request := pendingRequest(uuid.New(), &deptID)
	hod := staffWithRole(models.RoleHOD, &deptID)

	f.directory.On("GetStaffByID", mock.Anything, hod.ID).Return(hod, nil)
	f.expectDecision(request)

	result, err := f.service.Approve(context.Background(), request.ID, hod.ID, hod.Role, "Looks fine", false)

	assert.NoError(t, err)
	assert.Equal(t, models.StatusApproved, result.Status)
	assert.Equal(t, models.ApproverCompleted, result.CurrentApprover)
	assert.Equal(t, 2, result.Version)
	if assert.Len(t, f.history, 1) {
		assert.Equal(t, "Approved", f.history[0].Decision)
		assert.Equal(t, "HOD", f.history[0].Role)
		assert.Equal(t, "Looks fine", f.history[0].Comments)
	}
	f.delegation.AssertNotCalled(t, "FindActiveGranting", mock.Anything, mock.Anything, mock.Anything)
}

func TestApprove_ForwardThenFinalApproval(t *testing.T) {
	f := newApprovalFixture()
	deptID := uuid.New()
	request := pendingRequest(uuid.New(), &deptID)
	hod := staffWithRole(models.RoleHOD, &deptID)
	vp := staffWithRole(models.RoleVP, nil)

	f.directory.On("GetStaffByID", mock.Anything, hod.ID).Return(hod, nil)
	f.directory.On("GetStaffByID", mock.Anything, vp.ID).Return(vp, nil)
	f.expectDecision(request)

	result, err := f.service.Approve(context.Background(), request.ID, hod.ID, hod.Role, "Escalating", true)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusForwarded, result.Status)
	assert.Equal(t, models.ApproverVP, result.CurrentApprover)
	assert.Equal(t, 1, result.ChainIndex)

	result, err = f.service.Approve(context.Background(), request.ID, vp.ID, vp.Role, "Granted", false)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusApproved, result.Status)
	assert.Equal(t, models.ApproverCompleted, result.CurrentApprover)

	if assert.Len(t, f.history, 2) {
		assert.Equal(t, "Forwarded to Vice Principal", f.history[0].Decision)
		assert.Equal(t, "HOD", f.history[0].Role)
		assert.Equal(t, "Approved", f.history[1].Decision)
		assert.Equal(t, "Vice Principal", f.history[1].Role)
	}
}

func TestApprove_ForwardIgnoredAtEndOfChain(t *testing.T) {
	f := newApprovalFixture()
	request := pendingRequest(uuid.New(), nil)
	request.Status = models.StatusForwarded
	request.CurrentApprover = models.ApproverPrincipal
	request.ChainIndex = 2
	principal := staffWithRole(models.RolePrincipal, nil)

	f.directory.On("GetStaffByID", mock.Anything, principal.ID).Return(principal, nil)
	f.expectDecision(request)

	result, err := f.service.Approve(context.Background(), request.ID, principal.ID, principal.Role, "", true)

	assert.NoError(t, err)
	assert.Equal(t, models.StatusApproved, result.Status)
	assert.Equal(t, models.ApproverCompleted, result.CurrentApprover)
}

func TestApprove_RoleMismatch(t *testing.T) {
	f := newApprovalFixture()
	deptID := uuid.New()
	request := pendingRequest(uuid.New(), &deptID)
	vp := staffWithRole(models.RoleVP, nil)

	f.directory.On("GetStaffByID", mock.Anything, vp.ID).Return(vp, nil)
	f.repo.On("GetRequestByID", mock.Anything, request.ID).Return(request, nil)
	f.delegation.On("FindActiveGranting", mock.Anything, vp.ID, mock.AnythingOfType("time.Time")).
		Return([]models.DelegationNotice{}, nil)

	_, err := f.service.Approve(context.Background(), request.ID, vp.ID, vp.Role, "", false)

	assert.ErrorIs(t, err, ErrRoleMismatch)
}

func TestApprove_HODOutsideDepartment(t *testing.T) {
	f := newApprovalFixture()
	requestDept := uuid.New()
	otherDept := uuid.New()
	request := pendingRequest(uuid.New(), &requestDept)
	hod := staffWithRole(models.RoleHOD, &otherDept)

	f.directory.On("GetStaffByID", mock.Anything, hod.ID).Return(hod, nil)
	f.repo.On("GetRequestByID", mock.Anything, request.ID).Return(request, nil)

	_, err := f.service.Approve(context.Background(), request.ID, hod.ID, hod.Role, "", false)

	assert.ErrorIs(t, err, ErrOutOfScope)
}

func TestApprove_SelfApprovalRejected(t *testing.T) {
	f := newApprovalFixture()
	deptID := uuid.New()
	hod := staffWithRole(models.RoleHOD, &deptID)
	request := pendingRequest(hod.ID, &deptID)

	f.repo.On("GetRequestByID", mock.Anything, request.ID).Return(request, nil)

	_, err := f.service.Approve(context.Background(), request.ID, hod.ID, hod.Role, "", false)

	assert.ErrorIs(t, err, ErrSelfApprovalNotAllowed)
}

func TestApprove_AlreadyDecided(t *testing.T) {
	f := newApprovalFixture()
	request := pendingRequest(uuid.New(), nil)
	request.Status = models.StatusRejected
	request.CurrentApprover = models.ApproverCompleted
	hod := staffWithRole(models.RoleHOD, nil)

	f.repo.On("GetRequestByID", mock.Anything, request.ID).Return(request, nil)

	_, err := f.service.Approve(context.Background(), request.ID, hod.ID, hod.Role, "", false)

	assert.ErrorIs(t, err, ErrRequestAlreadyDecided)
}

func TestApprove_DelegatedAuthority(t *testing.T) {
	f := newApprovalFixture()
	deptID := uuid.New()
	request := pendingRequest(uuid.New(), &deptID)
	delegate := teacherStaff(&deptID)

	notice := models.DelegationNotice{
		ID:                    uuid.New(),
		DelegatorID:           uuid.New(),
		DelegatorRole:         "hod",
		DelegatorDepartmentID: &deptID,
		DelegateID:            delegate.ID,
		Status:                models.DelegationStatusActive,
		EffectiveDate:         time.Now().Add(-time.Hour),
	}

	f.directory.On("GetStaffByID", mock.Anything, delegate.ID).Return(delegate, nil)
	f.delegation.On("FindActiveGranting", mock.Anything, delegate.ID, mock.AnythingOfType("time.Time")).
		Return([]models.DelegationNotice{notice}, nil)
	f.expectDecision(request)

	result, err := f.service.Approve(context.Background(), request.ID, delegate.ID, delegate.Role, "Acting for HOD", false)

	assert.NoError(t, err)
	assert.Equal(t, models.StatusApproved, result.Status)
	if assert.Len(t, f.history, 1) {
		assert.Equal(t, "HOD (delegated)", f.history[0].Role)
	}
}

func TestApprove_ExpiredDelegationGrantsNothing(t *testing.T) {
	f := newApprovalFixture()
	deptID := uuid.New()
	request := pendingRequest(uuid.New(), &deptID)
	delegate := teacherStaff(&deptID)

	expiry := time.Now().Add(-time.Hour)
	notice := models.DelegationNotice{
		ID:            uuid.New(),
		DelegatorRole: "hod",
		DelegateID:    delegate.ID,
		Status:        models.DelegationStatusActive,
		EffectiveDate: time.Now().Add(-48 * time.Hour),
		ExpiryDate:    &expiry,
	}

	f.directory.On("GetStaffByID", mock.Anything, delegate.ID).Return(delegate, nil)
	f.repo.On("GetRequestByID", mock.Anything, request.ID).Return(request, nil)
	f.delegation.On("FindActiveGranting", mock.Anything, delegate.ID, mock.AnythingOfType("time.Time")).
		Return([]models.DelegationNotice{notice}, nil)

	_, err := f.service.Approve(context.Background(), request.ID, delegate.ID, delegate.Role, "", false)

	assert.ErrorIs(t, err, ErrRoleMismatch)
}

func TestApprove_ConcurrentDecisionLoses(t *testing.T) {
	f := newApprovalFixture()
	deptID := uuid.New()
	request := pendingRequest(uuid.New(), &deptID)
	hod := staffWithRole(models.RoleHOD, &deptID)

	f.directory.On("GetStaffByID", mock.Anything, hod.ID).Return(hod, nil)
	f.repo.On("GetRequestByID", mock.Anything, request.ID).Return(request, nil)
	f.repo.On("WithTransaction", mock.Anything).Return(nil)
	f.repo.On("AppendHistory", mock.Anything, mock.AnythingOfType("*models.ApprovalHistoryEntry")).Return(nil)
	f.repo.On("ApplyTransition", mock.Anything, request, mock.AnythingOfType("repository.TransitionUpdate")).
		Return(repository.ErrVersionConflict)

	_, err := f.service.Approve(context.Background(), request.ID, hod.ID, hod.Role, "", false)

	assert.ErrorIs(t, err, ErrRequestAlreadyDecided)
}

func TestApprove_StaleReadAfterForwardLoses(t *testing.T) {
	f := newApprovalFixture()
	deptID := uuid.New()
	request := pendingRequest(uuid.New(), &deptID)
	hod := staffWithRole(models.RoleHOD, &deptID)

	// Another approver forwarded the request between this actor's read
	// and their transaction: the re-fetched row is still open, but at a
	// later stage and version.
	forwarded := *request
	forwarded.Status = models.StatusForwarded
	forwarded.CurrentApprover = models.ApproverVP
	forwarded.ChainIndex = 1
	forwarded.Version = 2

	f.directory.On("GetStaffByID", mock.Anything, hod.ID).Return(hod, nil)
	f.repo.On("GetRequestByID", mock.Anything, request.ID).Return(request, nil).Once()
	f.repo.On("WithTransaction", mock.Anything).Return(nil)
	f.repo.On("GetRequestByID", mock.Anything, request.ID).Return(&forwarded, nil).Once()

	_, err := f.service.Approve(context.Background(), request.ID, hod.ID, hod.Role, "", false)

	assert.ErrorIs(t, err, ErrRequestAlreadyDecided)
	f.repo.AssertNotCalled(t, "AppendHistory", mock.Anything, mock.Anything)
	f.repo.AssertNotCalled(t, "ApplyTransition", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, models.StatusPending, request.Status)
}

func TestReject_TerminalMidChain(t *testing.T) {
	f := newApprovalFixture()
	request := pendingRequest(uuid.New(), nil)
	request.Status = models.StatusForwarded
	request.CurrentApprover = models.ApproverVP
	request.ChainIndex = 1
	vp := staffWithRole(models.RoleVP, nil)

	f.directory.On("GetStaffByID", mock.Anything, vp.ID).Return(vp, nil)
	f.expectDecision(request)

	result, err := f.service.Reject(context.Background(), request.ID, vp.ID, vp.Role, "Budget frozen")

	assert.NoError(t, err)
	assert.Equal(t, models.StatusRejected, result.Status)
	assert.Equal(t, models.ApproverCompleted, result.CurrentApprover)
	if assert.Len(t, f.history, 1) {
		assert.Equal(t, "Rejected", f.history[0].Decision)
		assert.Equal(t, "Budget frozen", f.history[0].Comments)
	}
}

func TestGetHistory_RequesterAlwaysSees(t *testing.T) {
	f := newApprovalFixture()
	requesterID := uuid.New()
	request := pendingRequest(requesterID, nil)

	f.repo.On("GetRequestByID", mock.Anything, request.ID).Return(request, nil)

	result, err := f.service.GetHistory(context.Background(), request.ID, requesterID, models.RoleTeacher)

	assert.NoError(t, err)
	assert.Equal(t, request.ID, result.ID)
}

func TestGetHistory_OutsiderDenied(t *testing.T) {
	f := newApprovalFixture()
	request := pendingRequest(uuid.New(), nil)

	f.repo.On("GetRequestByID", mock.Anything, request.ID).Return(request, nil)

	_, err := f.service.GetHistory(context.Background(), request.ID, uuid.New(), models.RoleTeacher)

	assert.ErrorIs(t, err, ErrOutOfScope)
}

func TestGetHistory_HODScopedToDepartment(t *testing.T) {
	f := newApprovalFixture()
	requestDept := uuid.New()
	otherDept := uuid.New()
	request := pendingRequest(uuid.New(), &requestDept)
	hod := staffWithRole(models.RoleHOD, &otherDept)

	f.repo.On("GetRequestByID", mock.Anything, request.ID).Return(request, nil)
	f.directory.On("GetStaffByID", mock.Anything, hod.ID).Return(hod, nil)

	_, err := f.service.GetHistory(context.Background(), request.ID, hod.ID, hod.Role)

	assert.ErrorIs(t, err, ErrOutOfScope)
}

func TestList_ScopedByRole(t *testing.T) {
	t.Run("teacher sees own requests only", func(t *testing.T) {
		f := newApprovalFixture()
		teacherID := uuid.New()

		f.repo.On("ListRequests", mock.Anything, mock.MatchedBy(func(filter repository.RequestFilter) bool {
			return filter.RequesterID != nil && *filter.RequesterID == teacherID
		})).Return([]models.ApprovalRequest{}, int64(0), nil)

		_, _, err := f.service.List(context.Background(), teacherID, models.RoleTeacher, repository.RequestFilter{})
		assert.NoError(t, err)
		f.repo.AssertExpectations(t)
	})

	t.Run("hod scoped to department", func(t *testing.T) {
		f := newApprovalFixture()
		deptID := uuid.New()
		hod := staffWithRole(models.RoleHOD, &deptID)

		f.directory.On("GetStaffByID", mock.Anything, hod.ID).Return(hod, nil)
		f.repo.On("ListRequests", mock.Anything, mock.MatchedBy(func(filter repository.RequestFilter) bool {
			return filter.DepartmentID != nil && *filter.DepartmentID == deptID
		})).Return([]models.ApprovalRequest{}, int64(0), nil)

		_, _, err := f.service.List(context.Background(), hod.ID, hod.Role, repository.RequestFilter{})
		assert.NoError(t, err)
		f.repo.AssertExpectations(t)
	})

	t.Run("principal sees everything", func(t *testing.T) {
		f := newApprovalFixture()

		f.repo.On("ListRequests", mock.Anything, mock.MatchedBy(func(filter repository.RequestFilter) bool {
			return filter.RequesterID == nil && filter.DepartmentID == nil
		})).Return([]models.ApprovalRequest{}, int64(0), nil)

		_, _, err := f.service.List(context.Background(), uuid.New(), models.RolePrincipal, repository.RequestFilter{})
		assert.NoError(t, err)
		f.repo.AssertExpectations(t)
	})
}
