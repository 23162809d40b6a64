package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"school-approval-service/internal/events"
	"school-approval-service/internal/hierarchy"
	"school-approval-service/internal/models"
	"school-approval-service/internal/repository"
)

var (
	ErrRequestNotFound        = errors.New("approval request not found")
	ErrRequestAlreadyDecided  = errors.New("request is no longer awaiting a decision")
	ErrRoleMismatch           = errors.New("actor role does not match the required approver")
	ErrOutOfScope             = errors.New("request is outside the actor's organizational scope")
	ErrSelfApprovalNotAllowed = errors.New("self-approval is not allowed")
	ErrStaffNotFound          = errors.New("staff member not found")

	// Routing failures surface under the resolver's identities so
	// handlers can match either package.
	ErrInvalidRequestType = hierarchy.ErrInvalidRequestType
	ErrDepartmentNotFound = hierarchy.ErrDepartmentNotFound
	ErrNoApproverForRole  = hierarchy.ErrNoApproverForRole
)

// ApprovalService is the transition engine for approval requests
type ApprovalService struct {
	repo        repository.ApprovalRepositoryInterface
	delegations repository.DelegationRepositoryInterface
	directory   repository.StaffDirectory
	publisher   *events.Publisher
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	repo repository.ApprovalRepositoryInterface,
	delegations repository.DelegationRepositoryInterface,
	directory repository.StaffDirectory,
	publisher *events.Publisher,
) *ApprovalService {
	return &ApprovalService{
		repo:        repo,
		delegations: delegations,
		directory:   directory,
		publisher:   publisher,
	}
}

// CreateRequestInput represents input for creating an approval request
type CreateRequestInput struct {
	RequestType models.RequestType     `json:"requestType" binding:"required"`
	Title       string                 `json:"title" binding:"required"`
	Description string                 `json:"description"`
	RequestData map[string]interface{} `json:"requestData"`
}

// Create resolves the approval chain for the requester and persists a
// new pending request with the first chain role as current approver.
func (s *ApprovalService) Create(ctx context.Context, requesterID uuid.UUID, input CreateRequestInput) (*models.ApprovalRequest, error) {
	requester, err := s.directory.GetStaffByID(ctx, requesterID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrStaffNotFound
		}
		return nil, err
	}

	chain, err := hierarchy.Resolve(input.RequestType, requester.Role)
	if err != nil {
		return nil, err
	}

	var dept *models.Department
	if requester.DepartmentID != nil {
		dept, err = s.directory.GetDepartmentByID(ctx, *requester.DepartmentID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	if err := hierarchy.ResolveScope(chain, requester, dept); err != nil {
		return nil, err
	}

	requestData := input.RequestData
	if requestData == nil {
		requestData = map[string]interface{}{}
	}
	dataJSON, err := json.Marshal(requestData)
	if err != nil {
		return nil, err
	}

	chainStrings := make([]string, len(chain))
	for i, role := range chain {
		chainStrings[i] = string(role)
	}

	request := &models.ApprovalRequest{
		RequesterID:     requesterID,
		RequesterName:   requester.FullName(),
		DepartmentID:    requester.DepartmentID,
		RequestType:     input.RequestType,
		Title:           input.Title,
		Description:     input.Description,
		RequestData:     datatypes.JSON(dataJSON),
		Status:          models.StatusPending,
		CurrentApprover: chain[0],
		ApprovalChain:   chainStrings,
		ChainIndex:      0,
		Version:         1,
	}

	if err := s.repo.CreateRequest(ctx, request); err != nil {
		return nil, err
	}

	s.audit(ctx, request.ID, models.AuditEventCreated, &requesterID, string(requester.Role), nil)
	s.publishApproval(events.ApprovalRequested, request, nil, "", "")

	return request, nil
}

// Approve records an approver's decision. With forwardToNext set and a
// role remaining in the chain, the request moves to that role;
// otherwise the decision finalizes the request. Forwarding is an
// explicit choice, never automatic.
func (s *ApprovalService) Approve(ctx context.Context, requestID, actorID uuid.UUID, actorRole models.StaffRole, comments string, forwardToNext bool) (*models.ApprovalRequest, error) {
	request, err := s.getOpenRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	actor, actingRole, err := s.authorizeActor(ctx, request, actorID, actorRole)
	if err != nil {
		return nil, err
	}

	next := request.NextRole()
	forwarding := forwardToNext && next != models.ApproverCompleted

	decision := models.DecisionApproved
	update := repository.TransitionUpdate{
		Status:          models.StatusApproved,
		CurrentApprover: models.ApproverCompleted,
		ChainIndex:      request.ChainIndex,
	}
	eventSubject := events.ApprovalGranted
	auditEvent := models.AuditEventApproved
	if forwarding {
		decision = models.ForwardDecision(next)
		update = repository.TransitionUpdate{
			Status:          models.StatusForwarded,
			CurrentApprover: next,
			ChainIndex:      request.ChainIndex + 1,
		}
		eventSubject = events.ApprovalForwarded
		auditEvent = models.AuditEventForwarded
	}

	if err := s.applyDecision(ctx, request, actor, actingRole, decision, comments, update); err != nil {
		return nil, err
	}

	s.audit(ctx, request.ID, auditEvent, &actorID, actingRole, map[string]interface{}{"comments": comments})
	s.publishApproval(eventSubject, request, &actorID, actingRole, comments)

	return request, nil
}

// Reject records a rejection. Rejection is terminal at any stage; a
// new request must be created to try again.
func (s *ApprovalService) Reject(ctx context.Context, requestID, actorID uuid.UUID, actorRole models.StaffRole, comments string) (*models.ApprovalRequest, error) {
	request, err := s.getOpenRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	actor, actingRole, err := s.authorizeActor(ctx, request, actorID, actorRole)
	if err != nil {
		return nil, err
	}

	update := repository.TransitionUpdate{
		Status:          models.StatusRejected,
		CurrentApprover: models.ApproverCompleted,
		ChainIndex:      request.ChainIndex,
	}

	if err := s.applyDecision(ctx, request, actor, actingRole, models.DecisionRejected, comments, update); err != nil {
		return nil, err
	}

	s.audit(ctx, request.ID, models.AuditEventRejected, &actorID, actingRole, map[string]interface{}{"comments": comments})
	s.publishApproval(events.ApprovalRejected, request, &actorID, actingRole, comments)

	return request, nil
}

// GetRequest retrieves a request, applying the same visibility rules
// as GetHistory.
func (s *ApprovalService) GetRequest(ctx context.Context, requestID, callerID uuid.UUID, callerRole models.StaffRole) (*models.ApprovalRequest, error) {
	return s.GetHistory(ctx, requestID, callerID, callerRole)
}

// GetHistory retrieves a request with its full decision history. Only
// the requester, or an approver role in the request's chain whose
// scope covers it, may view it.
func (s *ApprovalService) GetHistory(ctx context.Context, requestID, callerID uuid.UUID, callerRole models.StaffRole) (*models.ApprovalRequest, error) {
	request, err := s.repo.GetRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}

	if request.RequesterID == callerID {
		return request, nil
	}

	if !request.ChainContains(models.ApproverRole(callerRole)) {
		return nil, ErrOutOfScope
	}
	if models.ApproverRole(callerRole) == models.ApproverHOD {
		caller, err := s.directory.GetStaffByID(ctx, callerID)
		if err != nil {
			return nil, ErrOutOfScope
		}
		if !sameDepartment(caller.DepartmentID, request.DepartmentID) {
			return nil, ErrOutOfScope
		}
	}

	return request, nil
}

// List returns requests visible to the caller: teachers see their own,
// HODs their department's, VP and Principal everything.
func (s *ApprovalService) List(ctx context.Context, callerID uuid.UUID, callerRole models.StaffRole, filter repository.RequestFilter) ([]models.ApprovalRequest, int64, error) {
	switch callerRole {
	case models.RoleTeacher:
		filter.RequesterID = &callerID
	case models.RoleHOD:
		caller, err := s.directory.GetStaffByID(ctx, callerID)
		if err != nil {
			return nil, 0, ErrStaffNotFound
		}
		if caller.DepartmentID == nil {
			return nil, 0, ErrDepartmentNotFound
		}
		filter.DepartmentID = caller.DepartmentID
	}
	return s.repo.ListRequests(ctx, filter)
}

// --- helpers ---

func (s *ApprovalService) getOpenRequest(ctx context.Context, requestID uuid.UUID) (*models.ApprovalRequest, error) {
	request, err := s.repo.GetRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if !request.IsOpen() {
		return nil, ErrRequestAlreadyDecided
	}
	return request, nil
}

// authorizeActor enforces the role-match and scope rules for a
// transition. It returns the acting role recorded in history, which
// differs from the actor's own role when acting under delegation.
func (s *ApprovalService) authorizeActor(ctx context.Context, request *models.ApprovalRequest, actorID uuid.UUID, actorRole models.StaffRole) (*models.Staff, string, error) {
	if request.RequesterID == actorID {
		return nil, "", ErrSelfApprovalNotAllowed
	}

	actor, err := s.directory.GetStaffByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrStaffNotFound
		}
		return nil, "", err
	}

	required := request.CurrentApprover

	if models.ApproverRole(actorRole) == required {
		// Direct role match; HODs only act within their department.
		if required == models.ApproverHOD && !sameDepartment(actor.DepartmentID, request.DepartmentID) {
			return nil, "", ErrOutOfScope
		}
		return actor, required.DisplayName(), nil
	}

	// The role does not match: an active delegation notice granting
	// the required role's authority still lets the actor decide.
	scopeDept, ok, err := s.delegatedAuthority(ctx, actorID, required)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", ErrRoleMismatch
	}
	if required == models.ApproverHOD && !sameDepartment(scopeDept, request.DepartmentID) {
		return nil, "", ErrOutOfScope
	}
	return actor, required.DisplayName() + " (delegated)", nil
}

// delegatedAuthority checks for an active, unexpired notice whose
// delegator holds the required role. It returns the delegator's
// department for the scope check.
func (s *ApprovalService) delegatedAuthority(ctx context.Context, actorID uuid.UUID, required models.ApproverRole) (*uuid.UUID, bool, error) {
	if s.delegations == nil {
		return nil, false, nil
	}

	now := time.Now()
	notices, err := s.delegations.FindActiveGranting(ctx, actorID, now)
	if err != nil {
		return nil, false, err
	}
	for _, notice := range notices {
		if !notice.IsActiveNow(now) {
			continue
		}
		if models.ApproverRole(notice.DelegatorRole) == required {
			return notice.DelegatorDepartmentID, true, nil
		}
	}
	return nil, false, nil
}

// applyDecision appends the history entry and applies the transition
// atomically. The guarded update makes sure only the first of two
// racing approvers succeeds; the loser sees the request as decided.
func (s *ApprovalService) applyDecision(ctx context.Context, request *models.ApprovalRequest, actor *models.Staff, actingRole, decision, comments string, update repository.TransitionUpdate) error {
	err := s.repo.WithTransaction(ctx, func(txRepo repository.ApprovalRepositoryInterface) error {
		txRequest, err := txRepo.GetRequestByID(ctx, request.ID)
		if err != nil {
			return err
		}
		if !txRequest.IsOpen() {
			return ErrRequestAlreadyDecided
		}
		// The decision was computed against the initial read; if another
		// transition committed in between, the row is still open but the
		// computed update no longer matches its stage.
		if txRequest.Version != request.Version {
			return ErrRequestAlreadyDecided
		}

		entry := &models.ApprovalHistoryEntry{
			RequestID:    txRequest.ID,
			ApproverID:   actor.ID,
			ApproverName: actor.FullName(),
			Role:         actingRole,
			Decision:     decision,
			Comments:     comments,
		}
		if err := txRepo.AppendHistory(ctx, entry); err != nil {
			return err
		}

		if err := txRepo.ApplyTransition(ctx, txRequest, update); err != nil {
			return err
		}

		*request = *txRequest
		return nil
	})
	if errors.Is(err, repository.ErrVersionConflict) {
		return ErrRequestAlreadyDecided
	}
	return err
}

func (s *ApprovalService) audit(ctx context.Context, requestID uuid.UUID, eventType string, actorID *uuid.UUID, actorRole string, metadata map[string]interface{}) {
	metadataJSON, _ := json.Marshal(metadata)

	// Best effort - a failed audit write must not fail the decision.
	_ = s.repo.CreateAuditLog(ctx, &models.WorkflowAuditLog{
		EntityType: models.AuditEntityApproval,
		EntityID:   requestID,
		EventType:  eventType,
		ActorID:    actorID,
		ActorRole:  actorRole,
		Metadata:   datatypes.JSON(metadataJSON),
	})
}

func (s *ApprovalService) publishApproval(subject string, request *models.ApprovalRequest, actorID *uuid.UUID, actorRole, comments string) {
	if s.publisher == nil {
		return
	}
	event := events.WorkflowEvent{
		EntityID:    request.ID.String(),
		RequesterID: request.RequesterID.String(),
		Status:      request.Status,
		RequestType: string(request.RequestType),
		Comments:    comments,
	}
	if actorID != nil {
		event.ActorID = actorID.String()
		event.ActorRole = actorRole
	}
	s.publisher.Publish(subject, event)
}

func sameDepartment(a, b *uuid.UUID) bool {
	return a != nil && b != nil && *a == *b
}
