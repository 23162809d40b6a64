package hierarchy

import (
	"errors"

	"school-approval-service/internal/models"
)

var (
	ErrInvalidRequestType = errors.New("invalid request type")
	ErrUnknownRole        = errors.New("unknown requester role")
	ErrNoApproverForRole  = errors.New("no approver exists above this role")
	ErrDepartmentNotFound = errors.New("department not found")
)

// chainKey selects a chain for a requester role + request type pair.
// An empty request type is the role's default chain.
type chainKey struct {
	role        models.StaffRole
	requestType models.RequestType
}

// chains is the routing table. Lookup order: exact (role, type) match,
// then the role's default. Teachers climb the full hierarchy except
// for resource/service requests, which route straight to the VP.
// HOD submissions skip the HOD stage; budget and event items get VP
// review first, everything else goes to the Principal directly.
var chains = map[chainKey][]models.ApproverRole{
	{models.RoleTeacher, models.RequestTypeResource}: {models.ApproverVP, models.ApproverPrincipal},
	{models.RoleTeacher, ""}:                         {models.ApproverHOD, models.ApproverVP, models.ApproverPrincipal},

	{models.RoleHOD, models.RequestTypeEvent}:  {models.ApproverVP, models.ApproverPrincipal},
	{models.RoleHOD, models.RequestTypeBudget}: {models.ApproverVP, models.ApproverPrincipal},
	{models.RoleHOD, ""}:                       {models.ApproverPrincipal},

	{models.RoleVP, ""}:    {models.ApproverPrincipal},
	{models.RoleAdmin, ""}: {models.ApproverPrincipal},
}

// Resolve returns the ordered list of approver roles that must act on
// a request of the given type submitted by the given role. Pure and
// deterministic; no side effects.
func Resolve(requestType models.RequestType, requesterRole models.StaffRole) ([]models.ApproverRole, error) {
	if !requestType.Valid() {
		return nil, ErrInvalidRequestType
	}

	if requesterRole == models.RolePrincipal {
		return nil, ErrNoApproverForRole
	}

	if chain, ok := chains[chainKey{requesterRole, requestType}]; ok {
		return cloneChain(chain), nil
	}
	if chain, ok := chains[chainKey{requesterRole, ""}]; ok {
		return cloneChain(chain), nil
	}
	return nil, ErrUnknownRole
}

// ResolveScope verifies that a chain starting at the HOD stage has a
// resolvable department scope: the requester must belong to a
// department and that department must have a head. Surfaced as a 404
// rather than letting the request stall with no one able to act.
func ResolveScope(chain []models.ApproverRole, requester *models.Staff, dept *models.Department) error {
	if len(chain) == 0 || chain[0] != models.ApproverHOD {
		return nil
	}
	if requester.DepartmentID == nil || dept == nil || dept.HeadID == nil {
		return ErrDepartmentNotFound
	}
	return nil
}

func cloneChain(chain []models.ApproverRole) []models.ApproverRole {
	out := make([]models.ApproverRole, len(chain))
	copy(out, chain)
	return out
}
