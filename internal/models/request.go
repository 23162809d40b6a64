package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// RequestType classifies what an approval request is about. The engine
// only uses it for routing; the payload stays opaque.
type RequestType string

const (
	RequestTypeLeave             RequestType = "leave"
	RequestTypeResource          RequestType = "resource"
	RequestTypeEvent             RequestType = "event"
	RequestTypeBudget            RequestType = "budget"
	RequestTypeFee               RequestType = "fee"
	RequestTypeStudentFeeRecord  RequestType = "student_fee_record"
	RequestTypeStaffSalaryRecord RequestType = "staff_salary_record"
	RequestTypeOther             RequestType = "other"
)

// Valid reports whether t is a known request type.
func (t RequestType) Valid() bool {
	switch t {
	case RequestTypeLeave, RequestTypeResource, RequestTypeEvent,
		RequestTypeBudget, RequestTypeFee, RequestTypeStudentFeeRecord,
		RequestTypeStaffSalaryRecord, RequestTypeOther:
		return true
	}
	return false
}

// ApproverRole is an organizational position that acts at a workflow
// stage. ApproverCompleted is the terminal marker, not a real role.
type ApproverRole string

const (
	ApproverHOD       ApproverRole = "hod"
	ApproverVP        ApproverRole = "vice_principal"
	ApproverPrincipal ApproverRole = "principal"
	ApproverCompleted ApproverRole = "completed"
)

// DisplayName returns the human-readable form used in history entries.
func (r ApproverRole) DisplayName() string {
	switch r {
	case ApproverHOD:
		return "HOD"
	case ApproverVP:
		return "Vice Principal"
	case ApproverPrincipal:
		return "Principal"
	}
	return string(r)
}

// ApprovalStatus constants
const (
	StatusPending   = "pending"
	StatusForwarded = "forwarded"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
)

// ApprovalRequest is a routed request awaiting decisions from an
// ordered chain of approver roles. Records are never hard-deleted.
type ApprovalRequest struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	RequesterID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"requesterId"`
	RequesterName string         `gorm:"type:varchar(255)" json:"requesterName,omitempty"`
	DepartmentID  *uuid.UUID     `gorm:"type:uuid;index" json:"departmentId,omitempty"`
	RequestType   RequestType    `gorm:"type:varchar(30);not null;index" json:"requestType"`
	Title         string         `gorm:"type:varchar(255);not null" json:"title"`
	Description   string         `gorm:"type:text" json:"description,omitempty"`
	RequestData   datatypes.JSON `gorm:"type:jsonb" json:"requestData,omitempty"`

	Status          string         `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CurrentApprover ApproverRole   `gorm:"type:varchar(20);not null" json:"currentApprover"`
	ApprovalChain   pq.StringArray `gorm:"type:text[]" json:"approvalChain"`
	ChainIndex      int            `gorm:"default:0" json:"chainIndex"`
	Version         int            `gorm:"not null;default:1" json:"version"` // Optimistic locking

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`

	History []ApprovalHistoryEntry `gorm:"foreignKey:RequestID" json:"approvalHistory,omitempty"`
}

// TableName returns the table name for ApprovalRequest
func (ApprovalRequest) TableName() string {
	return "approval_requests"
}

// IsOpen reports whether the request still awaits an approver. A
// forwarded request is open: the next role in the chain must act.
func (r *ApprovalRequest) IsOpen() bool {
	return r.Status == StatusPending || r.Status == StatusForwarded
}

// IsTerminal returns true if the status accepts no further transitions
func (r *ApprovalRequest) IsTerminal() bool {
	return r.Status == StatusApproved || r.Status == StatusRejected
}

// NextRole returns the role after the current chain position, or
// ApproverCompleted when the chain is exhausted.
func (r *ApprovalRequest) NextRole() ApproverRole {
	next := r.ChainIndex + 1
	if next >= len(r.ApprovalChain) {
		return ApproverCompleted
	}
	return ApproverRole(r.ApprovalChain[next])
}

// ChainContains reports whether role appears anywhere in the resolved
// approval chain.
func (r *ApprovalRequest) ChainContains(role ApproverRole) bool {
	for _, entry := range r.ApprovalChain {
		if ApproverRole(entry) == role {
			return true
		}
	}
	return false
}

// Decision constants for history entries. Forward decisions are
// composed with the target role, e.g. "Forwarded to Vice Principal".
const (
	DecisionApproved      = "Approved"
	DecisionRejected      = "Rejected"
	DecisionForwardPrefix = "Forwarded to "
)

// ForwardDecision builds the history decision text for a forward to
// the given role.
func ForwardDecision(to ApproverRole) string {
	return DecisionForwardPrefix + to.DisplayName()
}

// ApprovalHistoryEntry is one approver's decision on a request.
// Rows are append-only; existing entries are never updated.
type ApprovalHistoryEntry struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	RequestID    uuid.UUID `gorm:"type:uuid;not null;index" json:"requestId"`
	ApproverID   uuid.UUID `gorm:"type:uuid;not null" json:"approverId"`
	ApproverName string    `gorm:"type:varchar(255)" json:"approverName,omitempty"`
	Role         string    `gorm:"type:varchar(50);not null" json:"role"`
	Decision     string    `gorm:"type:varchar(50);not null" json:"decision"`
	Comments     string    `gorm:"type:text" json:"comments,omitempty"`
	DecidedAt    time.Time `gorm:"autoCreateTime" json:"timestamp"`
}

// TableName returns the table name for ApprovalHistoryEntry
func (ApprovalHistoryEntry) TableName() string {
	return "approval_history"
}
