package models

import (
	"time"

	"github.com/google/uuid"
)

// DelegationType classifies how long and for what a delegation holds.
type DelegationType string

const (
	DelegationTemporary    DelegationType = "temporary"
	DelegationPermanent    DelegationType = "permanent"
	DelegationEmergency    DelegationType = "emergency"
	DelegationProjectBased DelegationType = "project_based"
)

// Valid reports whether t is a known delegation type.
func (t DelegationType) Valid() bool {
	switch t {
	case DelegationTemporary, DelegationPermanent, DelegationEmergency, DelegationProjectBased:
		return true
	}
	return false
}

// DelegationStatus constants. Expired is also derived at read time;
// see IsExpired.
const (
	DelegationStatusDraft    = "draft"
	DelegationStatusPending  = "pending"
	DelegationStatusApproved = "approved"
	DelegationStatusRejected = "rejected"
	DelegationStatusActive   = "active"
	DelegationStatusExpired  = "expired"
	DelegationStatusRevoked  = "revoked"
)

// DelegationNotice grants one staff member (delegate) part of
// another's (delegator's) authority for a bounded or unbounded period.
type DelegationNotice struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Title string    `gorm:"type:varchar(255);not null" json:"title"`

	DelegatorID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"delegatorId"`
	DelegatorRole         string     `gorm:"type:varchar(30)" json:"delegatorRole"`
	DelegatorDepartmentID *uuid.UUID `gorm:"type:uuid" json:"delegatorDepartmentId,omitempty"`
	DelegateID            uuid.UUID  `gorm:"type:uuid;not null;index" json:"delegateId"`
	DelegateRole          string     `gorm:"type:varchar(30)" json:"delegateRole"`
	DelegateDepartmentID  *uuid.UUID `gorm:"type:uuid" json:"delegateDepartmentId,omitempty"`

	DelegationType   DelegationType `gorm:"type:varchar(20);not null" json:"delegationType"`
	AuthorityScope   string         `gorm:"type:text" json:"authorityScope,omitempty"`
	Responsibilities string         `gorm:"type:text" json:"responsibilities,omitempty"`
	Limitations      string         `gorm:"type:text" json:"limitations,omitempty"`

	EffectiveDate time.Time  `gorm:"not null" json:"effectiveDate"`
	ExpiryDate    *time.Time `json:"expiryDate,omitempty"`

	Status           string `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	ApprovalRequired bool   `gorm:"default:true" json:"approvalRequired"`
	Version          int    `gorm:"not null;default:1" json:"version"` // Optimistic locking

	ApprovedBy   *uuid.UUID `gorm:"type:uuid" json:"approvedBy,omitempty"`
	ApprovedAt   *time.Time `json:"approvedAt,omitempty"`
	RejectedBy   *uuid.UUID `gorm:"type:uuid" json:"rejectedBy,omitempty"`
	RejectedAt   *time.Time `json:"rejectedAt,omitempty"`
	RevokedBy    *uuid.UUID `gorm:"type:uuid" json:"revokedBy,omitempty"`
	RevokedAt    *time.Time `json:"revokedAt,omitempty"`
	RevokeReason string     `gorm:"type:text" json:"revokeReason,omitempty"`

	CreatedBy uuid.UUID `gorm:"type:uuid;not null;index" json:"createdBy"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`

	History       []DelegationHistoryEntry `gorm:"foreignKey:NoticeID" json:"history,omitempty"`
	Notifications []DelegationNotification `gorm:"foreignKey:NoticeID" json:"notifications,omitempty"`
}

// TableName returns the table name for DelegationNotice
func (DelegationNotice) TableName() string {
	return "delegation_notices"
}

// IsExpired reports whether the validity window has passed, regardless
// of the stored status. Callers must not trust status == expired
// alone: the sweep converges stored state, this is authoritative.
func (n *DelegationNotice) IsExpired(now time.Time) bool {
	return n.ExpiryDate != nil && !n.ExpiryDate.After(now)
}

// IsActiveNow reports whether the delegated authority currently holds.
func (n *DelegationNotice) IsActiveNow(now time.Time) bool {
	return n.Status == DelegationStatusActive &&
		!n.EffectiveDate.After(now) &&
		!n.IsExpired(now)
}

// CanBeSubmitted reports whether the notice can move out of draft.
func (n *DelegationNotice) CanBeSubmitted() bool {
	return n.Status == DelegationStatusDraft
}

// CanBeApproved reports whether an approve transition is valid.
func (n *DelegationNotice) CanBeApproved(now time.Time) bool {
	return n.Status == DelegationStatusPending && !n.IsExpired(now)
}

// CanBeRejected reports whether a reject transition is valid.
func (n *DelegationNotice) CanBeRejected() bool {
	return n.Status == DelegationStatusPending
}

// CanBeRevoked reports whether a revoke transition is valid. An
// already-expired notice cannot be revoked; it is simply expired.
func (n *DelegationNotice) CanBeRevoked(now time.Time) bool {
	return n.Status == DelegationStatusActive && !n.IsExpired(now)
}

// Delegation history actions
const (
	DelegationActionCreated   = "created"
	DelegationActionSubmitted = "submitted"
	DelegationActionApproved  = "approved"
	DelegationActionRejected  = "rejected"
	DelegationActionActivated = "activated"
	DelegationActionRevoked   = "revoked"
	DelegationActionExpired   = "expired"
)

// DelegationHistoryEntry records one action taken on a notice.
// Append-only.
type DelegationHistoryEntry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	NoticeID   uuid.UUID `gorm:"type:uuid;not null;index" json:"noticeId"`
	Action     string    `gorm:"type:varchar(30);not null" json:"action"`
	ActorID    uuid.UUID `gorm:"type:uuid;not null" json:"actorId"`
	PrevStatus string    `gorm:"type:varchar(20)" json:"prevStatus"`
	NewStatus  string    `gorm:"type:varchar(20)" json:"newStatus"`
	Comments   string    `gorm:"type:text" json:"comments,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"timestamp"`
}

// TableName returns the table name for DelegationHistoryEntry
func (DelegationHistoryEntry) TableName() string {
	return "delegation_history"
}

// DelegationNotification is a per-recipient notice message with a read
// flag. Only the recipient may mark it read.
type DelegationNotification struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	NoticeID    uuid.UUID `gorm:"type:uuid;not null;index" json:"noticeId"`
	RecipientID uuid.UUID `gorm:"type:uuid;not null;index" json:"recipientId"`
	Message     string    `gorm:"type:text;not null" json:"message"`
	Read        bool      `gorm:"default:false" json:"read"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName returns the table name for DelegationNotification
func (DelegationNotification) TableName() string {
	return "delegation_notifications"
}
