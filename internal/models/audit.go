package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Audited entity kinds
const (
	AuditEntityApproval   = "approval_request"
	AuditEntityDelegation = "delegation_notice"
)

// AuditEventType constants
const (
	AuditEventCreated   = "created"
	AuditEventApproved  = "approved"
	AuditEventRejected  = "rejected"
	AuditEventForwarded = "forwarded"
	AuditEventSubmitted = "submitted"
	AuditEventRevoked   = "revoked"
	AuditEventExpired   = "expired"
)

// WorkflowAuditLog is the service-level audit trail, one row per state
// change across both workflow entities.
type WorkflowAuditLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	EntityType string         `gorm:"type:varchar(30);not null;index" json:"entityType"`
	EntityID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"entityId"`
	EventType  string         `gorm:"type:varchar(30);not null;index" json:"eventType"`
	ActorID    *uuid.UUID     `gorm:"type:uuid" json:"actorId,omitempty"`
	ActorRole  string         `gorm:"type:varchar(30)" json:"actorRole,omitempty"`
	Metadata   datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName returns the table name for WorkflowAuditLog
func (WorkflowAuditLog) TableName() string {
	return "workflow_audit_log"
}
