package models

import (
	"time"

	"github.com/google/uuid"
)

// StaffRole is the organizational role of a staff member. Teacher is a
// requester role; hod, vice_principal and principal are approver
// capabilities as well.
type StaffRole string

const (
	RoleTeacher   StaffRole = "teacher"
	RoleHOD       StaffRole = "hod"
	RoleVP        StaffRole = "vice_principal"
	RolePrincipal StaffRole = "principal"
	RoleAdmin     StaffRole = "admin"
)

// Valid reports whether r is a known staff role.
func (r StaffRole) Valid() bool {
	switch r {
	case RoleTeacher, RoleHOD, RoleVP, RolePrincipal, RoleAdmin:
		return true
	}
	return false
}

// CanCreateDelegations reports whether the role may author delegation
// of authority notices.
func (r StaffRole) CanCreateDelegations() bool {
	return r == RoleHOD || r == RoleVP || r == RolePrincipal
}

// CanDecideDelegations reports whether the role may approve, reject or
// revoke delegation notices.
func (r StaffRole) CanDecideDelegations() bool {
	return r == RoleVP || r == RolePrincipal
}

// Staff is the directory read model consulted for scope checks. It is
// maintained by the surrounding administration system; this service
// only reads it.
type Staff struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	EmployeeID   string     `gorm:"type:varchar(50);uniqueIndex" json:"employeeId"`
	FirstName    string     `gorm:"type:varchar(100);not null" json:"firstName"`
	LastName     string     `gorm:"type:varchar(100);not null" json:"lastName"`
	Email        string     `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	Role         StaffRole  `gorm:"type:varchar(30);not null;index" json:"role"`
	DepartmentID *uuid.UUID `gorm:"type:uuid;index" json:"departmentId,omitempty"`
	IsActive     bool       `gorm:"default:true" json:"isActive"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName returns the table name for Staff
func (Staff) TableName() string {
	return "staff"
}

// FullName returns the display name used in history entries.
func (s *Staff) FullName() string {
	return s.FirstName + " " + s.LastName
}

// Department groups teachers under a head of department.
type Department struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name      string     `gorm:"type:varchar(100);not null" json:"name"`
	Code      string     `gorm:"type:varchar(20);uniqueIndex" json:"code"`
	HeadID    *uuid.UUID `gorm:"type:uuid" json:"headId,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName returns the table name for Department
func (Department) TableName() string {
	return "departments"
}
