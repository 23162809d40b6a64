package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"school-approval-service/internal/models"
)

// StaffDirectory is the read-only view of the staff/department tables
// the workflow engine consults for scope checks.
type StaffDirectory interface {
	GetStaffByID(ctx context.Context, id uuid.UUID) (*models.Staff, error)
	GetDepartmentByID(ctx context.Context, id uuid.UUID) (*models.Department, error)
	ListActiveStaffByRole(ctx context.Context, role models.StaffRole) ([]models.Staff, error)
}

// StaffRepository reads the staff directory maintained by the
// surrounding administration system.
type StaffRepository struct {
	db *gorm.DB
}

// NewStaffRepository creates a new StaffRepository
func NewStaffRepository(db *gorm.DB) *StaffRepository {
	return &StaffRepository{db: db}
}

// GetStaffByID retrieves an active staff member
func (r *StaffRepository) GetStaffByID(ctx context.Context, id uuid.UUID) (*models.Staff, error) {
	var staff models.Staff
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		First(&staff).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get staff")
	}
	return &staff, nil
}

// ListActiveStaffByRole retrieves all active staff holding a role
func (r *StaffRepository) ListActiveStaffByRole(ctx context.Context, role models.StaffRole) ([]models.Staff, error) {
	var staff []models.Staff
	err := r.db.WithContext(ctx).
		Where("role = ? AND is_active = ?", role, true).
		Find(&staff).Error
	if err != nil {
		return nil, errors.Wrap(err, "list staff by role")
	}
	return staff, nil
}

// GetDepartmentByID retrieves a department
func (r *StaffRepository) GetDepartmentByID(ctx context.Context, id uuid.UUID) (*models.Department, error) {
	var dept models.Department
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&dept).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get department")
	}
	return &dept, nil
}
