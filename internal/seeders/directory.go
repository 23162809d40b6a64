package seeders

import (
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"school-approval-service/internal/models"
)

// Fixed IDs keep the demo directory stable across restarts so seeded
// tokens and bookmarks keep working.
var (
	mathDeptID    = uuid.MustParse("7d3f1a60-9a1e-4d5b-8a2c-0f4b6c8d9e01")
	scienceDeptID = uuid.MustParse("7d3f1a60-9a1e-4d5b-8a2c-0f4b6c8d9e02")

	principalID = uuid.MustParse("c1a2b3d4-0001-4000-8000-000000000001")
	vpID        = uuid.MustParse("c1a2b3d4-0002-4000-8000-000000000002")
	mathHODID   = uuid.MustParse("c1a2b3d4-0003-4000-8000-000000000003")
	sciHODID    = uuid.MustParse("c1a2b3d4-0004-4000-8000-000000000004")
	teacher1ID  = uuid.MustParse("c1a2b3d4-0005-4000-8000-000000000005")
	teacher2ID  = uuid.MustParse("c1a2b3d4-0006-4000-8000-000000000006")
)

// SeedDirectory creates or updates a demo staff directory. Intended
// for development and evaluation environments only.
func SeedDirectory(db *gorm.DB) error {
	departments := []models.Department{
		{ID: mathDeptID, Name: "Mathematics", Code: "MATH", HeadID: &mathHODID},
		{ID: scienceDeptID, Name: "Science", Code: "SCI", HeadID: &sciHODID},
	}

	for _, dept := range departments {
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "code", "head_id", "updated_at"}),
		}).Create(&dept)
		if result.Error != nil {
			log.Printf("Failed to seed department %s: %v", dept.Code, result.Error)
			return result.Error
		}
		log.Printf("Seeded department: %s", dept.Code)
	}

	staff := []models.Staff{
		{ID: principalID, EmployeeID: "EMP-0001", FirstName: "Meera", LastName: "Iyer", Email: "principal@school.edu", Role: models.RolePrincipal, IsActive: true},
		{ID: vpID, EmployeeID: "EMP-0002", FirstName: "Rahul", LastName: "Desai", Email: "vp@school.edu", Role: models.RoleVP, IsActive: true},
		{ID: mathHODID, EmployeeID: "EMP-0003", FirstName: "Anita", LastName: "Sharma", Email: "hod.math@school.edu", Role: models.RoleHOD, DepartmentID: &mathDeptID, IsActive: true},
		{ID: sciHODID, EmployeeID: "EMP-0004", FirstName: "Vikram", LastName: "Rao", Email: "hod.sci@school.edu", Role: models.RoleHOD, DepartmentID: &scienceDeptID, IsActive: true},
		{ID: teacher1ID, EmployeeID: "EMP-0005", FirstName: "Priya", LastName: "Narayan", Email: "priya.narayan@school.edu", Role: models.RoleTeacher, DepartmentID: &mathDeptID, IsActive: true},
		{ID: teacher2ID, EmployeeID: "EMP-0006", FirstName: "Arjun", LastName: "Menon", Email: "arjun.menon@school.edu", Role: models.RoleTeacher, DepartmentID: &scienceDeptID, IsActive: true},
	}

	for _, member := range staff {
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "email", "role", "department_id", "is_active", "updated_at"}),
		}).Create(&member)
		if result.Error != nil {
			log.Printf("Failed to seed staff %s: %v", member.EmployeeID, result.Error)
			return result.Error
		}
		log.Printf("Seeded staff: %s (%s)", member.EmployeeID, member.Role)
	}

	return nil
}
