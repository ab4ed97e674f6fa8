package repository

import (
	"gorm.io/gorm"

	"github.com/ClasslyHQ/Classly/app/models"
)

type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a plan repository backed by GORM.
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

func (r *planRepository) GetByID(id uint) (*models.Plan, error) {
	var p models.Plan
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &p, nil
}

func (r *planRepository) GetByPublicID(publicID string) (*models.Plan, error) {
	var p models.Plan
	if err := r.db.Where("public_id = ?", publicID).First(&p).Error; err != nil {
		return nil, translateErr(err)
	}
	return &p, nil
}
