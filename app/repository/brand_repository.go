package repository

import (
	"gorm.io/gorm"

	"github.com/ClasslyHQ/Classly/app/models"
)

type brandRepository struct {
	db *gorm.DB
}

// NewBrandRepository creates a brand repository backed by GORM.
func NewBrandRepository(db *gorm.DB) BrandRepository {
	return &brandRepository{db: db}
}

func (r *brandRepository) GetByID(id uint) (*models.Brand, error) {
	var b models.Brand
	if err := r.db.First(&b, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &b, nil
}

func (r *brandRepository) GetByPublicID(publicID string) (*models.Brand, error) {
	var b models.Brand
	if err := r.db.Where("public_id = ?", publicID).First(&b).Error; err != nil {
		return nil, translateErr(err)
	}
	return &b, nil
}
