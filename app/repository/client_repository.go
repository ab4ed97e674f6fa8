package repository

import (
	"gorm.io/gorm"

	"github.com/ClasslyHQ/Classly/app/models"
)

type clientRepository struct {
	db *gorm.DB
}

// NewClientRepository creates a client repository backed by GORM.
func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{db: db}
}

func (r *clientRepository) GetByID(id uint) (*models.Client, error) {
	var c models.Client
	if err := r.db.First(&c, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &c, nil
}

func (r *clientRepository) GetByPublicID(publicID string) (*models.Client, error) {
	var c models.Client
	if err := r.db.Where("public_id = ?", publicID).First(&c).Error; err != nil {
		return nil, translateErr(err)
	}
	return &c, nil
}
