package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/ClasslyHQ/Classly/app/models"
)

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a subscription repository backed by GORM.
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *subscriptionRepository) GetByID(id uint) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.db.First(&s, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &s, nil
}

func (r *subscriptionRepository) GetByPublicID(publicID string) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.db.Where("public_id = ?", publicID).First(&s).Error; err != nil {
		return nil, translateErr(err)
	}
	return &s, nil
}

func (r *subscriptionRepository) FindActiveOrPending(clientID, brandID uint) (*models.Subscription, error) {
	var s models.Subscription
	err := r.db.
		Where("client_id = ? AND brand_id = ? AND status IN ?",
			clientID, brandID,
			[]string{models.SubscriptionStatusActive, models.SubscriptionStatusPending}).
		Order("created_at DESC").
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *subscriptionRepository) Update(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *subscriptionRepository) GuardedUpdate(id uint, fromStatuses []string, updates map[string]interface{}) (bool, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
