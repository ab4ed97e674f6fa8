package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/ClasslyHQ/Classly/app/models"
)

// ErrNotFound is returned by repositories when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a payment repository backed by GORM.
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

func (r *paymentRepository) GetByID(id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &p, nil
}

func (r *paymentRepository) GetByPublicID(publicID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.Where("public_id = ?", publicID).First(&p).Error; err != nil {
		return nil, translateErr(err)
	}
	return &p, nil
}

func (r *paymentRepository) GetByIntentID(intentID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.Where("external_intent_id = ?", intentID).First(&p).Error; err != nil {
		return nil, translateErr(err)
	}
	return &p, nil
}

func (r *paymentRepository) GuardedUpdate(id uint, fromStatuses []string, updates map[string]interface{}) (bool, error) {
	tx := r.db.Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func translateErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
